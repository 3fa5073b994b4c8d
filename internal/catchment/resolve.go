package catchment

import (
	"context"
	"fmt"
	"sort"

	"hw-catchment/internal/geom"
	"hw-catchment/internal/hwerr"
	"hw-catchment/internal/logger"
	"hw-catchment/internal/metrics"
	"hw-catchment/internal/refine"
	"hw-catchment/internal/registry"
	"hw-catchment/internal/trace"
)

// Method：汇水面的得出方式
type Method string

const (
	MethodTrace      Method = "trace"
	MethodFallback   Method = "fallback"
	MethodUnresolved Method = "unresolved"
)

// Area：一个点的汇水面；未解析的点 Geom 为空
type Area struct {
	PointID int64
	Method  Method
	Keys    []string
	Refined bool
	Geom    geom.MultiPolygon
	AreaSqM float64
}

// Result：一次解析的完整结果（Areas 按 point_id 升序，每个点恰好一条）
type Result struct {
	Areas      []Area
	Unresolved []int64
	Warnings   []hwerr.DataQualityWarning
}

// Refiner：子汇水区精化
type Refiner interface {
	Refine(ctx context.Context, nets []trace.UpstreamNetwork, src refine.CatchmentSource) ([]refine.SubCatchment, []hwerr.DataQualityWarning, error)
}

// Resolver：汇水区解析
type Resolver struct {
	Refiner     Refiner
	BoundaryTol float64 // 兜底关联时视为落在边界上的距离
}

func NewResolver(r Refiner) *Resolver { return &Resolver{Refiner: r, BoundaryTol: 1e-6} }

// 文档注释：解析每个点的汇水面
// 约束：
// - 追踪关联只按 catchment_key == edge_id，不使用任何空间邻近；
// - precise 时起始流段的粗汇水区被子汇水区替换；精化失败的点保留粗汇水区；
// - 兜底使用点与整个图层的空间相交（点在面内或边界上），可能命中接缝两侧的多个汇水区，全部融合并告警；
// - 汇水区图层为空时只告警并返回空结果（所有点列入未解析）。
func (r *Resolver) Resolve(ctx context.Context, nets []trace.UpstreamNetwork, layer *Layer, points []registry.Point, precise bool) (*Result, error) {
	l := logger.L()
	res := &Result{}
	ids := make([]int64, 0, len(points))
	locs := make(map[int64]geom.Point, len(points))
	for _, p := range points {
		ids = append(ids, p.PointID)
		locs[p.PointID] = p.Geom
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	if layer == nil || layer.Len() == 0 {
		res.Warnings = append(res.Warnings, hwerr.DataQualityWarning{Code: hwerr.CodeNoCatchments, Detail: "catchment layer is empty"})
		res.Unresolved = ids
		metrics.WarningsTotal.WithLabelValues(hwerr.CodeNoCatchments).Inc()
		l.Warn("catchments_empty", "points", len(ids))
		return res, nil
	}

	// 只保留被引用的 key
	referenced := make(map[string]*Catchment)
	for _, n := range nets {
		for _, id := range n.EdgeIDs() {
			if _, seen := referenced[id]; seen {
				continue
			}
			if c, ok := layer.ByKey(id); ok {
				referenced[id] = c
			}
		}
	}

	subs := make(map[int64]refine.SubCatchment)
	if precise && r.Refiner != nil {
		found, warns, err := r.Refiner.Refine(ctx, nets, layer)
		if err != nil {
			return nil, fmt.Errorf("refine: %w", err)
		}
		for _, s := range found {
			subs[s.PointID] = s
		}
		res.Warnings = append(res.Warnings, warns...)
	}

	areas := make(map[int64]Area, len(ids))
	for _, n := range nets {
		var parts []geom.Polygon
		var keys []string
		sub, refined := subs[n.PointID]
		for _, id := range n.EdgeIDs() {
			c, ok := referenced[id]
			if !ok {
				continue
			}
			keys = append(keys, c.Key)
			if refined && c.Key == sub.ParentKey {
				parts = append(parts, sub.Geom.Explode()...)
				continue
			}
			parts = append(parts, c.Geom.Explode()...)
		}
		if len(parts) == 0 {
			continue
		}
		g := geom.Dissolve(parts)
		areas[n.PointID] = Area{PointID: n.PointID, Method: MethodTrace, Keys: keys, Refined: refined, Geom: g, AreaSqM: g.Area()}
	}

	for _, id := range ids {
		if _, ok := areas[id]; ok {
			continue
		}
		hits := layer.Containing(locs[id], r.BoundaryTol)
		if len(hits) == 0 {
			areas[id] = Area{PointID: id, Method: MethodUnresolved}
			res.Unresolved = append(res.Unresolved, id)
			res.Warnings = append(res.Warnings, hwerr.DataQualityWarning{PointID: id, Code: hwerr.CodeUnresolved, Detail: "no traced catchment and no catchment at point location"})
			continue
		}
		var parts []geom.Polygon
		keys := make([]string, 0, len(hits))
		for _, c := range hits {
			parts = append(parts, c.Geom.Explode()...)
			keys = append(keys, c.Key)
		}
		if len(hits) > 1 {
			res.Warnings = append(res.Warnings, hwerr.DataQualityWarning{PointID: id, Code: hwerr.CodeMultipleFallback, Detail: fmt.Sprintf("point intersects %d catchments %v", len(hits), keys)})
		}
		g := geom.Dissolve(parts)
		areas[id] = Area{PointID: id, Method: MethodFallback, Keys: keys, Geom: g, AreaSqM: g.Area()}
	}

	counts := map[Method]int{}
	for _, id := range ids {
		a := areas[id]
		res.Areas = append(res.Areas, a)
		counts[a.Method]++
		metrics.CatchAreasTotal.WithLabelValues(string(a.Method)).Inc()
	}
	for _, w := range res.Warnings {
		metrics.WarningsTotal.WithLabelValues(w.Code).Inc()
	}
	l.Info("catchments_resolved", "points", len(ids), "trace", counts[MethodTrace], "fallback", counts[MethodFallback], "unresolved", counts[MethodUnresolved], "refined", len(subs), "warnings", len(res.Warnings))
	return res, nil
}
