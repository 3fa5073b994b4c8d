package trace

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"hw-catchment/internal/geom"
	"hw-catchment/internal/hwerr"
	"hw-catchment/internal/hydro"
	"hw-catchment/internal/logger"
	"hw-catchment/internal/metrics"
	"hw-catchment/internal/registry"
)

// UpstreamNetwork：一个点在一个阈值下的上游流网
type UpstreamNetwork struct {
	PointID int64
	Snapped bool
	Edges   []TracedEdge
}

// StartEdges：累计长度为 0 的流段（起始流段）
func (u UpstreamNetwork) StartEdges() []TracedEdge {
	var out []TracedEdge
	for _, e := range u.Edges {
		if e.IsSource {
			out = append(out, e)
		}
	}
	return out
}

// EdgeIDs：去重后的流段 ID（升序）
func (u UpstreamNetwork) EdgeIDs() []string {
	seen := make(map[string]struct{}, len(u.Edges))
	out := make([]string, 0, len(u.Edges))
	for _, e := range u.Edges {
		if _, ok := seen[e.EdgeID]; ok {
			continue
		}
		seen[e.EdgeID] = struct{}{}
		out = append(out, e.EdgeID)
	}
	sort.Strings(out)
	return out
}

// Engine：上溯追踪入口；追踪层按 (距离, 障碍集合) 缓存复用
type Engine struct {
	Net    *hydro.Network
	Rules  hydro.RuleSet
	Cfg    Config
	Solver Solver // 为空时使用追踪层自身的内存求解
	Cache  ResultCache
	layers map[string]*Layer
}

func NewEngine(net *hydro.Network, rules hydro.RuleSet, cfg Config) *Engine {
	return &Engine{Net: net, Rules: rules, Cfg: cfg, layers: make(map[string]*Layer)}
}

func layerKey(maxDist float64, barriers []hydro.Barrier) string {
	k := strconv.FormatFloat(maxDist, 'f', -1, 64)
	for _, b := range barriers {
		k += "|" + b.ID
	}
	return k
}

// Layer：取得（或构建）某距离的追踪层
func (e *Engine) Layer(maxDist float64, barriers []hydro.Barrier) (*Layer, error) {
	k := layerKey(maxDist, barriers)
	if l, ok := e.layers[k]; ok {
		return l, nil
	}
	l, err := NewLayer(e.Net, e.Rules, maxDist, barriers, e.Cfg)
	if err != nil {
		return nil, err
	}
	if len(l.Unplaced) > 0 {
		logger.L().Warn("barrier_unplaced", "count", len(l.Unplaced), "ids", l.Unplaced)
	}
	e.layers[k] = l
	return l, nil
}

// 文档注释：上溯追踪
// 背景：所有起点一次加载、一次求解（SolvePerPoint 时逐点求解，仅用于诊断）。
// 约束：
// - 返回与 points 一一对应（按 point_id 升序）；未捕捉的点 Snapped=false 且 Edges 为空；
// - 求解失败返回 TraceSolveError，不返回任何部分结果；
// - 上下文只在求解前检查，求解过程中不中断。
func (e *Engine) TraceUpstream(ctx context.Context, points []registry.Point, maxDist float64, barriers []hydro.Barrier) ([]UpstreamNetwork, error) {
	threshold := strconv.FormatFloat(maxDist, 'f', -1, 64)
	fail := func(err error) error {
		metrics.SolveFailTotal.WithLabelValues(threshold).Inc()
		return &hwerr.TraceSolveError{Threshold: threshold, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return nil, fail(err)
	}
	layer, err := e.Layer(maxDist, barriers)
	if err != nil {
		return nil, fail(err)
	}
	origins := layer.Locate(points)
	var solvable []Origin
	for _, o := range origins {
		if len(o.Snaps) > 0 {
			solvable = append(solvable, o)
		}
	}
	l := logger.L()
	start := time.Now()
	var edges []TracedEdge
	key := ""
	cached := false
	if e.Cache != nil {
		key = CacheKey(layer, solvable)
		edges, cached = e.Cache.Get(ctx, key)
	}
	if !cached {
		var solver Solver = layer
		if e.Solver != nil {
			solver = e.Solver
		}
		if e.Cfg.SolvePerPoint {
			for _, o := range solvable {
				part, err := solver.Solve(ctx, []Origin{o}, maxDist)
				if err != nil {
					return nil, fail(fmt.Errorf("point %d: %w", o.PointID, err))
				}
				edges = append(edges, part...)
			}
		} else if len(solvable) > 0 {
			edges, err = solver.Solve(ctx, solvable, maxDist)
			if err != nil {
				return nil, fail(err)
			}
		}
		if e.Cache != nil {
			e.Cache.Put(ctx, key, edges)
		}
	}
	metrics.SolveDurationMs.WithLabelValues(threshold).Observe(float64(time.Since(start).Milliseconds()))

	byPoint := make(map[int64][]TracedEdge, len(origins))
	for _, te := range edges {
		byPoint[te.PointID] = append(byPoint[te.PointID], te)
	}
	out := make([]UpstreamNetwork, 0, len(origins))
	traced, untraced := 0, 0
	for _, o := range origins {
		un := UpstreamNetwork{PointID: o.PointID, Snapped: len(o.Snaps) > 0, Edges: byPoint[o.PointID]}
		if len(un.Edges) > 0 {
			traced++
		} else {
			untraced++
		}
		out = append(out, un)
	}
	metrics.PointsTracedTotal.WithLabelValues(threshold).Add(float64(traced))
	metrics.PointsUntracedTotal.WithLabelValues(threshold).Add(float64(untraced))
	metrics.EdgesTracedTotal.WithLabelValues(threshold).Add(float64(len(edges)))
	l.Info("trace_solve_done", "threshold", threshold, "points", len(points), "traced", traced, "untraced", untraced, "edges", len(edges), "cached", cached, "duration_ms", time.Since(start).Milliseconds())
	return out, nil
}

// DissolvedLine：一个点的上游流网合并成的线
type DissolvedLine struct {
	PointID int64
	Edges   int
	Length  float64
	Geom    geom.MultiLineString
}

// Dissolve：把上游流网按点合并；没有流段的点不输出
func Dissolve(nets []UpstreamNetwork) []DissolvedLine {
	out := make([]DissolvedLine, 0, len(nets))
	for _, n := range nets {
		if len(n.Edges) == 0 {
			continue
		}
		lines := make([]geom.LineString, len(n.Edges))
		for i, e := range n.Edges {
			lines[i] = e.Geom
		}
		g := geom.MergeLines(lines)
		out = append(out, DissolvedLine{PointID: n.PointID, Edges: len(n.EdgeIDs()), Length: g.Length(), Geom: g})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PointID < out[j].PointID })
	return out
}
