// 包 refine：子汇水区精化
// 背景：粗汇水区以整条流段为单位，采样点通常落在流段中部；以起点捕捉位置为出水口，在流向栅格上提取流域，
// 再与起始流段的粗汇水区做同一性裁剪，得到精确的子汇水区替换粗汇水区。
// 同一粗汇水区内各出水口的子汇水区互不重叠，上游出水口的流域从下游出水口的流域中扣除。
// 约束：
// - 同一粗汇水区内的多个出水口（重复组）按 point_id 排序编号 1..k，同一编号在所有瓦片中一次性处理，
//   同一瓦片内不同编号严格顺序执行；
// - 瓦片之间互不共享栅格范围，可以并行；
// - 任何单点失败只产生数据质量告警，该点保留粗汇水区。
package refine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"hw-catchment/internal/geom"
	"hw-catchment/internal/hwerr"
	"hw-catchment/internal/logger"
	"hw-catchment/internal/metrics"
	"hw-catchment/internal/raster"
	"hw-catchment/internal/trace"
	"hw-catchment/internal/workspace"
)

// Config：精化参数
type Config struct {
	SourceDir     string // 流向栅格根目录（<dir>/<HUC4>/<FdirName>）
	FdirName      string
	Workers       int  // 并行处理的瓦片数
	PourSnapCells int  // 出水口按汇流累积量吸附的窗口半径（格），0 表示不吸附
	WriteScratch  bool // 中间栅格写入工作区
}

func DefaultConfig() Config {
	return Config{FdirName: "fdr.asc", Workers: 1}
}

// PourPoint：出水口
type PourPoint struct {
	PointID   int64
	ParentKey string
	Tile      string
	Seq       int
	Loc       geom.Point
}

// SubCatchment：精化后的子汇水区
type SubCatchment struct {
	PointID   int64
	ParentKey string
	Tile      string
	Seq       int
	Geom      geom.MultiPolygon
}

type Engine struct {
	Cfg        Config
	Dirs       DirSource
	Delineator raster.Delineator
	Scratch    *workspace.Workspace
}

func NewEngine(cfg Config, dirs DirSource) *Engine {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Engine{Cfg: cfg, Dirs: dirs, Delineator: raster.D8{}}
}

// 文档注释：确定出水口并按粗汇水区编号
// 约束：
// - 没有起始流段的点不参与（保留粗汇水区，不告警）；
// - 起始流段多于一条的点告警并跳过；
// - 起始流段没有对应粗汇水区的点告警并跳过；
// - 出水口位置为起始流段走过部分的下游端（即捕捉位置）。
func PourPoints(nets []trace.UpstreamNetwork, src CatchmentSource) ([]PourPoint, []hwerr.DataQualityWarning) {
	var pours []PourPoint
	var warns []hwerr.DataQualityWarning
	for _, n := range nets {
		starts := n.StartEdges()
		switch {
		case len(starts) == 0:
			continue
		case len(starts) > 1:
			ids := make([]string, len(starts))
			for i, s := range starts {
				ids[i] = s.EdgeID
			}
			warns = append(warns, hwerr.DataQualityWarning{PointID: n.PointID, Code: hwerr.CodeDuplicateStart, Detail: fmt.Sprintf("%d starting edges %v", len(starts), ids)})
			continue
		}
		s := starts[0]
		parent, ok := src.Parent(s.EdgeID)
		if !ok {
			warns = append(warns, hwerr.DataQualityWarning{PointID: n.PointID, Code: hwerr.CodeMissingParent, Detail: "no catchment for starting edge " + s.EdgeID})
			continue
		}
		pours = append(pours, PourPoint{PointID: n.PointID, ParentKey: parent.Key, Tile: parent.Tile, Loc: s.Geom[len(s.Geom)-1]})
	}
	sort.Slice(pours, func(i, j int) bool {
		if pours[i].ParentKey != pours[j].ParentKey {
			return pours[i].ParentKey < pours[j].ParentKey
		}
		return pours[i].PointID < pours[j].PointID
	})
	for i := range pours {
		if i > 0 && pours[i].ParentKey == pours[i-1].ParentKey {
			pours[i].Seq = pours[i-1].Seq + 1
		} else {
			pours[i].Seq = 1
		}
	}
	return pours, warns
}

type tileResult struct {
	subs  []SubCatchment
	warns []hwerr.DataQualityWarning
	err   error
}

// Refine：精化全部起始流段；错误只在上下文取消或工作区写入失败时返回
func (e *Engine) Refine(ctx context.Context, nets []trace.UpstreamNetwork, src CatchmentSource) ([]SubCatchment, []hwerr.DataQualityWarning, error) {
	pours, warns := PourPoints(nets, src)
	tiles := make(map[string][]PourPoint)
	var order []string
	for _, p := range pours {
		if _, ok := tiles[p.Tile]; !ok {
			order = append(order, p.Tile)
		}
		tiles[p.Tile] = append(tiles[p.Tile], p)
	}
	sort.Strings(order)

	results := make([]tileResult, len(order))
	jobs := make(chan int, len(order))
	var wg sync.WaitGroup
	for w := 0; w < min(e.Cfg.Workers, max(len(order), 1)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if err := ctx.Err(); err != nil {
					results[i].err = err
					continue
				}
				start := time.Now()
				results[i] = e.refineTile(ctx, order[i], tiles[order[i]], src)
				metrics.RefineDurationMs.Observe(float64(time.Since(start).Milliseconds()))
			}
		}()
	}
	for i := range order {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	var subs []SubCatchment
	for _, r := range results {
		if r.err != nil {
			return nil, nil, r.err
		}
		subs = append(subs, r.subs...)
		warns = append(warns, r.warns...)
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].PointID < subs[j].PointID })
	sort.SliceStable(warns, func(i, j int) bool { return warns[i].PointID < warns[j].PointID })
	return subs, warns, nil
}

// 文档注释：单瓦片精化
// 背景：瓦片范围为瓦片内所有粗汇水区的融合；流向栅格裁剪到该范围外扩一格，掩膜为融合面的栅格化结果。
func (e *Engine) refineTile(ctx context.Context, tile string, pours []PourPoint, src CatchmentSource) tileResult {
	l := logger.L()
	var res tileResult
	warnAll := func(code, detail string) {
		for _, p := range pours {
			res.warns = append(res.warns, hwerr.DataQualityWarning{PointID: p.PointID, Code: code, Detail: detail})
		}
	}
	fdir, err := e.Dirs.Load(ctx, tile)
	if err != nil {
		if !errors.Is(err, ErrNoFlowDir) {
			l.Error("flowdir_load_error", "tile", tile, "err", err)
		}
		warnAll(hwerr.CodeMissingFlowDir, err.Error())
		return res
	}

	parents := make(map[string]geom.MultiPolygon)
	var polys []geom.Polygon
	for _, p := range pours {
		if _, ok := parents[p.ParentKey]; ok {
			continue
		}
		parent, _ := src.Parent(p.ParentKey)
		parents[p.ParentKey] = parent.Geom
		polys = append(polys, parent.Geom.Explode()...)
	}
	tileArea := geom.Dissolve(polys)
	env := raster.Env{CellSize: fdir.CellSize, Snap: &fdir.Grid, Extent: tileArea.BBox()}
	frame, rOff, cOff, err := env.Frame()
	if err != nil {
		warnAll(hwerr.CodeMissingFlowDir, fmt.Sprintf("tile %s: %v", tile, err))
		return res
	}
	env.Mask = raster.NewIntGrid(frame)
	raster.RasterizePolygon(env.Mask, tileArea, 1)
	fd := fdir.Window(frame, rOff, cOff)

	var acc *raster.IntGrid
	if e.Cfg.PourSnapCells > 0 {
		acc = raster.FlowAccumulation(fd, env.Mask)
	}
	maxSeq := 0
	for _, p := range pours {
		maxSeq = max(maxSeq, p.Seq)
	}
	for seq := 1; seq <= maxSeq; seq++ {
		var batch []PourPoint
		var vps []raster.ValuePoint
		for _, p := range pours {
			if p.Seq == seq {
				batch = append(batch, p)
				vps = append(vps, raster.ValuePoint{Pt: p.Loc, Value: int32(p.PointID)})
			}
		}
		pour, missed := raster.RasterizePoints(frame, vps)
		skip := make(map[int64]bool, len(missed))
		for _, m := range missed {
			skip[int64(m.Value)] = true
			res.warns = append(res.warns, hwerr.DataQualityWarning{PointID: int64(m.Value), Code: hwerr.CodeEmptySubcatchment, Detail: "pour point outside flow direction raster"})
		}
		if acc != nil {
			pour = snapPours(pour, acc, e.Cfg.PourSnapCells)
		}
		ws, err := e.Delineator.Delineate(fd, pour, env.Mask)
		metrics.RefinePassesTotal.Inc()
		if err != nil {
			for _, p := range batch {
				res.warns = append(res.warns, hwerr.DataQualityWarning{PointID: p.PointID, Code: hwerr.CodeEmptySubcatchment, Detail: fmt.Sprintf("tile %s seq %d: %v", tile, seq, err)})
			}
			continue
		}
		if e.Cfg.WriteScratch && e.Scratch != nil {
			if err := e.writeScratch(ctx, fmt.Sprintf("%s_seq%d", tile, seq), pour, ws); err != nil {
				res.err = err
				return res
			}
		}
		for _, p := range batch {
			if skip[p.PointID] {
				continue
			}
			g := clip(ws, int32(p.PointID), parents[p.ParentKey])
			if len(g) == 0 {
				res.warns = append(res.warns, hwerr.DataQualityWarning{PointID: p.PointID, Code: hwerr.CodeEmptySubcatchment, Detail: "no cells inside catchment " + p.ParentKey})
				continue
			}
			res.subs = append(res.subs, SubCatchment{PointID: p.PointID, ParentKey: p.ParentKey, Tile: tile, Seq: seq, Geom: g})
		}
	}
	subs, overlap := partition(res.subs)
	res.subs = subs
	res.warns = append(res.warns, overlap...)
	l.Debug("refine_tile_done", "tile", tile, "pours", len(pours), "sequences", maxSeq, "subcatchments", len(res.subs))
	return res
}

// 同一性裁剪：流域值等于出水口 ID 的格子转面后与起始流段的粗汇水区求交
func clip(ws *raster.IntGrid, id int32, parent geom.MultiPolygon) geom.MultiPolygon {
	keep := raster.NewIntGrid(ws.Grid)
	for i, v := range ws.Data {
		if v == id {
			keep.Data[i] = id
		}
	}
	return geom.Intersect(raster.Vectorize(keep)[id], parent)
}

// 文档注释：重复组内子汇水区去重叠
// 背景：D8 流域两两之间要么嵌套要么不相交；下游出水口的流域包含上游出水口的流域。
// 约束：同一粗汇水区内按（面积，编号）从小到大依次扣除已分配部分；扣除后为空的点告警并保留粗汇水区。
func partition(subs []SubCatchment) ([]SubCatchment, []hwerr.DataQualityWarning) {
	groups := make(map[string][]SubCatchment)
	var order []string
	for _, s := range subs {
		if _, ok := groups[s.ParentKey]; !ok {
			order = append(order, s.ParentKey)
		}
		groups[s.ParentKey] = append(groups[s.ParentKey], s)
	}
	var out []SubCatchment
	var warns []hwerr.DataQualityWarning
	for _, key := range order {
		g := groups[key]
		if len(g) == 1 {
			out = append(out, g[0])
			continue
		}
		area := make(map[int64]float64, len(g))
		for _, s := range g {
			area[s.PointID] = s.Geom.Area()
		}
		sort.SliceStable(g, func(i, j int) bool {
			ai, aj := area[g[i].PointID], area[g[j].PointID]
			if ai != aj {
				return ai < aj
			}
			return g[i].Seq < g[j].Seq
		})
		var taken geom.MultiPolygon
		for _, s := range g {
			own := geom.Difference(s.Geom, taken)
			taken = geom.Union(taken, s.Geom)
			if len(own) == 0 {
				warns = append(warns, hwerr.DataQualityWarning{PointID: s.PointID, Code: hwerr.CodeEmptySubcatchment, Detail: "watershed fully claimed by other pour points in catchment " + key})
				continue
			}
			s.Geom = own
			out = append(out, s)
		}
	}
	return out, warns
}

func snapPours(pour, acc *raster.IntGrid, radius int) *raster.IntGrid {
	out := raster.NewIntGrid(pour.Grid)
	for r := 0; r < pour.NRows; r++ {
		for c := 0; c < pour.NCols; c++ {
			if !pour.Valid(r, c) {
				continue
			}
			nr, nc := r, c
			if acc.Valid(r, c) {
				nr, nc = raster.SnapPour(acc, r, c, radius)
			}
			if !out.Valid(nr, nc) {
				out.Set(nr, nc, pour.At(r, c))
			}
		}
	}
	return out
}

func (e *Engine) writeScratch(ctx context.Context, name string, pour, ws *raster.IntGrid) error {
	for suffix, g := range map[string]*raster.IntGrid{"pour": pour, "watershed": ws} {
		var buf bytes.Buffer
		if err := raster.WriteASCII(&buf, g); err != nil {
			return err
		}
		if err := e.Scratch.Put(ctx, name+"_"+suffix+".asc", buf.Bytes()); err != nil {
			return fmt.Errorf("scratch %s: %w", name, err)
		}
	}
	return nil
}
