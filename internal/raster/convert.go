package raster

import (
	"sort"

	"hw-catchment/internal/geom"
)

// RasterizePolygon：单元格中心落在面内的格子写入 value（已有值被覆盖）
func RasterizePolygon(dst *IntGrid, mp geom.MultiPolygon, value int32) int {
	if len(mp) == 0 {
		return 0
	}
	sub, rOff, cOff, ok := dst.Clip(mp.BBox(), 0)
	if !ok {
		return 0
	}
	n := 0
	for r := 0; r < sub.NRows; r++ {
		for c := 0; c < sub.NCols; c++ {
			rr, cc := r+rOff, c+cOff
			if mp.Contains(dst.CellCenter(rr, cc)) {
				dst.Set(rr, cc, value)
				n++
			}
		}
	}
	return n
}

// ValuePoint：带值的点（出水口：值为 point_id）
type ValuePoint struct {
	Pt    geom.Point
	Value int32
}

// RasterizePoints：点写入所在单元格；落在栅格外的点被忽略，返回未写入的点
func RasterizePoints(g Grid, pts []ValuePoint) (*IntGrid, []ValuePoint) {
	out := NewIntGrid(g)
	var missed []ValuePoint
	for _, p := range pts {
		r, c, ok := g.CellOf(p.Pt)
		if !ok {
			missed = append(missed, p)
			continue
		}
		out.Set(r, c, p.Value)
	}
	return out, missed
}

// 文档注释：栅格转面（按值分组，单元格方块融合）
// 约束：无效值不输出；同值的角点相接部分输出为独立部件。
func Vectorize(ig *IntGrid) map[int32]geom.MultiPolygon {
	cells := make(map[int32][]geom.Polygon)
	for r := 0; r < ig.NRows; r++ {
		for c := 0; c < ig.NCols; c++ {
			v := ig.At(r, c)
			if v == ig.NoData {
				continue
			}
			cells[v] = append(cells[v], ig.CellRect(r, c))
		}
	}
	out := make(map[int32]geom.MultiPolygon, len(cells))
	for v, polys := range cells {
		out[v] = geom.DissolveCoverage(polys)
	}
	return out
}

// Values：栅格中出现的有效值（升序）
func Values(ig *IntGrid) []int32 {
	seen := make(map[int32]struct{})
	for _, v := range ig.Data {
		if v != ig.NoData {
			seen[v] = struct{}{}
		}
	}
	out := make([]int32, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
