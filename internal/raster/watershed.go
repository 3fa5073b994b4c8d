package raster

import "fmt"

// D8 流向编码（ESRI）：1=东 2=东南 4=南 8=西南 16=西 32=西北 64=北 128=东北
var d8Offsets = map[int32][2]int{
	1:   {0, 1},
	2:   {1, 1},
	4:   {1, 0},
	8:   {1, -1},
	16:  {0, -1},
	32:  {-1, -1},
	64:  {-1, 0},
	128: {-1, 1},
}

// Downstream：按流向码取下游单元格；非法码返回 ok=false
func Downstream(code int32, r, c int) (int, int, bool) {
	o, ok := d8Offsets[code]
	if !ok {
		return 0, 0, false
	}
	return r + o[0], c + o[1], true
}

// Delineator：流域提取原语（外部水文工具的抽象）
type Delineator interface {
	Delineate(fdir, pour, mask *IntGrid) (*IntGrid, error)
}

// D8 流域提取
type D8 struct{}

const (
	unvisited int32 = -2147483648
	visiting  int32 = -2147483647
)

// 文档注释：Watershed 等价实现
// 背景：每个单元格沿流向向下游追踪，遇到的第一个出水口单元格的值即为该格的流域标签。
// 约束：
// - 三个栅格必须同形；mask 为 nil 时全域参与，否则 mask 无效值的格子不参与且视为流出；
// - 流出栅格、流向码非法、进入环路的路径标记为无效值；
// - 出水口格子本身属于其流域。
func (D8) Delineate(fdir, pour, mask *IntGrid) (*IntGrid, error) {
	if fdir.NRows != pour.NRows || fdir.NCols != pour.NCols {
		return nil, fmt.Errorf("watershed: pour grid %dx%d does not match flow direction %dx%d", pour.NRows, pour.NCols, fdir.NRows, fdir.NCols)
	}
	if mask != nil && (mask.NRows != fdir.NRows || mask.NCols != fdir.NCols) {
		return nil, fmt.Errorf("watershed: mask grid %dx%d does not match flow direction %dx%d", mask.NRows, mask.NCols, fdir.NRows, fdir.NCols)
	}
	out := NewIntGrid(fdir.Grid)
	label := make([]int32, len(out.Data))
	for i := range label {
		label[i] = unvisited
	}
	active := func(r, c int) bool {
		if !fdir.In(r, c) {
			return false
		}
		return mask == nil || mask.Valid(r, c)
	}
	var path []int
	for start := range label {
		if label[start] != unvisited {
			continue
		}
		path = path[:0]
		r, c := start/fdir.NCols, start%fdir.NCols
		result := NoData
		for {
			if !active(r, c) {
				break
			}
			i := r*fdir.NCols + c
			if label[i] == visiting {
				break
			}
			if label[i] != unvisited {
				result = label[i]
				break
			}
			if pour.Valid(r, c) {
				label[i] = pour.At(r, c)
				result = label[i]
				break
			}
			label[i] = visiting
			path = append(path, i)
			nr, nc, ok := Downstream(fdir.At(r, c), r, c)
			if !ok {
				break
			}
			r, c = nr, nc
		}
		for _, i := range path {
			label[i] = result
		}
		if label[start] == unvisited {
			label[start] = NoData
		}
	}
	for i, v := range label {
		r, c := i/fdir.NCols, i%fdir.NCols
		if v == unvisited || v == visiting || !active(r, c) {
			continue
		}
		if v != NoData {
			out.Data[i] = v
		}
	}
	return out, nil
}

// FlowAccumulation：每个格子的上游格子数（不含自身）；环路中的格子不累计
func FlowAccumulation(fdir, mask *IntGrid) *IntGrid {
	n := len(fdir.Data)
	indeg := make([]int, n)
	next := make([]int, n)
	active := func(r, c int) bool { return fdir.In(r, c) && (mask == nil || mask.Valid(r, c)) }
	for i := 0; i < n; i++ {
		next[i] = -1
		r, c := i/fdir.NCols, i%fdir.NCols
		if !active(r, c) {
			continue
		}
		if nr, nc, ok := Downstream(fdir.At(r, c), r, c); ok && active(nr, nc) {
			next[i] = nr*fdir.NCols + nc
			indeg[next[i]]++
		}
	}
	acc := NewIntGrid(fdir.Grid)
	queue := make([]int, 0, n)
	for i := 0; i < n; i++ {
		r, c := i/fdir.NCols, i%fdir.NCols
		if active(r, c) {
			acc.Data[i] = 0
			if indeg[i] == 0 {
				queue = append(queue, i)
			}
		}
	}
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		if j := next[i]; j >= 0 {
			acc.Data[j] += acc.Data[i] + 1
			indeg[j]--
			if indeg[j] == 0 {
				queue = append(queue, j)
			}
		}
	}
	return acc
}

// SnapPour：在 radius 个格子的窗口内把出水口移到累积量最大的格子（同值取最近）
func SnapPour(acc *IntGrid, r, c, radius int) (int, int) {
	br, bc := r, c
	best, bestD := acc.At(r, c), 0
	for dr := -radius; dr <= radius; dr++ {
		for dc := -radius; dc <= radius; dc++ {
			nr, nc := r+dr, c+dc
			if !acc.Valid(nr, nc) {
				continue
			}
			v, d := acc.At(nr, nc), dr*dr+dc*dc
			if v > best || (v == best && d < bestD) {
				best, bestD, br, bc = v, d, nr, nc
			}
		}
	}
	return br, bc
}
