// 包 raster：整型栅格、ESRI ASCII 栅格编解码、矢栅转换与 D8 流域提取
// 背景：子汇水区精化在流向栅格上按出水口提取流域，再矢量化并与粗汇水区做同一性裁剪。
// 约束：行 0 位于栅格顶部（ESRI 约定）；坐标与 geom 同一投影坐标系。
package raster

import (
	"fmt"
	"math"

	"hw-catchment/internal/geom"
)

// 默认无效值
const NoData int32 = -9999

// Grid：栅格定义（左下角原点）
type Grid struct {
	XLL, YLL, CellSize float64
	NRows, NCols       int
}

func (g Grid) Extent() geom.BBox {
	return geom.BBox{MinX: g.XLL, MinY: g.YLL, MaxX: g.XLL + float64(g.NCols)*g.CellSize, MaxY: g.YLL + float64(g.NRows)*g.CellSize}
}

func (g Grid) CellCenter(r, c int) geom.Point {
	return geom.Point{X: g.XLL + (float64(c)+0.5)*g.CellSize, Y: g.YLL + (float64(g.NRows-r)-0.5)*g.CellSize}
}

// CellRect：单元格的方形面
func (g Grid) CellRect(r, c int) geom.Polygon {
	x0 := g.XLL + float64(c)*g.CellSize
	y0 := g.YLL + float64(g.NRows-r-1)*g.CellSize
	return geom.Rect(x0, y0, x0+g.CellSize, y0+g.CellSize)
}

// CellOf：点所在单元格；落在栅格外返回 ok=false
func (g Grid) CellOf(p geom.Point) (int, int, bool) {
	c := int(math.Floor((p.X - g.XLL) / g.CellSize))
	r := g.NRows - 1 - int(math.Floor((p.Y-g.YLL)/g.CellSize))
	if r < 0 || r >= g.NRows || c < 0 || c >= g.NCols {
		return 0, 0, false
	}
	return r, c, true
}

func (g Grid) Validate() error {
	if g.NRows <= 0 || g.NCols <= 0 {
		return fmt.Errorf("raster: empty grid %dx%d", g.NRows, g.NCols)
	}
	if g.CellSize <= 0 {
		return fmt.Errorf("raster: invalid cell size %v", g.CellSize)
	}
	return nil
}

// Clip：与包围盒对齐的子栅格（外扩 pad 个单元格，夹到原栅格范围内）
// 返回子栅格及其在原栅格中的行列偏移；无交集时 ok=false
func (g Grid) Clip(b geom.BBox, pad int) (sub Grid, rOff, cOff int, ok bool) {
	if !g.Extent().Intersects(b) {
		return Grid{}, 0, 0, false
	}
	top := g.YLL + float64(g.NRows)*g.CellSize
	c0 := int(math.Floor((b.MinX-g.XLL)/g.CellSize)) - pad
	c1 := int(math.Ceil((b.MaxX-g.XLL)/g.CellSize)) + pad
	r0 := int(math.Floor((top-b.MaxY)/g.CellSize)) - pad
	r1 := int(math.Ceil((top-b.MinY)/g.CellSize)) + pad
	c0, c1 = max(c0, 0), min(c1, g.NCols)
	r0, r1 = max(r0, 0), min(r1, g.NRows)
	if c0 >= c1 || r0 >= r1 {
		return Grid{}, 0, 0, false
	}
	sub = Grid{
		XLL:      g.XLL + float64(c0)*g.CellSize,
		YLL:      g.YLL + float64(g.NRows-r1)*g.CellSize,
		CellSize: g.CellSize,
		NRows:    r1 - r0,
		NCols:    c1 - c0,
	}
	return sub, r0, c0, true
}

// IntGrid：整型栅格
type IntGrid struct {
	Grid
	NoData int32
	Data   []int32
}

// NewIntGrid：全部置为无效值
func NewIntGrid(g Grid) *IntGrid {
	ig := &IntGrid{Grid: g, NoData: NoData, Data: make([]int32, g.NRows*g.NCols)}
	for i := range ig.Data {
		ig.Data[i] = NoData
	}
	return ig
}

func (ig *IntGrid) In(r, c int) bool { return r >= 0 && r < ig.NRows && c >= 0 && c < ig.NCols }

func (ig *IntGrid) At(r, c int) int32 { return ig.Data[r*ig.NCols+c] }

func (ig *IntGrid) Set(r, c int, v int32) { ig.Data[r*ig.NCols+c] = v }

func (ig *IntGrid) Valid(r, c int) bool { return ig.In(r, c) && ig.At(r, c) != ig.NoData }

// Window：按偏移截取子栅格（复制数据）
func (ig *IntGrid) Window(sub Grid, rOff, cOff int) *IntGrid {
	out := NewIntGrid(sub)
	out.NoData = ig.NoData
	for r := 0; r < sub.NRows; r++ {
		for c := 0; c < sub.NCols; c++ {
			if ig.In(r+rOff, c+cOff) {
				out.Set(r, c, ig.At(r+rOff, c+cOff))
			} else {
				out.Set(r, c, out.NoData)
			}
		}
	}
	return out
}

// Count：等于 v 的单元格数
func (ig *IntGrid) Count(v int32) int {
	n := 0
	for _, x := range ig.Data {
		if x == v {
			n++
		}
	}
	return n
}

// Env：一次栅格运算的显式环境（单元大小、对齐栅格、范围、掩膜）
type Env struct {
	CellSize float64
	Snap     *Grid
	Extent   geom.BBox
	Mask     *IntGrid
}

// Frame：按对齐栅格裁剪到范围（外扩一格）
func (e Env) Frame() (Grid, int, int, error) {
	if e.Snap == nil {
		return Grid{}, 0, 0, fmt.Errorf("raster: env has no snap grid")
	}
	if e.CellSize != 0 && e.CellSize != e.Snap.CellSize {
		return Grid{}, 0, 0, fmt.Errorf("raster: cell size %v does not match snap grid %v", e.CellSize, e.Snap.CellSize)
	}
	sub, r, c, ok := e.Snap.Clip(e.Extent, 1)
	if !ok {
		return Grid{}, 0, 0, fmt.Errorf("raster: extent outside snap grid")
	}
	return sub, r, c, nil
}
