package geom

import (
	"math"
	"sort"
)

// 文档注释：均匀网格空间索引（包围盒分桶）
// 背景：点捕捉到流段、线障碍定位、兜底的点面关联都需要候选过滤；网格分桶足以应对流网规模。
// 约束：只做包围盒级别的候选过滤，精确判定由调用方完成；跨越过多格子的要素仍按格子逐一登记。
type GridIndex struct {
	cell    float64
	buckets map[[2]int][]int
	boxes   []BBox
}

func NewGridIndex(cell float64) *GridIndex {
	if cell <= 0 {
		cell = 1
	}
	return &GridIndex{cell: cell, buckets: make(map[[2]int][]int)}
}

func (g *GridIndex) key(x, y float64) [2]int {
	return [2]int{int(math.Floor(x / g.cell)), int(math.Floor(y / g.cell))}
}

// Insert：登记包围盒，返回按插入顺序的编号
func (g *GridIndex) Insert(b BBox) int {
	id := len(g.boxes)
	g.boxes = append(g.boxes, b)
	if b.IsEmpty() {
		return id
	}
	lo, hi := g.key(b.MinX, b.MinY), g.key(b.MaxX, b.MaxY)
	for i := lo[0]; i <= hi[0]; i++ {
		for j := lo[1]; j <= hi[1]; j++ {
			k := [2]int{i, j}
			g.buckets[k] = append(g.buckets[k], id)
		}
	}
	return id
}

// Search：包围盒相交的候选编号（升序、去重）
func (g *GridIndex) Search(b BBox) []int {
	if b.IsEmpty() {
		return nil
	}
	seen := make(map[int]struct{})
	lo, hi := g.key(b.MinX, b.MinY), g.key(b.MaxX, b.MaxY)
	for i := lo[0]; i <= hi[0]; i++ {
		for j := lo[1]; j <= hi[1]; j++ {
			for _, id := range g.buckets[[2]int{i, j}] {
				if _, ok := seen[id]; ok {
					continue
				}
				if g.boxes[id].Intersects(b) {
					seen[id] = struct{}{}
				}
			}
		}
	}
	out := make([]int, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}

func (g *GridIndex) Len() int { return len(g.boxes) }
