package hydro

import (
	"fmt"
	"io"
	"sort"
	"strconv"

	"hw-catchment/internal/geom"
)

// Barrier：线状障碍（如 NHDLine 中的坝，FType 343）
type Barrier struct {
	ID   string
	Geom geom.LineString
}

// BarrierPos：障碍在流段上的阻断位置
type BarrierPos struct {
	BarrierID string
	EdgeID    string
	Measure   float64
}

// 文档注释：障碍定位
// 背景：取障碍线的中点捕捉到最近流段（不受通行规则限制），上溯在该位置截断。
// 约束：tol 范围内没有流段的障碍不生效，ID 以 unplaced 返回；结果按 (流段, 位置) 排序。
func LocateBarriers(n *Network, barriers []Barrier, tol float64) (placed []BarrierPos, unplaced []string) {
	for _, b := range barriers {
		if len(b.Geom) == 0 {
			unplaced = append(unplaced, b.ID)
			continue
		}
		snaps := n.Nearest(b.Geom.Midpoint(), tol, nil)
		if len(snaps) == 0 {
			unplaced = append(unplaced, b.ID)
			continue
		}
		for _, s := range snaps {
			placed = append(placed, BarrierPos{BarrierID: b.ID, EdgeID: s.Edge.ID, Measure: s.Measure})
		}
	}
	sort.Slice(placed, func(i, j int) bool {
		if placed[i].EdgeID != placed[j].EdgeID {
			return placed[i].EdgeID < placed[j].EdgeID
		}
		return placed[i].Measure < placed[j].Measure
	})
	return placed, unplaced
}

// WriteBarrierKey：障碍集合的规范表示（用于缓存键）
func WriteBarrierKey(w io.Writer, placed []BarrierPos) {
	for _, p := range placed {
		fmt.Fprintf(w, "%s@%s;", p.EdgeID, strconv.FormatFloat(p.Measure, 'f', 6, 64))
	}
}

// Fingerprint：按流段 ID 顺序写出拓扑与长度，流网内容变化即指纹变化
func (n *Network) Fingerprint(w io.Writer) {
	ids := make([]string, 0, len(n.Edges))
	for _, e := range n.Edges {
		ids = append(ids, e.ID)
	}
	sort.Strings(ids)
	for _, id := range ids {
		e := n.byID[id]
		fmt.Fprintf(w, "%s|%s|%s|%s|%d|%d\n", e.ID, e.FromNode, e.ToNode, strconv.FormatFloat(e.Length, 'f', 6, 64), e.FType, e.FCode)
	}
}
