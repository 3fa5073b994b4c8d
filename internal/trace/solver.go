package trace

import (
	"container/heap"
	"context"
	"fmt"
	"sort"

	"hw-catchment/internal/hydro"
)

// Solver：上溯求解服务；对一批起点返回全部到达流段
type Solver interface {
	Solve(ctx context.Context, origins []Origin, maxDist float64) ([]TracedEdge, error)
}

// 零长度判定（米）
const zeroLen = 1e-9

type item struct {
	edge  *hydro.Edge
	hi    float64 // 进入位置（沿线量测，自上游端起算）
	cumul float64
}

type queue []item

func (q queue) Len() int { return len(q) }
func (q queue) Less(i, j int) bool {
	if q[i].cumul != q[j].cumul {
		return q[i].cumul < q[j].cumul
	}
	return q[i].edge.ID < q[j].edge.ID
}
func (q queue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *queue) Push(x any)   { *q = append(*q, x.(item)) }
func (q *queue) Pop() any {
	old := *q
	it := old[len(old)-1]
	*q = old[:len(old)-1]
	return it
}

// Solve：内存中的批量求解（Layer 即默认求解器）
func (l *Layer) Solve(ctx context.Context, origins []Origin, maxDist float64) ([]TracedEdge, error) {
	if maxDist <= 0 {
		return nil, fmt.Errorf("max distance must be positive, got %v", maxDist)
	}
	var out []TracedEdge
	for _, o := range origins {
		edges, err := l.solveOne(o, maxDist)
		if err != nil {
			return nil, err
		}
		out = append(out, edges...)
	}
	return out, nil
}

// 文档注释：单起点上溯（按累计长度的最短路展开）
// 约束：
// - 起点所在流段只取捕捉位置以上的部分，累计长度自 0 起算；
// - 每条流段只取最短累计长度的一次到达；
// - 跨越距离上限或障碍的流段在截断处切分，几何只保留实际走过的部分；
// - 零长度的部分不输出，但捕捉在流段上游端时仍继续向上游展开。
func (l *Layer) solveOne(o Origin, maxDist float64) ([]TracedEdge, error) {
	var out []TracedEdge
	q := &queue{}
	for _, s := range o.Snaps {
		if _, ok := l.Net.Edge(s.Edge.ID); !ok {
			return nil, fmt.Errorf("origin %d snapped to unknown edge %q", o.PointID, s.Edge.ID)
		}
		heap.Push(q, item{edge: s.Edge, hi: s.Measure, cumul: 0})
	}
	done := make(map[string]bool)
	for q.Len() > 0 {
		it := heap.Pop(q).(item)
		if done[it.edge.ID] || it.cumul >= maxDist && it.cumul > 0 {
			continue
		}
		done[it.edge.ID] = true
		e := it.edge
		geomLen := e.Geom.Length()
		scale := 1.0
		if geomLen > 0 {
			scale = e.Length / geomLen
		}
		lo, blocked := l.blockBelow(e.ID, it.hi)
		to := it.cumul + (it.hi-lo)*scale
		if to > maxDist {
			lo = it.hi - (maxDist-it.cumul)/scale
			to = maxDist
			blocked = true
		}
		if it.hi-lo > zeroLen {
			out = append(out, TracedEdge{
				PointID:   o.PointID,
				EdgeID:    e.ID,
				FromCumul: it.cumul,
				ToCumul:   to,
				IsSource:  it.cumul == 0,
				Geom:      e.Geom.Substring(lo, it.hi),
			})
		}
		if blocked || to >= maxDist {
			continue
		}
		for _, up := range l.Net.Upstream(e.FromNode) {
			if done[up.ID] || !l.Rules.Allows(up) {
				continue
			}
			heap.Push(q, item{edge: up, hi: up.Geom.Length(), cumul: to})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].FromCumul != out[j].FromCumul {
			return out[i].FromCumul < out[j].FromCumul
		}
		return out[i].EdgeID < out[j].EdgeID
	})
	return out, nil
}
