// 包 hydro：有向水系网络模型（流段、节点拓扑、通行规则、障碍）
// 背景：流段按流向数字化（首点在上游），上溯沿“汇入当前流段上游节点”的流段展开。
// 约束：网络构建后只读；流段 ID 唯一且与汇水区 catchment_key 一一对应。
package hydro

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"hw-catchment/internal/geom"
)

// Edge：流段
type Edge struct {
	ID       string
	FromNode string
	ToNode   string
	Length   float64
	FType    int
	FCode    int
	Geom     geom.LineString
}

// Snap：点在流段上的捕捉位置；Measure 为自流段上游端起算的沿线距离
type Snap struct {
	Edge    *Edge
	Point   geom.Point
	Measure float64
	Dist    float64
}

// Network：只读流网
type Network struct {
	Edges    []*Edge
	byID     map[string]*Edge
	upstream map[string][]*Edge
	index    *geom.GridIndex
}

// 由端点坐标派生节点 ID（节点字段缺失时使用）
func nodeKey(p geom.Point) string {
	return strconv.FormatFloat(math.Round(p.X*1e6)/1e6, 'f', -1, 64) + "," + strconv.FormatFloat(math.Round(p.Y*1e6)/1e6, 'f', -1, 64)
}

// 文档注释：构建流网
// 约束：
// - 流段 ID 非空且唯一，几何至少两个点；
// - FromNode/ToNode 缺失时由首末点坐标派生（重合端点视为同一节点）；
// - Length 缺失（<=0）时取几何长度。
func NewNetwork(edges []*Edge) (*Network, error) {
	n := &Network{byID: make(map[string]*Edge, len(edges)), upstream: make(map[string][]*Edge)}
	total := 0.0
	for _, e := range edges {
		if e.ID == "" {
			return nil, fmt.Errorf("network: edge with empty id")
		}
		if _, dup := n.byID[e.ID]; dup {
			return nil, fmt.Errorf("network: duplicate edge id %q", e.ID)
		}
		if len(e.Geom) < 2 {
			return nil, fmt.Errorf("network: edge %q has %d vertices", e.ID, len(e.Geom))
		}
		if e.FromNode == "" {
			e.FromNode = nodeKey(e.Geom[0])
		}
		if e.ToNode == "" {
			e.ToNode = nodeKey(e.Geom[len(e.Geom)-1])
		}
		if e.Length <= 0 {
			e.Length = e.Geom.Length()
		}
		n.byID[e.ID] = e
		n.Edges = append(n.Edges, e)
		n.upstream[e.ToNode] = append(n.upstream[e.ToNode], e)
		b := e.Geom.BBox()
		total += b.MaxX - b.MinX + b.MaxY - b.MinY
	}
	cell := 1.0
	if len(edges) > 0 && total > 0 {
		cell = total / float64(len(edges))
	}
	n.index = geom.NewGridIndex(cell)
	for _, e := range n.Edges {
		n.index.Insert(e.Geom.BBox())
	}
	for _, ups := range n.upstream {
		sort.Slice(ups, func(i, j int) bool { return ups[i].ID < ups[j].ID })
	}
	return n, nil
}

func (n *Network) Edge(id string) (*Edge, bool) {
	e, ok := n.byID[id]
	return e, ok
}

// Upstream：汇入节点的流段（按 ID 排序）
func (n *Network) Upstream(node string) []*Edge { return n.upstream[node] }

func (n *Network) Len() int { return len(n.Edges) }

// 文档注释：捕捉点到最近的合格流段
// 约束：
// - 只在 tol 范围内搜索；eligible 为 nil 表示所有流段合格；
// - 与最近距离相差不超过 1e-9 的流段全部返回（点正好落在汇流节点时会命中多条流段）；
// - 结果按流段 ID 排序。
func (n *Network) Nearest(p geom.Point, tol float64, eligible func(*Edge) bool) []Snap {
	box := geom.BBox{MinX: p.X - tol, MinY: p.Y - tol, MaxX: p.X + tol, MaxY: p.Y + tol}
	var snaps []Snap
	best := math.Inf(1)
	for _, id := range n.index.Search(box) {
		e := n.Edges[id]
		if eligible != nil && !eligible(e) {
			continue
		}
		q, d, m := e.Geom.Locate(p)
		if d > tol {
			continue
		}
		snaps = append(snaps, Snap{Edge: e, Point: q, Measure: m, Dist: d})
		if d < best {
			best = d
		}
	}
	out := snaps[:0]
	for _, s := range snaps {
		if s.Dist-best <= 1e-9 {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Edge.ID < out[j].Edge.ID })
	return out
}
