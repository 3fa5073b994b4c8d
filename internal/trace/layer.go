// 包 trace：按距离上限的上溯追踪
// 背景：每个阈值建一次追踪层（规则、障碍、距离），批量加载起点后一次求解，结果按 point_id 分组。
// 约束：求解要么完整返回要么整体失败；不返回部分结果。
package trace

import (
	"fmt"
	"sort"

	"hw-catchment/internal/geom"
	"hw-catchment/internal/hydro"
	"hw-catchment/internal/registry"
)

// Config：追踪参数
type Config struct {
	SnapTolerance    float64 // 起点捕捉搜索半径（米）
	BarrierTolerance float64 // 障碍捕捉搜索半径（米）
	SolvePerPoint    bool    // 逐点求解（诊断用，结果与批量求解一致）
}

func DefaultConfig() Config {
	return Config{SnapTolerance: 500, BarrierTolerance: 100}
}

// Origin：已捕捉的起点；落在汇流节点上时有多个捕捉位置
type Origin struct {
	PointID int64
	Loc     geom.Point
	Snaps   []hydro.Snap
}

// TracedEdge：到达的流段（或被距离/障碍截断的部分）
type TracedEdge struct {
	PointID   int64           `json:"point_id"`
	EdgeID    string          `json:"edge_id"`
	FromCumul float64         `json:"from_cumul"`
	ToCumul   float64         `json:"to_cumul"`
	IsSource  bool            `json:"is_source"`
	Geom      geom.LineString `json:"geom"`
}

// Layer：一个距离阈值的追踪上下文，可跨调用复用
type Layer struct {
	Net      *hydro.Network
	Rules    hydro.RuleSet
	MaxDist  float64
	Barriers []hydro.BarrierPos
	Unplaced []string
	cfg      Config
	blocks   map[string][]float64
}

// 文档注释：构建追踪层
// 约束：maxDist 必须为正；障碍按中点捕捉到最近流段（不受规则限制），未能定位的障碍 ID 记入 Unplaced。
func NewLayer(net *hydro.Network, rules hydro.RuleSet, maxDist float64, barriers []hydro.Barrier, cfg Config) (*Layer, error) {
	if net == nil {
		return nil, fmt.Errorf("trace layer: no network")
	}
	if maxDist <= 0 {
		return nil, fmt.Errorf("trace layer: max distance must be positive, got %v", maxDist)
	}
	placed, unplaced := hydro.LocateBarriers(net, barriers, cfg.BarrierTolerance)
	l := &Layer{Net: net, Rules: rules, MaxDist: maxDist, Barriers: placed, Unplaced: unplaced, cfg: cfg, blocks: make(map[string][]float64)}
	for _, b := range placed {
		l.blocks[b.EdgeID] = append(l.blocks[b.EdgeID], b.Measure)
	}
	return l, nil
}

// Locate：批量捕捉起点；未捕捉的点 Snaps 为空
func (l *Layer) Locate(points []registry.Point) []Origin {
	out := make([]Origin, 0, len(points))
	for _, p := range points {
		out = append(out, Origin{PointID: p.PointID, Loc: p.Geom, Snaps: l.Net.Nearest(p.Geom, l.cfg.SnapTolerance, l.Rules.Allows)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].PointID < out[j].PointID })
	return out
}

// 流段 [0, hi] 区间内离 hi 最近的障碍位置
func (l *Layer) blockBelow(edgeID string, hi float64) (float64, bool) {
	best, found := 0.0, false
	for _, m := range l.blocks[edgeID] {
		if m <= hi && (!found || m > best) {
			best, found = m, true
		}
	}
	return best, found
}
