package geom

import "math"

func (l LineString) Length() float64 {
	s := 0.0
	for i := 1; i < len(l); i++ {
		s += Dist(l[i-1], l[i])
	}
	return s
}

func (l LineString) BBox() BBox {
	b := EmptyBBox()
	for _, p := range l {
		b = b.Extend(p)
	}
	return b
}

// Locate：线上离 p 最近的位置；measure 为自首点起算的沿线距离
func (l LineString) Locate(p Point) (Point, float64, float64) {
	best, bestD, bestM := Point{}, math.Inf(1), 0.0
	acc := 0.0
	for i := 1; i < len(l); i++ {
		q, d, t := SegmentDistance(p, l[i-1], l[i])
		seg := Dist(l[i-1], l[i])
		if d < bestD {
			best, bestD, bestM = q, d, acc+t*seg
		}
		acc += seg
	}
	if len(l) == 1 {
		return l[0], Dist(p, l[0]), 0
	}
	return best, bestD, bestM
}

// Interpolate：沿线距离 m 处的点（越界时夹到端点）
func (l LineString) Interpolate(m float64) Point {
	if len(l) == 0 {
		return Point{}
	}
	if m <= 0 {
		return l[0]
	}
	acc := 0.0
	for i := 1; i < len(l); i++ {
		seg := Dist(l[i-1], l[i])
		if acc+seg >= m && seg > 0 {
			t := (m - acc) / seg
			return Point{l[i-1].X + t*(l[i].X-l[i-1].X), l[i-1].Y + t*(l[i].Y-l[i-1].Y)}
		}
		acc += seg
	}
	return l[len(l)-1]
}

// Substring：沿线区间 [from, to] 的子线
func (l LineString) Substring(from, to float64) LineString {
	if from > to {
		from, to = to, from
	}
	total := l.Length()
	from = math.Max(0, from)
	to = math.Min(total, to)
	out := LineString{l.Interpolate(from)}
	acc := 0.0
	for i := 1; i < len(l); i++ {
		acc += Dist(l[i-1], l[i])
		if acc > from && acc < to {
			out = append(out, l[i])
		}
	}
	end := l.Interpolate(to)
	if end != out[len(out)-1] || len(out) == 1 {
		out = append(out, end)
	}
	return out
}

// Midpoint：沿线中点（对应线障碍 SHAPE_MIDDLE_END 定位）
func (l LineString) Midpoint() Point { return l.Interpolate(l.Length() / 2) }

// 文档注释：线合并（不跨汇合点）
// 约束：只有当一个端点恰好是一条线的终点且是另一条线的起点时才相连；
// 输出按输入中首条线的顺序排列，闭合环不合并。
func MergeLines(lines []LineString) MultiLineString {
	starts := make(map[Point][]int)
	ends := make(map[Point][]int)
	for i, l := range lines {
		if len(l) < 2 {
			continue
		}
		starts[snapPoint(l[0])] = append(starts[snapPoint(l[0])], i)
		ends[snapPoint(l[len(l)-1])] = append(ends[snapPoint(l[len(l)-1])], i)
	}
	next := func(i int) int {
		p := snapPoint(lines[i][len(lines[i])-1])
		if len(ends[p]) == 1 && len(starts[p]) == 1 {
			return starts[p][0]
		}
		return -1
	}
	prev := func(i int) int {
		p := snapPoint(lines[i][0])
		if len(ends[p]) == 1 && len(starts[p]) == 1 {
			return ends[p][0]
		}
		return -1
	}
	used := make([]bool, len(lines))
	var out MultiLineString
	for i, l := range lines {
		if used[i] || len(l) < 2 {
			continue
		}
		head := i
		for j := prev(head); j >= 0 && j != i && !used[j]; j = prev(head) {
			head = j
		}
		chain := append(LineString(nil), lines[head]...)
		used[head] = true
		for j := next(head); j >= 0 && !used[j]; j = next(j) {
			chain = append(chain, lines[j][1:]...)
			used[j] = true
		}
		out = append(out, chain)
	}
	return out
}
