package geom

import (
	"math"
	"sort"
)

// 顶点归一化精度（米）；栅格矢量化与矢量输入的共用边界在此精度下视为同一点
const snapPrecision = 1e-6

type dedge struct{ a, b Point }

// 除以整数倍率而非乘以 snapPrecision，整数米坐标保持精确
const snapScale = 1 / snapPrecision

func snapPoint(p Point) Point {
	return Point{math.Round(p.X*snapScale) / snapScale, math.Round(p.Y*snapScale) / snapScale}
}

// 文档注释：栅格单元融合（栅格转面专用）
// 背景：同值单元格方块构成严格的共边覆盖，不存在重叠；按“边抵消”求并：
// 所有环按外环逆时针、洞顺时针取有向边，相邻方块在共享边上方向相反而互相抵消，剩余边重新串成环。
// 约束：
// - 输入须为共边覆盖（互不重叠），一般多边形的并使用 Dissolve；
// - 共线的 T 形接点先做节点化（在其他顶点处拆分线段）；
// - 角点相接的两部分输出为两个独立多边形；
// - 输出按包围盒左下角排序，结果与输入顺序无关。
func DissolveCoverage(polys []Polygon) MultiPolygon {
	var segs []dedge
	vertSet := make(map[Point]struct{})
	var verts []Point
	total := 0.0
	for _, p := range polys {
		np := NewPolygon(p.Rings...)
		for _, r := range np.Rings {
			n := len(r)
			for i := 0; i < n; i++ {
				a, b := snapPoint(r[i]), snapPoint(r[(i+1)%n])
				if a == b {
					continue
				}
				segs = append(segs, dedge{a, b})
				total += Dist(a, b)
				if _, ok := vertSet[a]; !ok {
					vertSet[a] = struct{}{}
					verts = append(verts, a)
				}
			}
		}
	}
	if len(segs) == 0 {
		return nil
	}
	edges := cancelEdges(nodeSegments(segs, verts, total/float64(len(segs))))
	rings := chainRings(edges)
	return assemble(rings)
}

// 在落于线段内部的其他顶点处拆分线段
func nodeSegments(segs []dedge, verts []Point, cell float64) []dedge {
	idx := NewGridIndex(cell)
	for _, v := range verts {
		idx.Insert(BBox{v.X, v.Y, v.X, v.Y})
	}
	type cut struct {
		t float64
		p Point
	}
	out := make([]dedge, 0, len(segs))
	for _, s := range segs {
		dx, dy := s.b.X-s.a.X, s.b.Y-s.a.Y
		l2 := dx*dx + dy*dy
		l := math.Sqrt(l2)
		var cuts []cut
		sb := EmptyBBox().Extend(s.a).Extend(s.b)
		for _, id := range idx.Search(sb) {
			v := verts[id]
			if v == s.a || v == s.b {
				continue
			}
			cross := dx*(v.Y-s.a.Y) - dy*(v.X-s.a.X)
			if math.Abs(cross)/l > snapPrecision {
				continue
			}
			t := ((v.X-s.a.X)*dx + (v.Y-s.a.Y)*dy) / l2
			if t <= 0 || t >= 1 {
				continue
			}
			cuts = append(cuts, cut{t, v})
		}
		if len(cuts) == 0 {
			out = append(out, s)
			continue
		}
		sort.Slice(cuts, func(i, j int) bool { return cuts[i].t < cuts[j].t })
		prev := s.a
		for _, c := range cuts {
			if c.p != prev {
				out = append(out, dedge{prev, c.p})
				prev = c.p
			}
		}
		if prev != s.b {
			out = append(out, dedge{prev, s.b})
		}
	}
	return out
}

// 反向边成对抵消；保持首次出现顺序
func cancelEdges(segs []dedge) []dedge {
	count := make(map[dedge]int)
	var order []dedge
	for _, s := range segs {
		rev := dedge{s.b, s.a}
		if count[rev] > 0 {
			count[rev]--
			continue
		}
		if _, ok := count[s]; !ok {
			order = append(order, s)
		}
		count[s]++
	}
	var out []dedge
	for _, k := range order {
		for i := 0; i < count[k]; i++ {
			out = append(out, k)
		}
	}
	return out
}

func turnAngle(in, out dedge) float64 {
	ix, iy := in.b.X-in.a.X, in.b.Y-in.a.Y
	ox, oy := out.b.X-out.a.X, out.b.Y-out.a.Y
	return math.Atan2(ix*oy-iy*ox, ix*ox+iy*oy)
}

// 串环：在多出边的顶点上取最左转，使角点相接的部分各自成环
func chainRings(edges []dedge) []Ring {
	outgoing := make(map[Point][]int)
	for i, e := range edges {
		outgoing[e.a] = append(outgoing[e.a], i)
	}
	used := make([]bool, len(edges))
	var rings []Ring
	for s := range edges {
		if used[s] {
			continue
		}
		used[s] = true
		start := edges[s].a
		ring := Ring{}
		cur := s
		closed := false
		for steps := 0; steps <= len(edges); steps++ {
			e := edges[cur]
			ring = append(ring, e.a)
			best, bestAng := -1, math.Inf(-1)
			consider := func(i int) {
				if a := turnAngle(e, edges[i]); a > bestAng {
					best, bestAng = i, a
				}
			}
			for _, i := range outgoing[e.b] {
				if !used[i] {
					consider(i)
				}
			}
			if e.b == start {
				consider(s)
			}
			if best == -1 {
				break
			}
			if best == s {
				closed = true
				break
			}
			used[best] = true
			cur = best
		}
		if !closed {
			continue
		}
		if r := simplifyRing(ring); len(r) >= 3 {
			rings = append(rings, r)
		}
	}
	return rings
}

// 去除共线顶点与零宽尖刺
func simplifyRing(r Ring) Ring {
	for len(r) >= 3 {
		n := len(r)
		out := make(Ring, 0, n)
		for i := 0; i < n; i++ {
			p, v, q := r[(i+n-1)%n], r[i], r[(i+1)%n]
			ax, ay := v.X-p.X, v.Y-p.Y
			bx, by := q.X-v.X, q.Y-v.Y
			if v == q || math.Abs(ax*by-ay*bx) <= snapPrecision*(math.Hypot(ax, ay)+math.Hypot(bx, by)) {
				continue
			}
			out = append(out, v)
		}
		if len(out) == n {
			return out
		}
		r = out
	}
	return nil
}

// 外环与洞配对：洞归属包含它的最小外环
func assemble(rings []Ring) MultiPolygon {
	type shell struct {
		ring  Ring
		area  float64
		holes []Ring
	}
	var shells []*shell
	var holes []Ring
	for _, r := range rings {
		a := r.SignedArea()
		switch {
		case a > 0:
			shells = append(shells, &shell{ring: r, area: a})
		case a < 0:
			holes = append(holes, r)
		}
	}
	for _, h := range holes {
		// 环的左侧是面内：取洞第一条边中点向左偏移的测试点
		a, b := h[0], h[1]
		l := Dist(a, b)
		off := math.Max(l*1e-6, snapPrecision*10)
		test := Point{(a.X+b.X)/2 - (b.Y-a.Y)/l*off, (a.Y+b.Y)/2 + (b.X-a.X)/l*off}
		var owner *shell
		for _, s := range shells {
			if PointInRing(test, s.ring) && (owner == nil || s.area < owner.area) {
				owner = s
			}
		}
		if owner != nil {
			owner.holes = append(owner.holes, h)
		}
	}
	out := make(MultiPolygon, 0, len(shells))
	for _, s := range shells {
		rs := append([]Ring{s.ring}, s.holes...)
		out = append(out, NewPolygon(rs...))
	}
	sortParts(out)
	return out
}

// 部件按包围盒左下角排序
func sortParts(out MultiPolygon) {
	sort.SliceStable(out, func(i, j int) bool {
		bi, bj := out[i].BBox, out[j].BBox
		if bi.MinX != bj.MinX {
			return bi.MinX < bj.MinX
		}
		if bi.MinY != bj.MinY {
			return bi.MinY < bj.MinY
		}
		return out[i].Area() < out[j].Area()
	})
}
