package geom

import (
	"math"

	polyclip "github.com/ctessum/polyclip-go"
)

// 文档注释：多边形融合（按点融合汇水区、按瓦片融合 HUC 区域）
// 背景：输入可能部分重叠（精化后的子汇水区与相邻粗汇水区、接缝处的多个回退汇水区），按一般布尔并处理。
// 约束：
// - 两两归并，避免单个累积结果反复与小面求并；
// - 角点相接的两部分输出为两个独立多边形；
// - 输出按包围盒左下角排序，结果与输入顺序无关。
func Dissolve(polys []Polygon) MultiPolygon {
	parts := make([]polyclip.Polygon, 0, len(polys))
	for _, p := range polys {
		if c := toClip(MultiPolygon{p}); len(c) > 0 {
			parts = append(parts, c)
		}
	}
	if len(parts) == 0 {
		return nil
	}
	for len(parts) > 1 {
		next := make([]polyclip.Polygon, 0, (len(parts)+1)/2)
		for i := 0; i+1 < len(parts); i += 2 {
			next = append(next, parts[i].Construct(polyclip.UNION, parts[i+1]))
		}
		if len(parts)%2 == 1 {
			next = append(next, parts[len(parts)-1])
		}
		parts = next
	}
	return fromClip(parts[0])
}

// Union：两个多部件面的并
func Union(a, b MultiPolygon) MultiPolygon {
	all := make([]Polygon, 0, len(a)+len(b))
	all = append(all, a...)
	all = append(all, b...)
	return Dissolve(all)
}

// Intersect：两个多部件面的交
func Intersect(a, b MultiPolygon) MultiPolygon {
	if len(a) == 0 || len(b) == 0 {
		return nil
	}
	return fromClip(toClip(a).Construct(polyclip.INTERSECTION, toClip(b)))
}

// Difference：a 扣除 b
func Difference(a, b MultiPolygon) MultiPolygon {
	if len(a) == 0 {
		return nil
	}
	if len(b) == 0 {
		return a
	}
	return fromClip(toClip(a).Construct(polyclip.DIFFERENCE, toClip(b)))
}

func toClip(m MultiPolygon) polyclip.Polygon {
	var out polyclip.Polygon
	for _, p := range m {
		for _, r := range p.Rings {
			if len(r) < 3 {
				continue
			}
			c := make(polyclip.Contour, len(r))
			for i, pt := range r {
				c[i] = polyclip.Point{X: pt.X, Y: pt.Y}
			}
			out = append(out, c)
		}
	}
	return out
}

// 文档注释：布尔运算结果转回多部件面
// 背景：结果轮廓不区分外环与洞，也可能在单个顶点处自接；先在重复顶点处拆环，再按嵌套深度判定：偶数层为外环，奇数层为洞。
func fromClip(pc polyclip.Polygon) MultiPolygon {
	var rings []Ring
	for _, c := range pc {
		r := make(Ring, 0, len(c))
		for _, pt := range c {
			p := snapPoint(Point{pt.X, pt.Y})
			if len(r) > 0 && r[len(r)-1] == p {
				continue
			}
			r = append(r, p)
		}
		if len(r) > 1 && r[0] == r[len(r)-1] {
			r = r[:len(r)-1]
		}
		for _, loop := range splitPinched(r) {
			loop = simplifyRing(loop)
			if len(loop) < 3 || math.Abs(loop.SignedArea()) <= snapPrecision {
				continue
			}
			if loop.SignedArea() < 0 {
				loop = loop.reversed()
			}
			rings = append(rings, loop)
		}
	}
	if len(rings) == 0 {
		return nil
	}

	tests := make([]Point, len(rings))
	areas := make([]float64, len(rings))
	for i, r := range rings {
		tests[i] = interiorPoint(r)
		areas[i] = r.SignedArea()
	}
	depth := make([]int, len(rings))
	for i := range rings {
		for j := range rings {
			if i != j && areas[j] > areas[i] && PointInRing(tests[i], rings[j]) {
				depth[i]++
			}
		}
	}
	type shell struct {
		ring  Ring
		area  float64
		depth int
		holes []Ring
	}
	var shells []*shell
	for i, r := range rings {
		if depth[i]%2 == 0 {
			shells = append(shells, &shell{ring: r, area: areas[i], depth: depth[i]})
		}
	}
	for i, r := range rings {
		if depth[i]%2 == 0 {
			continue
		}
		var owner *shell
		for _, s := range shells {
			if s.depth == depth[i]-1 && PointInRing(tests[i], s.ring) && (owner == nil || s.area < owner.area) {
				owner = s
			}
		}
		if owner != nil {
			owner.holes = append(owner.holes, r)
		}
	}
	out := make(MultiPolygon, 0, len(shells))
	for _, s := range shells {
		out = append(out, NewPolygon(append([]Ring{s.ring}, s.holes...)...))
	}
	sortParts(out)
	return out
}

// 在重复顶点处把自接的环拆成简单环
func splitPinched(r Ring) []Ring {
	var out []Ring
	var path Ring
	pos := make(map[Point]int, len(r))
	for _, p := range r {
		if i, ok := pos[p]; ok {
			out = append(out, append(Ring(nil), path[i:]...))
			for _, q := range path[i+1:] {
				delete(pos, q)
			}
			path = path[:i+1]
			continue
		}
		pos[p] = len(path)
		path = append(path, p)
	}
	return append(out, path)
}

// 逆时针环内部的测试点：第一条边中点向左偏移
func interiorPoint(r Ring) Point {
	a, b := r[0], r[1]
	l := Dist(a, b)
	off := math.Max(l*1e-6, snapPrecision*10)
	return Point{(a.X+b.X)/2 - (b.Y-a.Y)/l*off, (a.Y+b.Y)/2 + (b.X-a.X)/l*off}
}
