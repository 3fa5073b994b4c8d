package geom

import "math"

// 文档注释：点入多边形判定（Even-Odd）
// 背景：兜底关联（点落在哪个汇水区）与子汇水区包含性检查都依赖该判定。
// 约束：射线算法在边界上结果不稳定，需要边界命中时配合 OnBoundary 使用。
func PointInPolygon(pt Point, poly Polygon) bool {
	if len(poly.Rings) == 0 || !poly.BBox.Contains(pt) {
		return false
	}
	if !PointInRing(pt, poly.Rings[0]) {
		return false
	}
	for i := 1; i < len(poly.Rings); i++ {
		if PointInRing(pt, poly.Rings[i]) {
			return false
		}
	}
	return true
}

// 射线法判定点是否在环内
func PointInRing(pt Point, ring Ring) bool {
	n := len(ring)
	if n < 3 {
		return false
	}
	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := ring[i].X, ring[i].Y
		xj, yj := ring[j].X, ring[j].Y
		if ((yi > pt.Y) != (yj > pt.Y)) && (pt.X < (xj-xi)*(pt.Y-yi)/(yj-yi+1e-12)+xi) {
			inside = !inside
		}
	}
	return inside
}

// OnBoundary：点到任一环边的距离不超过 tol
func OnBoundary(pt Point, poly Polygon, tol float64) bool {
	if !poly.BBox.Buffer(tol).Contains(pt) {
		return false
	}
	for _, r := range poly.Rings {
		n := len(r)
		for i := 0; i < n; i++ {
			_, d, _ := SegmentDistance(pt, r[i], r[(i+1)%n])
			if d <= tol {
				return true
			}
		}
	}
	return false
}

func (m MultiPolygon) Contains(pt Point) bool {
	for _, p := range m {
		if PointInPolygon(pt, p) {
			return true
		}
	}
	return false
}

// Intersects：内部或边界命中（空间相交语义）
func (m MultiPolygon) Intersects(pt Point, tol float64) bool {
	for _, p := range m {
		if PointInPolygon(pt, p) || OnBoundary(pt, p, tol) {
			return true
		}
	}
	return false
}

// Covers：other 的每个顶点都在 m 内部或边界上
func (m MultiPolygon) Covers(other MultiPolygon, tol float64) bool {
	for _, p := range other {
		for _, r := range p.Rings {
			for _, v := range r {
				if !m.Intersects(v, tol) {
					return false
				}
			}
		}
	}
	return true
}

// SegmentDistance：点到线段的最近点、距离与线段参数 t∈[0,1]
func SegmentDistance(p, a, b Point) (Point, float64, float64) {
	dx, dy := b.X-a.X, b.Y-a.Y
	l2 := dx*dx + dy*dy
	if l2 == 0 {
		return a, Dist(p, a), 0
	}
	t := ((p.X-a.X)*dx + (p.Y-a.Y)*dy) / l2
	t = math.Max(0, math.Min(1, t))
	q := Point{a.X + t*dx, a.Y + t*dy}
	return q, Dist(p, q), t
}
