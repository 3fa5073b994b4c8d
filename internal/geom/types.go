// 包 geom：平面几何的最小数据结构与运算
// 背景：流网、汇水区与子汇水区都在同一投影坐标系（米）下处理；不依赖外部 GIS 引擎。
// 约束：多边形按 GeoJSON 约定，第一环为外环，其后为洞；内部环不重复首点。
package geom

import "math"

// 点坐标（投影坐标，单位米）
type Point struct{ X, Y float64 }

// 包围盒
type BBox struct{ MinX, MinY, MaxX, MaxY float64 }

// EmptyBBox：空包围盒，任何 Extend 都会替换其边界
func EmptyBBox() BBox {
	return BBox{MinX: math.Inf(1), MinY: math.Inf(1), MaxX: math.Inf(-1), MaxY: math.Inf(-1)}
}

func (b BBox) IsEmpty() bool { return b.MinX > b.MaxX || b.MinY > b.MaxY }

func (b BBox) Extend(p Point) BBox {
	if p.X < b.MinX {
		b.MinX = p.X
	}
	if p.Y < b.MinY {
		b.MinY = p.Y
	}
	if p.X > b.MaxX {
		b.MaxX = p.X
	}
	if p.Y > b.MaxY {
		b.MaxY = p.Y
	}
	return b
}

func (b BBox) Union(o BBox) BBox {
	if o.IsEmpty() {
		return b
	}
	if b.IsEmpty() {
		return o
	}
	return BBox{math.Min(b.MinX, o.MinX), math.Min(b.MinY, o.MinY), math.Max(b.MaxX, o.MaxX), math.Max(b.MaxY, o.MaxY)}
}

func (b BBox) Buffer(d float64) BBox {
	if b.IsEmpty() {
		return b
	}
	return BBox{b.MinX - d, b.MinY - d, b.MaxX + d, b.MaxY + d}
}

func (b BBox) Contains(p Point) bool {
	return p.X >= b.MinX && p.X <= b.MaxX && p.Y >= b.MinY && p.Y <= b.MaxY
}

func (b BBox) Intersects(o BBox) bool {
	if b.IsEmpty() || o.IsEmpty() {
		return false
	}
	return b.MinX <= o.MaxX && o.MinX <= b.MaxX && b.MinY <= o.MaxY && o.MinY <= b.MaxY
}

func Dist(a, b Point) float64 { return math.Hypot(b.X-a.X, b.Y-a.Y) }

// 折线（流段几何，按流向数字化：首点在上游）
type LineString []Point

type MultiLineString []LineString

func (m MultiLineString) Length() float64 {
	s := 0.0
	for _, l := range m {
		s += l.Length()
	}
	return s
}

// 环：不重复首点
type Ring []Point

// Polygon：第一环是外环（逆时针），其后为洞（顺时针）
type Polygon struct {
	Rings []Ring
	BBox  BBox
}

type MultiPolygon []Polygon

// SignedArea：鞋带公式，逆时针为正
func (r Ring) SignedArea() float64 {
	n := len(r)
	if n < 3 {
		return 0
	}
	s := 0.0
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		s += r[j].X*r[i].Y - r[i].X*r[j].Y
	}
	return s / 2
}

func (r Ring) BBox() BBox {
	b := EmptyBBox()
	for _, p := range r {
		b = b.Extend(p)
	}
	return b
}

func (r Ring) reversed() Ring {
	out := make(Ring, len(r))
	for i, p := range r {
		out[len(r)-1-i] = p
	}
	return out
}

// Closed：输出用，补回首点
func (r Ring) Closed() []Point {
	if len(r) == 0 {
		return nil
	}
	out := make([]Point, 0, len(r)+1)
	out = append(out, r...)
	return append(out, r[0])
}

// NewPolygon：规范化环（去掉重复的闭合点，外环逆时针、洞顺时针）并计算包围盒
func NewPolygon(rings ...Ring) Polygon {
	var p Polygon
	for i, r := range rings {
		if len(r) > 1 && r[0] == r[len(r)-1] {
			r = r[:len(r)-1]
		}
		if len(r) < 3 {
			continue
		}
		a := r.SignedArea()
		if (i == 0 && a < 0) || (i > 0 && a > 0) {
			r = r.reversed()
		}
		p.Rings = append(p.Rings, r)
	}
	p.BBox = EmptyBBox()
	if len(p.Rings) > 0 {
		p.BBox = p.Rings[0].BBox()
	}
	return p
}

// Rect：轴对齐矩形
func Rect(minX, minY, maxX, maxY float64) Polygon {
	return NewPolygon(Ring{{minX, minY}, {maxX, minY}, {maxX, maxY}, {minX, maxY}})
}

func (p Polygon) Area() float64 {
	if len(p.Rings) == 0 {
		return 0
	}
	a := math.Abs(p.Rings[0].SignedArea())
	for _, h := range p.Rings[1:] {
		a -= math.Abs(h.SignedArea())
	}
	return a
}

func (m MultiPolygon) Area() float64 {
	s := 0.0
	for _, p := range m {
		s += p.Area()
	}
	return s
}

func (m MultiPolygon) BBox() BBox {
	b := EmptyBBox()
	for _, p := range m {
		b = b.Union(p.BBox)
	}
	return b
}

func (m MultiPolygon) IsEmpty() bool { return len(m) == 0 }

// Explode：多部件拆分为单部件
func (m MultiPolygon) Explode() []Polygon {
	out := make([]Polygon, len(m))
	copy(out, m)
	return out
}
