package geom

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPointInPolygon(t *testing.T) {
	sq := Rect(0, 0, 10, 10)
	withHole := NewPolygon(sq.Rings[0], Ring{{4, 4}, {6, 4}, {6, 6}, {4, 6}})
	cases := []struct {
		name string
		poly Polygon
		pt   Point
		want bool
	}{
		{"inside", sq, Point{5, 5}, true},
		{"outside", sq, Point{11, 5}, false},
		{"in hole", withHole, Point{5, 5}, false},
		{"around hole", withHole, Point{2, 2}, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, PointInPolygon(c.pt, c.poly))
		})
	}
	assert.True(t, OnBoundary(Point{10, 5}, sq, 1e-9))
	assert.True(t, MultiPolygon{sq}.Intersects(Point{0, 0}, 1e-9))
	assert.False(t, MultiPolygon{sq}.Intersects(Point{-1, 0}, 1e-9))
}

func TestNewPolygonOrientation(t *testing.T) {
	p := NewPolygon(Ring{{0, 0}, {0, 2}, {2, 2}, {2, 0}, {0, 0}}, Ring{{0.5, 0.5}, {1, 0.5}, {1, 1}, {0.5, 1}})
	require.Len(t, p.Rings, 2)
	assert.Len(t, p.Rings[0], 4)
	assert.Greater(t, p.Rings[0].SignedArea(), 0.0)
	assert.Less(t, p.Rings[1].SignedArea(), 0.0)
	assert.InDelta(t, 3.75, p.Area(), 1e-12)
	assert.Equal(t, BBox{0, 0, 2, 2}, p.BBox)
}

func TestLineOps(t *testing.T) {
	l := LineString{{0, 0}, {10, 0}, {10, 10}}
	assert.Equal(t, 20.0, l.Length())
	assert.Equal(t, Point{10, 0}, l.Midpoint())

	q, d, m := l.Locate(Point{12, 4})
	assert.Equal(t, Point{10, 4}, q)
	assert.InDelta(t, 2, d, 1e-12)
	assert.InDelta(t, 14, m, 1e-12)

	sub := l.Substring(5, 15)
	assert.Equal(t, LineString{{5, 0}, {10, 0}, {10, 5}}, sub)
	assert.InDelta(t, 10, sub.Length(), 1e-12)
	assert.Equal(t, LineString{{0, 0}, {10, 0}}, l.Substring(0, 10))
}

func TestDissolve(t *testing.T) {
	cases := []struct {
		name  string
		in    []Polygon
		parts int
		area  float64
		verts int
	}{
		{"adjacent squares", []Polygon{Rect(0, 0, 1, 1), Rect(1, 0, 2, 1)}, 1, 2, 4},
		{"corner touch", []Polygon{Rect(0, 0, 1, 1), Rect(1, 1, 2, 2)}, 2, 2, 4},
		{"disjoint", []Polygon{Rect(0, 0, 1, 1), Rect(5, 5, 6, 6)}, 2, 2, 4},
		{"t junction", []Polygon{Rect(0, 0, 2, 1), Rect(0, 1, 1, 2), Rect(1, 1, 2, 2)}, 1, 4, 4},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			for _, out := range []MultiPolygon{Dissolve(c.in), DissolveCoverage(c.in)} {
				require.Len(t, out, c.parts)
				assert.InDelta(t, c.area, out.Area(), 1e-9)
				assert.Len(t, out[0].Rings[0], c.verts)
			}
		})
	}
}

func TestDissolveOverlapping(t *testing.T) {
	cases := []struct {
		name  string
		in    []Polygon
		parts int
		area  float64
		bbox  BBox
	}{
		{"half overlap", []Polygon{Rect(0, 0, 10, 10), Rect(5, 0, 15, 10)}, 1, 150, BBox{0, 0, 15, 10}},
		{"contained", []Polygon{Rect(0, 0, 10, 10), Rect(2, 2, 4, 4)}, 1, 100, BBox{0, 0, 10, 10}},
		{"off grid neighbours", []Polygon{Rect(0, 0, 37, 37), Rect(0, 37, 37, 74), Rect(10, 0, 20, 40)}, 1, 2738, BBox{0, 0, 37, 74}},
		{"cross", []Polygon{Rect(0, 4, 10, 6), Rect(4, 0, 6, 10)}, 1, 36, BBox{0, 0, 10, 10}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			out := Dissolve(c.in)
			require.Len(t, out, c.parts)
			assert.InDelta(t, c.area, out.Area(), 1e-6)
			assert.Equal(t, c.bbox, out.BBox())
			for _, p := range c.in {
				assert.True(t, out.Covers(MultiPolygon{p}, 1e-6))
			}
		})
	}
}

func TestDissolveRingWithHole(t *testing.T) {
	var cells []Polygon
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if i == 1 && j == 1 {
				continue
			}
			cells = append(cells, Rect(float64(i), float64(j), float64(i+1), float64(j+1)))
		}
	}
	for _, out := range []MultiPolygon{Dissolve(cells), DissolveCoverage(cells)} {
		require.Len(t, out, 1)
		require.Len(t, out[0].Rings, 2)
		assert.InDelta(t, 8, out.Area(), 1e-9)
		assert.False(t, out.Contains(Point{1.5, 1.5}))
		assert.True(t, out.Contains(Point{0.5, 1.5}))
	}
}

func TestIntersectDifference(t *testing.T) {
	parent := MultiPolygon{Rect(0, 0, 37, 37)}
	cells := MultiPolygon{Rect(10, 0, 20, 40)}

	in := Intersect(cells, parent)
	require.Len(t, in, 1)
	assert.Equal(t, BBox{10, 0, 20, 37}, in.BBox())
	assert.InDelta(t, 370, in.Area(), 1e-6)
	assert.True(t, parent.Covers(in, 1e-6))

	assert.Empty(t, Intersect(MultiPolygon{Rect(50, 50, 60, 60)}, parent))
	assert.Empty(t, Intersect(nil, parent))

	d := Difference(MultiPolygon{Rect(0, 0, 40, 40)}, MultiPolygon{Rect(0, 0, 20, 40)})
	require.Len(t, d, 1)
	assert.Equal(t, BBox{20, 0, 40, 40}, d.BBox())
	assert.InDelta(t, 800, d.Area(), 1e-6)

	// 扣除内部小块得到带洞的面
	holed := Difference(MultiPolygon{Rect(0, 0, 10, 10)}, MultiPolygon{Rect(4, 4, 6, 6)})
	require.Len(t, holed, 1)
	assert.Len(t, holed[0].Rings, 2)
	assert.InDelta(t, 96, holed.Area(), 1e-6)
	assert.False(t, holed.Contains(Point{5, 5}))

	assert.Empty(t, Difference(MultiPolygon{Rect(0, 0, 1, 1)}, MultiPolygon{Rect(0, 0, 1, 1)}))
}

func TestDissolveOrderIndependent(t *testing.T) {
	a := []Polygon{Rect(0, 0, 1, 1), Rect(1, 0, 2, 1), Rect(3, 0, 4, 1)}
	b := []Polygon{a[2], a[1], a[0]}
	assert.Equal(t, Dissolve(a).BBox(), Dissolve(b).BBox())
	assert.InDelta(t, Dissolve(a).Area(), Dissolve(b).Area(), 1e-12)
	assert.Equal(t, 0.0, Dissolve(a)[0].BBox.MinX)
}

func TestGridIndex(t *testing.T) {
	idx := NewGridIndex(10)
	a := idx.Insert(BBox{0, 0, 5, 5})
	b := idx.Insert(BBox{20, 20, 45, 25})
	assert.Equal(t, []int{a}, idx.Search(BBox{4, 4, 6, 6}))
	assert.Equal(t, []int{b}, idx.Search(BBox{40, 21, 41, 22}))
	assert.Empty(t, idx.Search(BBox{100, 100, 101, 101}))
	assert.Equal(t, 2, idx.Len())
}

func TestMergeLines(t *testing.T) {
	a := LineString{{0, 30}, {0, 20}}
	b := LineString{{0, 20}, {0, 10}}
	c := LineString{{0, 10}, {0, 0}}
	trib := LineString{{10, 10}, {0, 10}}

	// 无汇合：三段首尾相接合并为一条
	merged := MergeLines([]LineString{c, a, b})
	require.Len(t, merged, 1)
	assert.Equal(t, LineString{{0, 30}, {0, 20}, {0, 10}, {0, 0}}, merged[0])
	assert.InDelta(t, 30, merged.Length(), 1e-12)

	// 汇合点处不合并
	merged = MergeLines([]LineString{a, b, c, trib})
	assert.Len(t, merged, 3)
	assert.InDelta(t, 40, merged.Length(), 1e-12)
}

func TestExplode(t *testing.T) {
	m := Dissolve([]Polygon{Rect(0, 0, 1, 1), Rect(5, 5, 6, 6), Rect(1, 0, 2, 1)})
	parts := m.Explode()
	require.Len(t, parts, 2)
	assert.InDelta(t, 2, parts[0].Area(), 1e-12)
	assert.InDelta(t, 1, parts[1].Area(), 1e-12)
	parts[0] = Rect(9, 9, 10, 10)
	assert.InDelta(t, 2, m[0].Area(), 1e-12)
}
