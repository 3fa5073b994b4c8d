package hydro

import (
	"bytes"
	"testing"

	"hw-catchment/internal/geojson"
	"hw-catchment/internal/geom"
	"hw-catchment/internal/hwerr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// main 干流 (0,0)<-(0,100)，两条支流汇入 (0,100)
func yNetwork(t *testing.T) *Network {
	t.Helper()
	n, err := NewNetwork([]*Edge{
		{ID: "main", Geom: geom.LineString{{X: 0, Y: 100}, {X: 0, Y: 0}}},
		{ID: "left", Geom: geom.LineString{{X: -50, Y: 150}, {X: 0, Y: 100}}},
		{ID: "right", Geom: geom.LineString{{X: 50, Y: 150}, {X: 0, Y: 100}}, FType: FTypePipeline},
	})
	require.NoError(t, err)
	return n
}

func TestNetworkTopology(t *testing.T) {
	n := yNetwork(t)
	main, ok := n.Edge("main")
	require.True(t, ok)
	assert.Equal(t, 100.0, main.Length)
	ups := n.Upstream(main.FromNode)
	require.Len(t, ups, 2)
	assert.Equal(t, "left", ups[0].ID)
	assert.Equal(t, "right", ups[1].ID)
	assert.Empty(t, n.Upstream(ups[0].FromNode))

	_, err := NewNetwork([]*Edge{{ID: "a", Geom: geom.LineString{{X: 0, Y: 0}, {X: 1, Y: 0}}}, {ID: "a", Geom: geom.LineString{{X: 0, Y: 0}, {X: 1, Y: 0}}}})
	assert.ErrorContains(t, err, "duplicate")
}

func TestNearest(t *testing.T) {
	n := yNetwork(t)
	snaps := n.Nearest(geom.Point{X: 3, Y: 40}, 10, nil)
	require.Len(t, snaps, 1)
	assert.Equal(t, "main", snaps[0].Edge.ID)
	assert.Equal(t, geom.Point{X: 0, Y: 40}, snaps[0].Point)
	assert.InDelta(t, 60, snaps[0].Measure, 1e-9)

	assert.Empty(t, n.Nearest(geom.Point{X: 30, Y: 40}, 10, nil))

	// 汇流节点上命中三条流段；规则排除管道后剩两条
	atJunction := n.Nearest(geom.Point{X: 0, Y: 100}, 1, nil)
	assert.Len(t, atJunction, 3)
	rules := DefaultRules()
	assert.Len(t, n.Nearest(geom.Point{X: 0, Y: 100}, 1, rules.Allows), 2)
}

func TestRules(t *testing.T) {
	rules := DefaultRules()
	assert.False(t, rules.Allows(&Edge{FType: FTypePipeline}))
	assert.False(t, rules.Allows(&Edge{FType: FTypeStream, FCode: FCodeIntermittent}))
	assert.True(t, rules.Allows(&Edge{FType: FTypeStream, FCode: 46006}))

	relaxed, err := ParseRules([]string{"NoEphemeral"})
	require.NoError(t, err)
	assert.True(t, relaxed.Allows(&Edge{FType: FTypePipeline}))
	assert.NotEqual(t, rules.Key(), relaxed.Key())

	_, err = ParseRules([]string{"NoRivers"})
	assert.Error(t, err)
}

func TestBarriers(t *testing.T) {
	n := yNetwork(t)
	placed, unplaced := LocateBarriers(n, []Barrier{
		{ID: "dam1", Geom: geom.LineString{{X: -10, Y: 50}, {X: 10, Y: 50}}},
		{ID: "far", Geom: geom.LineString{{X: 500, Y: 500}, {X: 510, Y: 500}}},
	}, 100)
	require.Len(t, placed, 1)
	assert.Equal(t, BarrierPos{BarrierID: "dam1", EdgeID: "main", Measure: 50}, placed[0])
	assert.Equal(t, []string{"far"}, unplaced)

	var a, b bytes.Buffer
	WriteBarrierKey(&a, placed)
	WriteBarrierKey(&b, nil)
	assert.NotEqual(t, a.String(), b.String())
}

func TestFromGeoJSON(t *testing.T) {
	fc, err := geojson.Decode([]byte(`{"type":"FeatureCollection","features":[
	 {"type":"Feature","properties":{"edge_id":101,"ftype":460,"fcode":46006},"geometry":{"type":"LineString","coordinates":[[0,10],[0,0]]}},
	 {"type":"Feature","properties":{"edge_id":"102","ftype":343},"geometry":{"type":"MultiLineString","coordinates":[[[0,20],[0,15]],[[0,15],[0,10]]]}}
	]}`))
	require.NoError(t, err)
	n, err := FromGeoJSON(fc, DefaultFields())
	require.NoError(t, err)
	e, ok := n.Edge("102")
	require.True(t, ok)
	assert.Len(t, e.Geom, 3)
	assert.Empty(t, n.Upstream(e.FromNode))
	up := n.Upstream(n.Edges[0].FromNode)
	require.Len(t, up, 1)
	assert.Equal(t, "102", up[0].ID)

	barriers, err := BarriersFromGeoJSON(fc, "edge_id", "ftype")
	require.NoError(t, err)
	require.Len(t, barriers, 1)
	assert.Equal(t, "102", barriers[0].ID)

	fc.Features[0].Properties = map[string]any{}
	_, err = FromGeoJSON(fc, DefaultFields())
	assert.True(t, hwerr.IsConfiguration(err))
}
