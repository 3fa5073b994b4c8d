package geojson

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"hw-catchment/internal/geom"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `{
 "type": "FeatureCollection",
 "features": [
  {"type":"Feature","properties":{"site":"A-1","gauge":10},"geometry":{"type":"Point","coordinates":[21,10]}},
  {"type":"Feature","properties":{"edge_id":"A"},"geometry":{"type":"LineString","coordinates":[[20,40],[20,0]]}},
  {"type":"Feature","properties":null,"geometry":{"type":"Polygon","coordinates":[[[0,0],[0,40],[40,40],[40,0],[0,0]]]}}
 ]
}`

func TestDecodeGeometries(t *testing.T) {
	fc, err := Decode([]byte(sample))
	require.NoError(t, err)
	require.Len(t, fc.Features, 3)

	p, err := fc.Features[0].Geometry.Point()
	require.NoError(t, err)
	assert.Equal(t, geom.Point{X: 21, Y: 10}, p)
	assert.Equal(t, json.Number("10"), fc.Features[0].Properties["gauge"])

	lines, err := fc.Features[1].Geometry.Lines()
	require.NoError(t, err)
	assert.Equal(t, 40.0, lines.Length())

	polys, err := fc.Features[2].Geometry.Polygons()
	require.NoError(t, err)
	assert.InDelta(t, 1600, polys.Area(), 1e-9)
	assert.NotNil(t, fc.Features[2].Properties)

	_, err = fc.Features[0].Geometry.Polygons()
	assert.Error(t, err)
	_, err = Decode([]byte(`{"type":"Feature"}`))
	assert.Error(t, err)
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	url := filepath.Join(t.TempDir(), "areas.geojson")
	fc := NewCollection("hw_CatchArea_2km")
	fc.Add(MultiPolygonGeometry(geom.MultiPolygon{geom.Rect(0, 0, 40, 40)}), map[string]any{"point_id": 10})
	fc.Add(MultiLineGeometry(geom.MultiLineString{{{X: 20, Y: 40}, {X: 20, Y: 0}}}), nil)

	s := NewStore()
	require.NoError(t, s.Write(ctx, url, fc))
	ok, err := s.Exists(ctx, url)
	require.NoError(t, err)
	assert.True(t, ok)

	back, err := s.Read(ctx, url)
	require.NoError(t, err)
	assert.Equal(t, "hw_CatchArea_2km", back.Name)
	polys, err := back.Features[0].Geometry.Polygons()
	require.NoError(t, err)
	assert.Equal(t, geom.BBox{MinX: 0, MinY: 0, MaxX: 40, MaxY: 40}, polys.BBox())
	assert.Equal(t, json.Number("10"), back.Features[0].Properties["point_id"])
}

func TestReprojectToWGS84(t *testing.T) {
	fc := NewCollection("")
	fc.Add(PointGeometry(geom.Point{X: 500000, Y: 0}), nil)
	require.NoError(t, Reprojector{Zone: 17, Northern: true}.ToWGS84(fc))
	p, err := fc.Features[0].Geometry.Point()
	require.NoError(t, err)
	assert.InDelta(t, -81, p.X, 1e-6)
	assert.InDelta(t, 0, p.Y, 1e-6)
}
