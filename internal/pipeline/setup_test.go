package pipeline

import (
	"context"
	"path/filepath"
	"testing"

	"hw-catchment/internal/config"
	"hw-catchment/internal/fixture"
	"hw-catchment/internal/geojson"
	"hw-catchment/internal/hwerr"
	"hw-catchment/internal/trace"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeWorld(t *testing.T, st *geojson.Store, dir string, w fixture.World) *config.Config {
	t.Helper()
	ctx := context.Background()
	pts := geojson.NewCollection("points")
	for _, p := range w.Points {
		pts.Add(geojson.PointGeometry(p.Geom), map[string]any{"site": p.NativeID})
	}
	net := geojson.NewCollection("flowlines")
	for _, e := range w.Net.Edges {
		net.Add(geojson.LineGeometry(e.Geom), map[string]any{"edge_id": e.ID, "ftype": e.FType})
	}
	cfg := config.Default()
	cfg.Inputs.Points = filepath.Join(dir, "points.geojson")
	cfg.Inputs.Network = filepath.Join(dir, "flowlines.geojson")
	cfg.Inputs.Catchments = filepath.Join(dir, "catchments.geojson")
	cfg.Registry.NativeField = "site"
	cfg.Catchments.IDField = fixture.KeyField
	cfg.Catchments.ZoneField = fixture.TileField
	cfg.Trace.SnapTolerance = 15
	cfg.Trace.Thresholds = []config.Threshold{{Value: 1, Unit: "km"}}
	cfg.Output.ScratchDir = t.TempDir()
	require.NoError(t, st.Write(ctx, cfg.Inputs.Points, pts))
	require.NoError(t, st.Write(ctx, cfg.Inputs.Network, net))
	require.NoError(t, st.Write(ctx, cfg.Inputs.Catchments, w.Catchments))
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestNewRunnerFromFiles(t *testing.T) {
	ctx := context.Background()
	st := geojson.NewStore()
	cfg := writeWorld(t, st, t.TempDir(), fixture.ThreePoints())

	net, err := LoadNetworkGeoJSON(ctx, st, cfg)
	require.NoError(t, err)
	mem := &MemorySink{}
	r, err := NewRunner(ctx, st, cfg, net, trace.NewMemoryCache(), []Sink{mem})
	require.NoError(t, err)
	require.Len(t, r.Points, 3)
	assert.Equal(t, int64(1), r.Points[0].PointID)
	assert.Equal(t, "site-10", r.Points[0].NativeID)

	// 派生的 ID 已写回点数据集
	saved, err := st.Read(ctx, cfg.Inputs.Points)
	require.NoError(t, err)
	id, ok := geojson.Int(saved.Features[2].Properties["point_id"])
	require.True(t, ok)
	assert.Equal(t, int64(3), id)

	_, err = r.Run(ctx, cfg.Trace.Thresholds)
	require.NoError(t, err)
	res, ok := mem.Get("1km")
	require.True(t, ok)
	assert.Equal(t, []string{"A"}, res.Resolved.Areas[0].Keys)
	assert.Equal(t, []string{"C"}, res.Resolved.Areas[2].Keys)

	// 再次组装得到相同的 ID
	again, err := NewRunner(ctx, st, cfg, net, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, r.Points, again.Points)
}

func TestNewRunnerBadIdentityField(t *testing.T) {
	ctx := context.Background()
	st := geojson.NewStore()
	cfg := writeWorld(t, st, t.TempDir(), fixture.ThreePoints())
	net, err := LoadNetworkGeoJSON(ctx, st, cfg)
	require.NoError(t, err)

	cfg.Catchments.IDField = "COMID"
	_, err = NewRunner(ctx, st, cfg, net, nil, nil)
	assert.True(t, hwerr.IsConfiguration(err))

	cfg.Catchments.IDField = fixture.KeyField
	cfg.Registry.IDField = "site"
	_, err = NewRunner(ctx, st, cfg, net, nil, nil)
	assert.True(t, hwerr.IsValidation(err))
}
