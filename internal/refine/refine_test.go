package refine

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"hw-catchment/internal/fixture"
	"hw-catchment/internal/geom"
	"hw-catchment/internal/hwerr"
	"hw-catchment/internal/hydro"
	"hw-catchment/internal/raster"
	"hw-catchment/internal/trace"
	"hw-catchment/internal/workspace"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type parents map[string]Parent

func (p parents) Parent(key string) (Parent, bool) {
	v, ok := p[key]
	return v, ok
}

var catchX = geom.MultiPolygon{geom.Rect(0, 0, 40, 40)}

func duplicateNets(t *testing.T) (fixture.World, []trace.UpstreamNetwork) {
	t.Helper()
	w := fixture.DuplicatePair()
	cfg := trace.DefaultConfig()
	cfg.SnapTolerance = 15
	nets, err := trace.NewEngine(w.Net, hydro.DefaultRules(), cfg).TraceUpstream(context.Background(), w.Points, 1000, nil)
	require.NoError(t, err)
	return w, nets
}

func TestPourPointsSequencing(t *testing.T) {
	_, nets := duplicateNets(t)
	src := parents{"X": {Key: "X", Tile: "0208", Geom: catchX}}

	pours, warns := PourPoints(nets, src)
	assert.Empty(t, warns)
	require.Len(t, pours, 2)
	assert.Equal(t, PourPoint{PointID: 20, ParentKey: "X", Tile: "0208", Seq: 1, Loc: geom.Point{X: 15, Y: 5}}, pours[0])
	assert.Equal(t, 2, pours[1].Seq)

	// 输入顺序不影响编号
	reversed := []trace.UpstreamNetwork{nets[1], nets[0]}
	again, _ := PourPoints(reversed, src)
	assert.Equal(t, pours, again)
}

func TestPourPointsWarnings(t *testing.T) {
	junction := trace.UpstreamNetwork{PointID: 7, Snapped: true, Edges: []trace.TracedEdge{
		{PointID: 7, EdgeID: "u1", IsSource: true, Geom: geom.LineString{{X: 0, Y: 1}, {X: 0, Y: 0}}},
		{PointID: 7, EdgeID: "u2", IsSource: true, Geom: geom.LineString{{X: 1, Y: 0}, {X: 0, Y: 0}}},
	}}
	orphan := trace.UpstreamNetwork{PointID: 8, Snapped: true, Edges: []trace.TracedEdge{
		{PointID: 8, EdgeID: "nowhere", IsSource: true, Geom: geom.LineString{{X: 0, Y: 1}, {X: 0, Y: 0}}},
	}}
	empty := trace.UpstreamNetwork{PointID: 9}
	pours, warns := PourPoints([]trace.UpstreamNetwork{junction, orphan, empty}, parents{})
	assert.Empty(t, pours)
	require.Len(t, warns, 2)
	assert.Equal(t, hwerr.CodeDuplicateStart, warns[0].Code)
	assert.Equal(t, hwerr.CodeMissingParent, warns[1].Code)
}

func TestRefineDuplicatePair(t *testing.T) {
	w, nets := duplicateNets(t)
	src := parents{"X": {Key: "X", Tile: "0208", Geom: catchX}}
	eng := NewEngine(DefaultConfig(), MemDirSource(w.Flowdir))

	subs, warns, err := eng.Refine(context.Background(), nets, src)
	require.NoError(t, err)
	assert.Empty(t, warns)
	require.Len(t, subs, 2)

	assert.Equal(t, int64(20), subs[0].PointID)
	assert.Equal(t, 1, subs[0].Seq)
	assert.Equal(t, geom.BBox{MinX: 10, MinY: 0, MaxX: 20, MaxY: 40}, subs[0].Geom.BBox())
	assert.InDelta(t, 400, subs[0].Geom.Area(), 1e-9)

	assert.Equal(t, int64(21), subs[1].PointID)
	assert.Equal(t, 2, subs[1].Seq)
	assert.Equal(t, geom.BBox{MinX: 30, MinY: 0, MaxX: 40, MaxY: 40}, subs[1].Geom.BBox())

	for _, s := range subs {
		assert.True(t, catchX.Covers(s.Geom, 1e-9), "point %d escapes its catchment", s.PointID)
	}
	assert.Empty(t, geom.Intersect(subs[0].Geom, subs[1].Geom))

	// 并行与重复执行结果一致
	eng.Cfg.Workers = 4
	again, _, err := eng.Refine(context.Background(), nets, src)
	require.NoError(t, err)
	assert.Equal(t, subs, again)
}

func TestRefineOffGridParent(t *testing.T) {
	w, nets := duplicateNets(t)
	parent := geom.MultiPolygon{geom.Rect(0, 0, 37, 37)}
	src := parents{"X": {Key: "X", Tile: "0208", Geom: parent}}

	subs, warns, err := NewEngine(DefaultConfig(), MemDirSource(w.Flowdir)).Refine(context.Background(), nets, src)
	require.NoError(t, err)
	assert.Empty(t, warns)
	require.Len(t, subs, 2)
	assert.Equal(t, geom.BBox{MinX: 10, MinY: 0, MaxX: 20, MaxY: 37}, subs[0].Geom.BBox())
	assert.InDelta(t, 370, subs[0].Geom.Area(), 1e-6)
	assert.Equal(t, geom.BBox{MinX: 30, MinY: 0, MaxX: 37, MaxY: 37}, subs[1].Geom.BBox())
	assert.InDelta(t, 259, subs[1].Geom.Area(), 1e-6)
	for _, s := range subs {
		assert.True(t, parent.Covers(s.Geom, 1e-6), "point %d escapes its catchment", s.PointID)
	}
}

func TestRefineNestedWatersheds(t *testing.T) {
	w := fixture.ConvergingPair()
	cfg := trace.DefaultConfig()
	cfg.SnapTolerance = 15
	nets, err := trace.NewEngine(w.Net, hydro.DefaultRules(), cfg).TraceUpstream(context.Background(), w.Points, 1000, nil)
	require.NoError(t, err)
	src := parents{"X": {Key: "X", Tile: "0208", Geom: catchX}}

	subs, warns, err := NewEngine(DefaultConfig(), MemDirSource(w.Flowdir)).Refine(context.Background(), nets, src)
	require.NoError(t, err)
	assert.Empty(t, warns)
	require.Len(t, subs, 2)

	// 点 21 的流域扣除了上游点 20 的流域
	assert.Equal(t, geom.BBox{MinX: 0, MinY: 0, MaxX: 20, MaxY: 40}, subs[0].Geom.BBox())
	assert.InDelta(t, 800, subs[0].Geom.Area(), 1e-6)
	assert.Equal(t, geom.BBox{MinX: 20, MinY: 0, MaxX: 40, MaxY: 40}, subs[1].Geom.BBox())
	assert.InDelta(t, 800, subs[1].Geom.Area(), 1e-6)

	assert.Empty(t, geom.Intersect(subs[0].Geom, subs[1].Geom))
	union := geom.Union(subs[0].Geom, subs[1].Geom)
	assert.InDelta(t, 1600, union.Area(), 1e-6)
	assert.True(t, catchX.Covers(union, 1e-6))
}

func TestPartitionIdenticalWatersheds(t *testing.T) {
	same := geom.MultiPolygon{geom.Rect(0, 0, 10, 10)}
	subs, warns := partition([]SubCatchment{
		{PointID: 31, ParentKey: "Y", Seq: 2, Geom: same},
		{PointID: 30, ParentKey: "Y", Seq: 1, Geom: same},
		{PointID: 40, ParentKey: "Z", Seq: 1, Geom: geom.MultiPolygon{geom.Rect(20, 0, 30, 10)}},
	})
	require.Len(t, subs, 2)
	assert.Equal(t, int64(30), subs[0].PointID)
	assert.Equal(t, int64(40), subs[1].PointID)
	require.Len(t, warns, 1)
	assert.Equal(t, int64(31), warns[0].PointID)
	assert.Equal(t, hwerr.CodeEmptySubcatchment, warns[0].Code)
}

func TestRefineMissingFlowDir(t *testing.T) {
	_, nets := duplicateNets(t)
	src := parents{"X": {Key: "X", Tile: "0208", Geom: catchX}}
	subs, warns, err := NewEngine(DefaultConfig(), MemDirSource{}).Refine(context.Background(), nets, src)
	require.NoError(t, err)
	assert.Empty(t, subs)
	require.Len(t, warns, 2)
	for _, w := range warns {
		assert.Equal(t, hwerr.CodeMissingFlowDir, w.Code)
	}
}

func TestRefineCancelled(t *testing.T) {
	w, nets := duplicateNets(t)
	src := parents{"X": {Key: "X", Tile: "0208", Geom: catchX}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := NewEngine(DefaultConfig(), MemDirSource(w.Flowdir)).Refine(ctx, nets, src)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAFSDirSourceAndScratch(t *testing.T) {
	ctx := context.Background()
	w, nets := duplicateNets(t)
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "0208"), 0o755))
	var buf bytes.Buffer
	require.NoError(t, raster.WriteASCII(&buf, w.Flowdir["0208"]))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "0208", "fdr.asc"), buf.Bytes(), 0o644))

	dirs := NewAFSDirSource(dir, "")
	g, err := dirs.Load(ctx, "0208")
	require.NoError(t, err)
	assert.Equal(t, w.Flowdir["0208"].Grid, g.Grid)
	_, err = dirs.Load(ctx, "0101")
	assert.ErrorIs(t, err, ErrNoFlowDir)

	scratch, err := workspace.Acquire(ctx, t.TempDir())
	require.NoError(t, err)
	defer scratch.Release(ctx)
	cfg := DefaultConfig()
	cfg.WriteScratch = true
	cfg.PourSnapCells = 1
	eng := NewEngine(cfg, dirs)
	eng.Scratch = scratch
	subs, _, err := eng.Refine(ctx, nets, parents{"X": {Key: "X", Tile: "0208", Geom: catchX}})
	require.NoError(t, err)
	assert.Len(t, subs, 2)
	_, err = os.Stat(scratch.Path("0208_seq2_watershed.asc"))
	assert.NoError(t, err)
}
