package raster

import (
	"bytes"
	"strings"
	"testing"

	"hw-catchment/internal/geom"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func southGrid() *IntGrid {
	g := NewIntGrid(Grid{XLL: -10, YLL: -10, CellSize: 10, NRows: 6, NCols: 6})
	for i := range g.Data {
		g.Data[i] = 4
	}
	return g
}

func TestGridGeometry(t *testing.T) {
	g := Grid{XLL: -10, YLL: -10, CellSize: 10, NRows: 6, NCols: 6}
	r, c, ok := g.CellOf(geom.Point{X: 15, Y: 5})
	require.True(t, ok)
	assert.Equal(t, 4, r)
	assert.Equal(t, 2, c)
	assert.Equal(t, geom.Point{X: 15, Y: 5}, g.CellCenter(4, 2))
	assert.Equal(t, geom.BBox{MinX: 10, MinY: 0, MaxX: 20, MaxY: 10}, g.CellRect(4, 2).BBox)
	_, _, ok = g.CellOf(geom.Point{X: 60, Y: 5})
	assert.False(t, ok)

	sub, rOff, cOff, ok := g.Clip(geom.BBox{MinX: 0, MinY: 0, MaxX: 40, MaxY: 40}, 0)
	require.True(t, ok)
	assert.Equal(t, 1, rOff)
	assert.Equal(t, 1, cOff)
	assert.Equal(t, Grid{XLL: 0, YLL: 0, CellSize: 10, NRows: 4, NCols: 4}, sub)
}

func TestASCIIRoundTrip(t *testing.T) {
	src := "ncols 3\nNROWS 2\nxllcenter 5\nyllcenter 5\ncellsize 10\nNODATA_value -1\n1 2 4\n8 -1 128.0\n"
	ig, err := ReadASCII(strings.NewReader(src))
	require.NoError(t, err)
	assert.Equal(t, Grid{XLL: 0, YLL: 0, CellSize: 10, NRows: 2, NCols: 3}, ig.Grid)
	assert.Equal(t, int32(-1), ig.NoData)
	assert.Equal(t, []int32{1, 2, 4, 8, -1, 128}, ig.Data)
	assert.False(t, ig.Valid(1, 1))

	var buf bytes.Buffer
	require.NoError(t, WriteASCII(&buf, ig))
	back, err := ReadASCII(&buf)
	require.NoError(t, err)
	assert.Equal(t, ig, back)
}

func TestASCIIErrors(t *testing.T) {
	_, err := ReadASCII(strings.NewReader("ncols 2\nnrows 1\nxllcorner 0\nyllcorner 0\ncellsize 1\n1\n"))
	assert.ErrorContains(t, err, "expected 2 values")
	_, err = ReadASCII(strings.NewReader("ncols 0\nnrows 1\ncellsize 1\n"))
	assert.Error(t, err)
}

func TestRasterizeAndVectorize(t *testing.T) {
	g := NewIntGrid(Grid{XLL: -10, YLL: -10, CellSize: 10, NRows: 6, NCols: 6})
	n := RasterizePolygon(g, geom.MultiPolygon{geom.Rect(0, 0, 40, 40)}, 7)
	assert.Equal(t, 16, n)
	assert.Equal(t, 16, g.Count(7))
	assert.Equal(t, []int32{7}, Values(g))

	polys := Vectorize(g)
	require.Contains(t, polys, int32(7))
	assert.InDelta(t, 1600, polys[7].Area(), 1e-9)
	assert.Equal(t, geom.BBox{MinX: 0, MinY: 0, MaxX: 40, MaxY: 40}, polys[7].BBox())
}

func TestWatershed(t *testing.T) {
	fdir := southGrid()
	pour, missed := RasterizePoints(fdir.Grid, []ValuePoint{
		{Pt: geom.Point{X: 15, Y: 5}, Value: 20},
		{Pt: geom.Point{X: 35, Y: 5}, Value: 21},
		{Pt: geom.Point{X: 500, Y: 5}, Value: 99},
	})
	require.Len(t, missed, 1)

	mask := NewIntGrid(fdir.Grid)
	RasterizePolygon(mask, geom.MultiPolygon{geom.Rect(0, 0, 40, 40)}, 1)

	ws, err := D8{}.Delineate(fdir, pour, mask)
	require.NoError(t, err)
	assert.Equal(t, 4, ws.Count(20))
	assert.Equal(t, 4, ws.Count(21))

	parts := Vectorize(ws)
	assert.Equal(t, geom.BBox{MinX: 10, MinY: 0, MaxX: 20, MaxY: 40}, parts[20].BBox())
	assert.Equal(t, geom.BBox{MinX: 30, MinY: 0, MaxX: 40, MaxY: 40}, parts[21].BBox())

	unmasked, err := D8{}.Delineate(fdir, pour, nil)
	require.NoError(t, err)
	assert.Equal(t, 5, unmasked.Count(20))
}

func TestWatershedCycleAndShapeMismatch(t *testing.T) {
	g := Grid{XLL: 0, YLL: 0, CellSize: 1, NRows: 1, NCols: 3}
	fdir := &IntGrid{Grid: g, NoData: NoData, Data: []int32{1, 16, 1}}
	pour := NewIntGrid(g)
	pour.Set(0, 2, 5)
	ws, err := D8{}.Delineate(fdir, pour, nil)
	require.NoError(t, err)
	assert.Equal(t, []int32{NoData, NoData, 5}, ws.Data)

	_, err = D8{}.Delineate(fdir, NewIntGrid(Grid{CellSize: 1, NRows: 2, NCols: 2}), nil)
	assert.Error(t, err)
}

func TestFlowAccumulationAndSnap(t *testing.T) {
	fdir := southGrid()
	acc := FlowAccumulation(fdir, nil)
	assert.Equal(t, int32(0), acc.At(0, 0))
	assert.Equal(t, int32(5), acc.At(5, 0))

	r, c := SnapPour(acc, 3, 2, 1)
	assert.Equal(t, 4, r)
	assert.Equal(t, 2, c)
	r, c = SnapPour(acc, 3, 2, 0)
	assert.Equal(t, 3, r)
	assert.Equal(t, 2, c)
}

func TestEnvFrame(t *testing.T) {
	fdir := southGrid()
	env := Env{CellSize: 10, Snap: &fdir.Grid, Extent: geom.BBox{MinX: 0, MinY: 0, MaxX: 40, MaxY: 40}}
	g, r, c, err := env.Frame()
	require.NoError(t, err)
	assert.Equal(t, 0, r)
	assert.Equal(t, 0, c)
	assert.Equal(t, 6, g.NRows)

	env.CellSize = 5
	_, _, _, err = env.Frame()
	assert.Error(t, err)
}
