package graphdb

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"hw-catchment/internal/geom"
	"hw-catchment/internal/hydro"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type MockDriver struct {
	Queries    []string
	Params     []map[string]interface{}
	MockResult neo4j.EagerResult
	Err        error
}

func (m *MockDriver) ExecuteQuery(ctx context.Context, query string, params map[string]interface{}) (neo4j.EagerResult, error) {
	m.Queries = append(m.Queries, query)
	m.Params = append(m.Params, params)
	if m.Err != nil {
		return neo4j.EagerResult{}, m.Err
	}
	return m.MockResult, nil
}

func (m *MockDriver) BuildIndices(ctx context.Context) error { return nil }

func (m *MockDriver) Close(ctx context.Context) error { return nil }

var keys = []string{"edge_id", "from_node", "to_node", "length", "ftype", "fcode", "xs", "ys"}

func TestLoadNetwork(t *testing.T) {
	drv := &MockDriver{MockResult: neo4j.EagerResult{Records: []*neo4j.Record{
		{Keys: keys, Values: []any{"A", "n1", "n0", 40.0, int64(460), int64(46006), []any{20.0, 20.0}, []any{40.0, 0.0}}},
		{Keys: keys, Values: []any{"U", "n2", "n1", nil, int64(460), nil, []any{20.0, int64(20)}, []any{80.0, 40.0}}},
	}}}
	net, err := LoadNetwork(context.Background(), drv)
	require.NoError(t, err)
	assert.Equal(t, 2, net.Len())
	a, ok := net.Edge("A")
	require.True(t, ok)
	assert.Equal(t, 46006, a.FCode)
	up := net.Upstream(a.FromNode)
	require.Len(t, up, 1)
	assert.Equal(t, "U", up[0].ID)
	assert.Equal(t, 40.0, up[0].Length)
}

func TestLoadNetworkErrors(t *testing.T) {
	drv := &MockDriver{MockResult: neo4j.EagerResult{Records: []*neo4j.Record{
		{Keys: keys, Values: []any{"A", "n1", "n0", 40.0, nil, nil, []any{20.0}, []any{40.0}}},
	}}}
	_, err := LoadNetwork(context.Background(), drv)
	assert.ErrorContains(t, err, "bad coordinates")

	_, err = LoadNetwork(context.Background(), &MockDriver{Err: errors.New("down")})
	assert.Error(t, err)
}

func TestSyncNetwork(t *testing.T) {
	edges := make([]*hydro.Edge, 0, syncBatch+1)
	for i := 0; i <= syncBatch; i++ {
		y := float64(i)
		edges = append(edges, &hydro.Edge{ID: fmt.Sprintf("e%d", i), Geom: geom.LineString{{X: 0, Y: y + 1}, {X: 0, Y: y}}})
	}
	net, err := hydro.NewNetwork(edges)
	require.NoError(t, err)
	drv := &MockDriver{}
	n, err := SyncNetwork(context.Background(), drv, net)
	require.NoError(t, err)
	assert.Equal(t, syncBatch+1, n)
	require.Len(t, drv.Params, 2)
	assert.Len(t, drv.Params[1]["edges"], 1)
	first := drv.Params[0]["edges"].([]map[string]interface{})[0]
	assert.Equal(t, []float64{0, 0}, first["xs"])
}
