// 包 graphdb：图数据库（Memgraph/Neo4j）中的流网存取
// 背景：流网拓扑可长期保存在图库中，由 hw-network-sync 从 GeoJSON 同步，追溯前整体加载到内存。
// 约束：节点 (:HydroNode {id})，流段为关系 [:FLOWS_TO {edge_id, length, ftype, fcode, xs, ys}]，方向即流向。
package graphdb

import (
	"context"
	"fmt"

	"hw-catchment/internal/geom"
	"hw-catchment/internal/hydro"
	"hw-catchment/internal/logger"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

type GraphDriver interface {
	ExecuteQuery(ctx context.Context, query string, params map[string]interface{}) (neo4j.EagerResult, error)
	BuildIndices(ctx context.Context) error
	Close(ctx context.Context) error
}

type MemgraphDriver struct {
	Driver neo4j.DriverWithContext
}

func NewMemgraphDriver(ctx context.Context, uri, username, password string) (*MemgraphDriver, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, err
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, err
	}
	logger.L().Info("graphdb_connected", "uri", uri)
	return &MemgraphDriver{Driver: driver}, nil
}

func (d *MemgraphDriver) Close(ctx context.Context) error {
	return d.Driver.Close(ctx)
}

func (d *MemgraphDriver) ExecuteQuery(ctx context.Context, query string, params map[string]interface{}) (neo4j.EagerResult, error) {
	result, err := neo4j.ExecuteQuery(ctx, d.Driver, query, params, neo4j.EagerResultTransformer)
	if err != nil {
		return neo4j.EagerResult{}, fmt.Errorf("failed to execute query: %w", err)
	}
	return *result, nil
}

func (d *MemgraphDriver) BuildIndices(ctx context.Context) error {
	for _, q := range []string{"CREATE INDEX ON :HydroNode(id);"} {
		if _, err := d.ExecuteQuery(ctx, q, nil); err != nil {
			logger.L().Warn("graphdb_index_error", "query", q, "err", err)
		}
	}
	return nil
}

const loadQuery = `MATCH (a:HydroNode)-[r:FLOWS_TO]->(b:HydroNode)
RETURN r.edge_id AS edge_id, a.id AS from_node, b.id AS to_node, r.length AS length,
       r.ftype AS ftype, r.fcode AS fcode, r.xs AS xs, r.ys AS ys
ORDER BY edge_id`

const syncQuery = `UNWIND $edges AS e
MERGE (a:HydroNode {id: e.from_node})
MERGE (b:HydroNode {id: e.to_node})
MERGE (a)-[r:FLOWS_TO {edge_id: e.edge_id}]->(b)
SET r.length = e.length, r.ftype = e.ftype, r.fcode = e.fcode, r.xs = e.xs, r.ys = e.ys`

// 同步批大小
const syncBatch = 500

// LoadNetwork：整体读取流网并构建内存模型
func LoadNetwork(ctx context.Context, drv GraphDriver) (*hydro.Network, error) {
	res, err := drv.ExecuteQuery(ctx, loadQuery, nil)
	if err != nil {
		return nil, err
	}
	edges := make([]*hydro.Edge, 0, len(res.Records))
	for i, rec := range res.Records {
		e, err := edgeFromRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		edges = append(edges, e)
	}
	return hydro.NewNetwork(edges)
}

func edgeFromRecord(rec *neo4j.Record) (*hydro.Edge, error) {
	get := func(k string) any {
		v, _ := rec.Get(k)
		return v
	}
	id, _ := get("edge_id").(string)
	if id == "" {
		return nil, fmt.Errorf("missing edge_id")
	}
	xs, ys := floats(get("xs")), floats(get("ys"))
	if len(xs) != len(ys) || len(xs) < 2 {
		return nil, fmt.Errorf("edge %s: bad coordinates (%d xs, %d ys)", id, len(xs), len(ys))
	}
	line := make(geom.LineString, len(xs))
	for i := range xs {
		line[i] = geom.Point{X: xs[i], Y: ys[i]}
	}
	e := &hydro.Edge{ID: id, Geom: line}
	e.FromNode, _ = get("from_node").(string)
	e.ToNode, _ = get("to_node").(string)
	if v, ok := get("length").(float64); ok {
		e.Length = v
	}
	if v, ok := get("ftype").(int64); ok {
		e.FType = int(v)
	}
	if v, ok := get("fcode").(int64); ok {
		e.FCode = int(v)
	}
	return e, nil
}

func floats(v any) []float64 {
	switch x := v.(type) {
	case []float64:
		return x
	case []any:
		out := make([]float64, 0, len(x))
		for _, e := range x {
			switch f := e.(type) {
			case float64:
				out = append(out, f)
			case int64:
				out = append(out, float64(f))
			}
		}
		return out
	}
	return nil
}

// SyncNetwork：按批 MERGE 流网；返回写入的流段数
func SyncNetwork(ctx context.Context, drv GraphDriver, net *hydro.Network) (int, error) {
	l := logger.L()
	total := 0
	for start := 0; start < len(net.Edges); start += syncBatch {
		end := min(start+syncBatch, len(net.Edges))
		batch := make([]map[string]interface{}, 0, end-start)
		for _, e := range net.Edges[start:end] {
			xs := make([]float64, len(e.Geom))
			ys := make([]float64, len(e.Geom))
			for i, p := range e.Geom {
				xs[i], ys[i] = p.X, p.Y
			}
			batch = append(batch, map[string]interface{}{
				"edge_id":   e.ID,
				"from_node": e.FromNode,
				"to_node":   e.ToNode,
				"length":    e.Length,
				"ftype":     int64(e.FType),
				"fcode":     int64(e.FCode),
				"xs":        xs,
				"ys":        ys,
			})
		}
		if _, err := drv.ExecuteQuery(ctx, syncQuery, map[string]interface{}{"edges": batch}); err != nil {
			return total, fmt.Errorf("sync edges %d-%d: %w", start, end, err)
		}
		total += len(batch)
		l.Debug("graphdb_sync_batch", "from", start, "to", end)
	}
	return total, nil
}
