package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"

	"hw-catchment/internal/geojson"
	"hw-catchment/internal/logger"
	"hw-catchment/internal/store"

	"github.com/viant/afs"
	"github.com/viant/afs/url"
)

// Sink：阈值结果的持久化目标
type Sink interface {
	Write(ctx context.Context, res *ThresholdResult) error
}

// 输出图层名
func FlowlineName(threshold string) string     { return "hw_Flowline_" + threshold }
func FlowlineDissName(threshold string) string { return "hw_Flowline_" + threshold + "_diss" }
func CatchAreaName(threshold string) string    { return "hw_CatchArea_" + threshold }
func ReportName(threshold string) string       { return "hw_Report_" + threshold }

// FlowlineCollection：未合并的上游流段，每个 (point_id, edge_id) 一条
func FlowlineCollection(res *ThresholdResult) *geojson.FeatureCollection {
	fc := geojson.NewCollection(FlowlineName(res.Threshold))
	for _, e := range res.Lines {
		fc.Add(geojson.LineGeometry(e.Geom), map[string]any{
			"point_id":   e.PointID,
			"edge_id":    e.EdgeID,
			"from_cumul": e.FromCumul,
			"to_cumul":   e.ToCumul,
			"is_source":  e.IsSource,
		})
	}
	return fc
}

func FlowlineDissCollection(res *ThresholdResult) *geojson.FeatureCollection {
	fc := geojson.NewCollection(FlowlineDissName(res.Threshold))
	for _, d := range res.Dissolved {
		fc.Add(geojson.MultiLineGeometry(d.Geom), map[string]any{
			"point_id": d.PointID,
			"edges":    d.Edges,
			"length":   d.Length,
		})
	}
	return fc
}

// CatchAreaCollection：每个点一条；未解析的点几何为 null
func CatchAreaCollection(res *ThresholdResult) *geojson.FeatureCollection {
	fc := geojson.NewCollection(CatchAreaName(res.Threshold))
	for _, a := range res.Resolved.Areas {
		var g *geojson.Geometry
		if len(a.Geom) > 0 {
			g = geojson.MultiPolygonGeometry(a.Geom)
		}
		fc.Add(g, map[string]any{
			"point_id": a.PointID,
			"method":   string(a.Method),
			"keys":     strings.Join(a.Keys, ","),
			"refined":  a.Refined,
			"area_sqm": a.AreaSqM,
		})
	}
	return fc
}

// GeoJSONSink：写到 afs 目录（本地路径、file://、mem:// 等）
type GeoJSONSink struct {
	Dir       string
	Store     *geojson.Store
	Reproject *geojson.Reprojector
	Report    bool
	fs        afs.Service
}

func NewGeoJSONSink(dir string) *GeoJSONSink {
	fs := afs.New()
	return &GeoJSONSink{Dir: dir, Store: geojson.NewStoreWith(fs), Report: true, fs: fs}
}

func (s *GeoJSONSink) Write(ctx context.Context, res *ThresholdResult) error {
	for _, fc := range []*geojson.FeatureCollection{FlowlineCollection(res), FlowlineDissCollection(res), CatchAreaCollection(res)} {
		if s.Reproject != nil {
			if err := s.Reproject.ToWGS84(fc); err != nil {
				return fmt.Errorf("%s: %w", fc.Name, err)
			}
		}
		if err := s.Store.Write(ctx, url.Join(s.Dir, fc.Name+".geojson"), fc); err != nil {
			return err
		}
	}
	if !s.Report || res.Report == nil {
		return nil
	}
	data, err := res.Report.Marshal()
	if err != nil {
		return err
	}
	u := url.Join(s.Dir, ReportName(res.Threshold)+".yaml")
	if err := s.fs.Upload(ctx, u, 0o644, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write %s: %w", u, err)
	}
	return nil
}

// RunStore：运行记录与阈值输出的持久化（*store.Store 实现）
type RunStore interface {
	BeginRun(ctx context.Context, r store.Run) error
	ReplaceThreshold(ctx context.Context, runID, threshold string, out store.Outputs) error
	FinishRun(ctx context.Context, runID, status string, points, warnings int) error
}

var _ RunStore = (*store.Store)(nil)

// PostgresSink：运行记录与各阈值输出写入 PostgreSQL
type PostgresSink struct {
	Store RunStore
}

func (s PostgresSink) Write(ctx context.Context, res *ThresholdResult) error {
	run := store.Run{ID: res.RunID, Threshold: res.Threshold, MaxDist: res.MaxDist, Started: res.Started}
	if err := s.Store.BeginRun(ctx, run); err != nil {
		return fmt.Errorf("begin run: %w", err)
	}
	out := store.Outputs{Lines: res.Lines, Dissolved: res.Dissolved, Areas: res.Resolved.Areas}
	if err := s.Store.ReplaceThreshold(ctx, res.RunID, res.Threshold, out); err != nil {
		if ferr := s.Store.FinishRun(ctx, res.RunID, "failed", len(res.Nets), len(res.Resolved.Warnings)); ferr != nil {
			logger.ForRun(res.RunID, res.Threshold).Error("run_finish_error", "err", ferr)
		}
		return err
	}
	return s.Store.FinishRun(ctx, res.RunID, "ok", len(res.Nets), len(res.Resolved.Warnings))
}

// MemorySink：保留结果（测试与嵌入式调用）
type MemorySink struct {
	mu      sync.Mutex
	Results map[string]*ThresholdResult
}

func (m *MemorySink) Write(_ context.Context, res *ThresholdResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Results == nil {
		m.Results = map[string]*ThresholdResult{}
	}
	m.Results[res.Threshold] = res
	return nil
}

func (m *MemorySink) Get(threshold string) (*ThresholdResult, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.Results[threshold]
	return r, ok
}
