package pipeline

import (
	"context"
	"fmt"

	"hw-catchment/internal/catchment"
	"hw-catchment/internal/config"
	"hw-catchment/internal/geojson"
	"hw-catchment/internal/hydro"
	"hw-catchment/internal/logger"
	"hw-catchment/internal/refine"
	"hw-catchment/internal/registry"
	"hw-catchment/internal/trace"
)

// CatchmentEntry：由配置得到的汇水区类型描述
func CatchmentEntry(cfg *config.Config) catchment.TypeEntry {
	c := cfg.Catchments
	return catchment.TypeEntry{
		Kind:        catchment.KindCatchment,
		Name:        c.Name,
		Data:        cfg.Inputs.Catchments,
		IDField:     c.IDField,
		ZoneField:   c.ZoneField,
		JoinDataset: c.JoinDataset,
	}
}

// LoadPoints：打开点数据集并确定 point_id；由行号派生时把新 ID 写回数据集
func LoadPoints(ctx context.Context, st *geojson.Store, cfg *config.Config) ([]registry.Point, error) {
	ds, err := registry.Open(ctx, st, cfg.Inputs.Points, cfg.Registry.NativeField)
	if err != nil {
		return nil, err
	}
	field, err := registry.AssignID(ds, cfg.Registry.IDField)
	if err != nil {
		return nil, err
	}
	if cfg.Registry.IDField == "" {
		if err := ds.Save(ctx, st); err != nil {
			return nil, fmt.Errorf("save point ids: %w", err)
		}
	}
	pts, err := ds.Points(field)
	if err != nil {
		return nil, err
	}
	logger.L().Info("points_loaded", "url", cfg.Inputs.Points, "id_field", field, "count", len(pts))
	return pts, nil
}

// LoadNetworkGeoJSON：从 GeoJSON 构建流网
func LoadNetworkGeoJSON(ctx context.Context, st *geojson.Store, cfg *config.Config) (*hydro.Network, error) {
	fc, err := st.Read(ctx, cfg.Inputs.Network)
	if err != nil {
		return nil, err
	}
	return hydro.FromGeoJSON(fc, cfg.NetworkFields())
}

// NewRunner：由配置与已加载的流网组装阈值循环；cache 与 sinks 由调用方决定
func NewRunner(ctx context.Context, st *geojson.Store, cfg *config.Config, net *hydro.Network, cache trace.ResultCache, sinks []Sink) (*Runner, error) {
	l := logger.L()
	pts, err := LoadPoints(ctx, st, cfg)
	if err != nil {
		return nil, err
	}
	entry := CatchmentEntry(cfg)
	cfc, err := st.Read(ctx, cfg.Inputs.Catchments)
	if err != nil {
		return nil, err
	}
	layer, err := catchment.FromGeoJSON(cfc, entry)
	if err != nil {
		return nil, err
	}
	var barriers []hydro.Barrier
	if cfg.Inputs.Barriers != "" {
		bfc, err := st.Read(ctx, cfg.Inputs.Barriers)
		if err != nil {
			return nil, err
		}
		if barriers, err = hydro.BarriersFromGeoJSON(bfc, cfg.Trace.BarrierIDField, cfg.Trace.BarrierFTypeField); err != nil {
			return nil, err
		}
	}
	eng := trace.NewEngine(net, cfg.RuleSet(), cfg.TraceConfig())
	eng.Cache = cache
	r := &Runner{
		Trace:      eng,
		Layer:      layer,
		Entry:      entry,
		Points:     pts,
		Barriers:   barriers,
		Precise:    cfg.Refine.Precise,
		Sinks:      sinks,
		ScratchDir: cfg.Output.ScratchDir,
	}
	if cfg.Refine.Precise {
		rc := cfg.RefineConfig()
		r.Refine = refine.NewEngine(rc, refine.NewAFSDirSource(rc.SourceDir, rc.FdirName))
	}
	l.Info("runner_ready", "points", len(pts), "edges", net.Len(), "catchments", layer.Len(), "barriers", len(barriers), "rules", cfg.RuleSet().Names, "precise", cfg.Refine.Precise)
	return r, nil
}
