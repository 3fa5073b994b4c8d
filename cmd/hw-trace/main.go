// 程序入口：按配置对全部阈值执行上溯追踪与汇水区解析
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"hw-catchment/internal/config"
	"hw-catchment/internal/geojson"
	"hw-catchment/internal/graphdb"
	"hw-catchment/internal/hwerr"
	"hw-catchment/internal/hydro"
	"hw-catchment/internal/logger"
	"hw-catchment/internal/metrics"
	"hw-catchment/internal/migrate"
	"hw-catchment/internal/pipeline"
	"hw-catchment/internal/registry"
	"hw-catchment/internal/store"
	"hw-catchment/internal/trace"
	"hw-catchment/internal/utils"

	"github.com/joho/godotenv"
)

// 文档注释：hw-trace [config.toml]
// 背景：配置文件路径取第一个参数，否则取 HW_CONFIG；两者都没有时只用默认值与环境变量。
// 约束：配置、校验与持久化错误退出码为 1；某个阈值求解失败时其余阈值照常输出，最终退出码为 2。
func main() {
	_ = godotenv.Load(".env")
	l := logger.Setup()
	path := os.Getenv("HW_CONFIG")
	if len(os.Args) > 1 {
		path = os.Args[1]
	}
	cfg, err := config.Load(path)
	if err != nil {
		l.Error("config_error", "path", path, "err", err)
		os.Exit(1)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: logger.AccessMiddleware(l)(mux)}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				l.Error("metrics_listen_error", "addr", cfg.MetricsAddr, "err", err)
			}
		}()
		defer srv.Close()
		l.Info("metrics_listen", "addr", cfg.MetricsAddr)
	}

	st := geojson.NewStore()
	net, err := loadNetwork(ctx, st, cfg)
	if err != nil {
		l.Error("network_load_error", "source", cfg.Network.Source, "err", err)
		os.Exit(1)
	}

	gj := pipeline.NewGeoJSONSink(cfg.Output.Dir)
	gj.Report = cfg.Output.Report
	if cfg.Output.UTMZone > 0 {
		gj.Reproject = &geojson.Reprojector{Zone: cfg.Output.UTMZone, Northern: cfg.Output.Northern}
	}
	sinks := []pipeline.Sink{gj}

	var db *store.Store
	if cfg.Output.Postgres {
		sqlDB, err := utils.OpenPostgresFromEnv()
		if err != nil {
			l.Error("db_open_error", "err", err)
			os.Exit(1)
		}
		defer sqlDB.Close()
		if err := migrate.EnsureSchema(ctx, sqlDB); err != nil {
			l.Error("schema_error", "err", err)
			os.Exit(1)
		}
		db = store.AttachDB(sqlDB)
		sinks = append(sinks, pipeline.PostgresSink{Store: db})
	}

	var cache trace.ResultCache
	if cfg.Cache.Enabled {
		if rdb := utils.OpenRedisFromEnv(); rdb != nil {
			defer rdb.Close()
			ttl, _ := cfg.CacheTTL()
			cache = trace.NewRedisCache(rdb, ttl)
		} else {
			l.Warn("cache_disabled", "reason", "REDIS_HOST not set")
		}
	}

	runner, err := pipeline.NewRunner(ctx, st, cfg, net, cache, sinks)
	if err != nil {
		l.Error("setup_error", "err", err, "fatal", hwerr.Fatal(err))
		os.Exit(1)
	}
	if db != nil {
		if err := registry.Mirror(ctx, db, runner.Points); err != nil {
			l.Error("points_mirror_error", "err", err)
			os.Exit(1)
		}
	}
	runner.Progress = os.Getenv("HW_PROGRESS") != "0"

	sum, err := runner.Run(ctx, cfg.Trace.Thresholds)
	if sum != nil {
		for _, t := range sum.Thresholds {
			l.Info("threshold_summary", "threshold", t.Threshold, "run_id", t.RunID, "edges", t.Edges, "areas", t.Areas, "unresolved", t.Unresolved, "warnings", t.Warnings, "elapsed_ms", t.Elapsed.Milliseconds(), "failed", t.Err != nil)
		}
	}
	if err != nil {
		l.Error("run_error", "err", err)
		if hwerr.IsTraceSolve(err) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func loadNetwork(ctx context.Context, st *geojson.Store, cfg *config.Config) (*hydro.Network, error) {
	if cfg.Network.Source != "graph" {
		return pipeline.LoadNetworkGeoJSON(ctx, st, cfg)
	}
	drv, err := graphdb.NewMemgraphDriver(ctx, cfg.Memgraph.URI, cfg.Memgraph.User, cfg.Memgraph.Password)
	if err != nil {
		return nil, err
	}
	defer drv.Close(ctx)
	return graphdb.LoadNetwork(ctx, drv)
}
