package main

import (
	"context"
	"os"

	"hw-catchment/internal/config"
	"hw-catchment/internal/geojson"
	"hw-catchment/internal/graphdb"
	"hw-catchment/internal/hydro"
	"hw-catchment/internal/logger"

	"github.com/joho/godotenv"
)

// 文档注释：把 GeoJSON 流网同步到图数据库
// 背景：hw-trace 在 network.source = "graph" 时从图库整体加载流网；本工具负责首次导入与更新。
// 约束：同步为 MERGE 语义，可重复执行；同步后回读并比较流段数。
func main() {
	_ = godotenv.Load(".env")
	l := logger.Setup()
	url := os.Getenv("HW_NETWORK")
	if len(os.Args) > 1 {
		url = os.Args[1]
	}
	uri := os.Getenv("MEMGRAPH_URI")
	if url == "" || uri == "" {
		l.Error("sync_config_missing", "network", url, "memgraph_uri", uri)
		os.Exit(1)
	}
	ctx := context.Background()
	fc, err := geojson.NewStore().Read(ctx, url)
	if err != nil {
		l.Error("network_read_error", "url", url, "err", err)
		os.Exit(1)
	}
	net, err := hydro.FromGeoJSON(fc, config.Default().NetworkFields())
	if err != nil {
		l.Error("network_build_error", "err", err)
		os.Exit(1)
	}
	drv, err := graphdb.NewMemgraphDriver(ctx, uri, os.Getenv("MEMGRAPH_USER"), os.Getenv("MEMGRAPH_PASSWORD"))
	if err != nil {
		l.Error("graphdb_connect_error", "uri", uri, "err", err)
		os.Exit(1)
	}
	defer drv.Close(ctx)
	if err := drv.BuildIndices(ctx); err != nil {
		l.Error("graphdb_index_error", "err", err)
		os.Exit(1)
	}
	n, err := graphdb.SyncNetwork(ctx, drv, net)
	if err != nil {
		l.Error("network_sync_error", "synced", n, "err", err)
		os.Exit(1)
	}
	back, err := graphdb.LoadNetwork(ctx, drv)
	if err != nil {
		l.Error("network_verify_error", "err", err)
		os.Exit(1)
	}
	if back.Len() < net.Len() {
		l.Warn("network_sync_short", "local", net.Len(), "graph", back.Len())
	}
	l.Info("network_sync_done", "edges", n, "graph_edges", back.Len())
}
