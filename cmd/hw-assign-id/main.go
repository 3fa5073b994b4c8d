package main

import (
	"context"
	"os"
	"strconv"

	"hw-catchment/internal/geojson"
	"hw-catchment/internal/logger"
	"hw-catchment/internal/migrate"
	"hw-catchment/internal/registry"
	"hw-catchment/internal/store"
	"hw-catchment/internal/utils"

	"github.com/joho/godotenv"
)

// 文档注释：为点数据集分配稳定的 point_id
// 背景：追踪前的独立步骤；HW_ID_FIELD 为空时由行号派生并写回数据集，否则只校验该字段。
// 约束：HW_POSTGRES=true 时同时登记到 hw_points，已有映射冲突即失败（ID 不重分配）。
func main() {
	_ = godotenv.Load(".env")
	l := logger.Setup()
	url := os.Getenv("HW_POINTS")
	if len(os.Args) > 1 {
		url = os.Args[1]
	}
	if url == "" {
		l.Error("points_url_missing")
		os.Exit(1)
	}
	ctx := context.Background()
	st := geojson.NewStore()
	ds, err := registry.Open(ctx, st, url, os.Getenv("HW_NATIVE_FIELD"))
	if err != nil {
		l.Error("points_open_error", "url", url, "err", err)
		os.Exit(1)
	}
	idField := os.Getenv("HW_ID_FIELD")
	field, err := registry.AssignID(ds, idField)
	if err != nil {
		l.Error("assign_id_error", "err", err)
		os.Exit(1)
	}
	if idField == "" {
		if err := ds.Save(ctx, st); err != nil {
			l.Error("points_save_error", "url", url, "err", err)
			os.Exit(1)
		}
	}
	pts, err := ds.Points(field)
	if err != nil {
		l.Error("points_read_error", "err", err)
		os.Exit(1)
	}
	l.Info("assign_id_done", "url", url, "field", field, "points", len(pts))

	if ok, _ := strconv.ParseBool(os.Getenv("HW_POSTGRES")); !ok {
		return
	}
	db, err := utils.OpenPostgresFromEnv()
	if err != nil {
		l.Error("db_open_error", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := migrate.EnsureSchema(ctx, db); err != nil {
		l.Error("schema_error", "err", err)
		os.Exit(1)
	}
	if err := registry.Mirror(ctx, store.AttachDB(db), pts); err != nil {
		l.Error("points_mirror_error", "err", err)
		os.Exit(1)
	}
	l.Info("points_mirrored", "count", len(pts))
}
