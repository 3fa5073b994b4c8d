// 包 migrate：首次运行时创建点映射、运行记录与各阈值输出表
package migrate

import (
	"context"
	"database/sql"

	"hw-catchment/internal/logger"
)

// Statements：建表语句（全部 IF NOT EXISTS，可重复执行）
var Statements = []string{
	`CREATE TABLE IF NOT EXISTS hw_points (
        point_id BIGINT PRIMARY KEY,
        native_id TEXT NOT NULL,
        x DOUBLE PRECISION NOT NULL,
        y DOUBLE PRECISION NOT NULL,
        created_at TIMESTAMPTZ NOT NULL DEFAULT now()
    )`,
	`CREATE TABLE IF NOT EXISTS hw_runs (
        run_id UUID PRIMARY KEY,
        threshold TEXT NOT NULL,
        max_dist_m DOUBLE PRECISION NOT NULL,
        status TEXT NOT NULL,
        points INT NOT NULL DEFAULT 0,
        warnings INT NOT NULL DEFAULT 0,
        started_at TIMESTAMPTZ NOT NULL,
        finished_at TIMESTAMPTZ
    )`,
	`CREATE TABLE IF NOT EXISTS hw_flowlines (
        threshold TEXT NOT NULL,
        point_id BIGINT NOT NULL,
        edge_id TEXT NOT NULL,
        from_cumul DOUBLE PRECISION NOT NULL,
        to_cumul DOUBLE PRECISION NOT NULL,
        is_source BOOLEAN NOT NULL,
        geom JSONB NOT NULL,
        run_id UUID NOT NULL
    )`,
	`CREATE INDEX IF NOT EXISTS idx_hw_flowlines_point ON hw_flowlines(threshold, point_id)`,
	`CREATE TABLE IF NOT EXISTS hw_flowlines_diss (
        threshold TEXT NOT NULL,
        point_id BIGINT NOT NULL,
        length_m DOUBLE PRECISION NOT NULL,
        geom JSONB NOT NULL,
        run_id UUID NOT NULL,
        PRIMARY KEY (threshold, point_id)
    )`,
	`CREATE TABLE IF NOT EXISTS hw_catch_areas (
        threshold TEXT NOT NULL,
        point_id BIGINT NOT NULL,
        method TEXT NOT NULL,
        catchment_keys TEXT[] NOT NULL,
        refined BOOLEAN NOT NULL,
        area_sqm DOUBLE PRECISION NOT NULL,
        geom JSONB,
        run_id UUID NOT NULL,
        PRIMARY KEY (threshold, point_id)
    )`,
}

// EnsureSchema：逐条执行建表语句，失败即返回
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for i, s := range Statements {
		logger.L().Debug("schema_exec", "idx", i)
		if _, err := db.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	logger.L().Debug("schema_done", "statements", len(Statements))
	return nil
}
