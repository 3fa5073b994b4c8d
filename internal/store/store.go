// 包 store：PostgreSQL 数据访问层；点 ID 映射、运行记录与各阈值输出
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"hw-catchment/internal/catchment"
	"hw-catchment/internal/geojson"
	"hw-catchment/internal/logger"
	"hw-catchment/internal/registry"
	"hw-catchment/internal/trace"

	"github.com/lib/pq"
)

// Store：数据库访问入口
type Store struct {
	db *sql.DB
}

func AttachDB(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// LookupPoints：按 point_id 读取已登记的 native_id
func (s *Store) LookupPoints(ctx context.Context, ids []int64) (map[int64]string, error) {
	out := make(map[int64]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT point_id, native_id FROM hw_points WHERE point_id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var native string
		if err := rows.Scan(&id, &native); err != nil {
			return nil, err
		}
		out[id] = native
	}
	return out, rows.Err()
}

// UpsertPoints：登记点；已存在的 point_id 只更新坐标
func (s *Store) UpsertPoints(ctx context.Context, pts []registry.Point) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO hw_points(point_id, native_id, x, y) VALUES($1,$2,$3,$4)
        ON CONFLICT (point_id) DO UPDATE SET x=EXCLUDED.x, y=EXCLUDED.y`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, p := range pts {
		if _, err := stmt.ExecContext(ctx, p.PointID, geojson.String(p.NativeID), p.Geom.X, p.Geom.Y); err != nil {
			return fmt.Errorf("upsert point %d: %w", p.PointID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	logger.L().Debug("points_upserted", "count", len(pts))
	return nil
}

// Run：一次阈值运行的记录
type Run struct {
	ID        string
	Threshold string
	MaxDist   float64
	Started   time.Time
}

func (s *Store) BeginRun(ctx context.Context, r Run) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO hw_runs(run_id, threshold, max_dist_m, status, started_at) VALUES($1,$2,$3,'running',$4)`,
		r.ID, r.Threshold, r.MaxDist, r.Started)
	return err
}

// FinishRun：status 为 ok 或 failed
func (s *Store) FinishRun(ctx context.Context, runID, status string, points, warnings int) error {
	_, err := s.db.ExecContext(ctx, `UPDATE hw_runs SET status=$2, points=$3, warnings=$4, finished_at=now() WHERE run_id=$1`,
		runID, status, points, warnings)
	return err
}

// Outputs：一个阈值的全部输出
type Outputs struct {
	Lines     []trace.TracedEdge
	Dissolved []trace.DissolvedLine
	Areas     []catchment.Area
}

// 文档注释：替换一个阈值的输出
// 约束：删除与写入在同一事务内完成，读者只会看到旧结果或新结果；未解析的点写入 geom 为 NULL 的行。
func (s *Store) ReplaceThreshold(ctx context.Context, runID, threshold string, out Outputs) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, t := range []string{"hw_flowlines", "hw_flowlines_diss", "hw_catch_areas"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+t+" WHERE threshold=$1", threshold); err != nil {
			return fmt.Errorf("clear %s: %w", t, err)
		}
	}

	lines, err := tx.PrepareContext(ctx, `INSERT INTO hw_flowlines(threshold, point_id, edge_id, from_cumul, to_cumul, is_source, geom, run_id)
        VALUES($1,$2,$3,$4,$5,$6,$7,$8)`)
	if err != nil {
		return err
	}
	defer lines.Close()
	for _, e := range out.Lines {
		g, err := json.Marshal(geojson.LineGeometry(e.Geom))
		if err != nil {
			return err
		}
		if _, err := lines.ExecContext(ctx, threshold, e.PointID, e.EdgeID, e.FromCumul, e.ToCumul, e.IsSource, string(g), runID); err != nil {
			return fmt.Errorf("insert flowline %d/%s: %w", e.PointID, e.EdgeID, err)
		}
	}

	for _, d := range out.Dissolved {
		g, err := json.Marshal(geojson.MultiLineGeometry(d.Geom))
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO hw_flowlines_diss(threshold, point_id, length_m, geom, run_id) VALUES($1,$2,$3,$4,$5)`,
			threshold, d.PointID, d.Length, string(g), runID); err != nil {
			return fmt.Errorf("insert dissolved line %d: %w", d.PointID, err)
		}
	}

	for _, a := range out.Areas {
		g, err := areaJSON(a)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO hw_catch_areas(threshold, point_id, method, catchment_keys, refined, area_sqm, geom, run_id)
            VALUES($1,$2,$3,$4,$5,$6,$7,$8)`,
			threshold, a.PointID, string(a.Method), pq.Array(keysOf(a)), a.Refined, a.AreaSqM, g, runID); err != nil {
			return fmt.Errorf("insert catchment area %d: %w", a.PointID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	logger.L().Info("threshold_persisted", "threshold", threshold, "lines", len(out.Lines), "dissolved", len(out.Dissolved), "areas", len(out.Areas))
	return nil
}

func keysOf(a catchment.Area) []string {
	if a.Keys == nil {
		return []string{}
	}
	return a.Keys
}

// areaJSON：未解析的点返回 NULL
func areaJSON(a catchment.Area) (sql.NullString, error) {
	if len(a.Geom) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(geojson.MultiPolygonGeometry(a.Geom))
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}
