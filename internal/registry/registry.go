// 包 registry：采样点登记与稳定 ID 分配
// 背景：所有输出（流段、融合流段、汇水区）以 point_id 回连到采样点；ID 一经分配不再改变。
// 约束：point_id 为正整数且不超过 int32 上限（出水口栅格以 point_id 为像元值）。
package registry

import (
	"context"
	"fmt"
	"math"

	"hw-catchment/internal/geojson"
	"hw-catchment/internal/geom"
	"hw-catchment/internal/hwerr"
)

// 未指定 ID 字段时写入的属性名
const DefaultIDField = "point_id"

// Point：登记后的采样点
type Point struct {
	NativeID any
	PointID  int64
	Geom     geom.Point
}

// Dataset：点数据集（原地修改，Save 写回）
type Dataset struct {
	URL         string
	NativeField string
	FC          *geojson.FeatureCollection
}

func Open(ctx context.Context, st *geojson.Store, url, nativeField string) (*Dataset, error) {
	fc, err := st.Read(ctx, url)
	if err != nil {
		return nil, err
	}
	return &Dataset{URL: url, NativeField: nativeField, FC: fc}, nil
}

func (d *Dataset) Save(ctx context.Context, st *geojson.Store) error {
	return st.Write(ctx, d.URL, d.FC)
}

func validID(v any) (int64, bool) {
	id, ok := geojson.Int(v)
	if !ok || id <= 0 || id > math.MaxInt32 {
		return 0, false
	}
	return id, true
}

// 文档注释：分配或校验点 ID
// 约束：
// - idField 为空：使用 point_id 属性；已有的合法且唯一的值保持不变（重复执行结果相同），
//   其余行取行号（从 1 开始），行号已被占用时取当前最大值加一；
// - idField 非空：该字段必须在每一行存在、为整数、唯一，否则返回 ValidationError，数据集不被修改；
// - 返回实际使用的字段名。
func AssignID(ds *Dataset, idField string) (string, error) {
	if ds == nil || ds.FC == nil {
		return "", hwerr.Validation(idField, "no point dataset")
	}
	if idField != "" {
		seen := make(map[int64]int, len(ds.FC.Features))
		for i, f := range ds.FC.Features {
			v, ok := f.Properties[idField]
			if !ok {
				return "", hwerr.Validation(idField, "missing on row %d", i+1)
			}
			id, ok := validID(v)
			if !ok {
				return "", hwerr.Validation(idField, "row %d: %v is not a positive 32-bit integer", i+1, v)
			}
			if prev, dup := seen[id]; dup {
				return "", hwerr.Validation(idField, "value %d repeated on rows %d and %d", id, prev, i+1)
			}
			seen[id] = i + 1
		}
		return idField, nil
	}

	used := make(map[int64]bool, len(ds.FC.Features))
	keep := make([]bool, len(ds.FC.Features))
	var maxID int64
	for i, f := range ds.FC.Features {
		if id, ok := validID(f.Properties[DefaultIDField]); ok && !used[id] {
			used[id] = true
			keep[i] = true
			maxID = max(maxID, id)
		}
	}
	for i, f := range ds.FC.Features {
		if keep[i] {
			continue
		}
		id := int64(i + 1)
		if used[id] {
			id = maxID + 1
		}
		if id > math.MaxInt32 {
			return "", hwerr.Validation(DefaultIDField, "id space exhausted at row %d", i+1)
		}
		used[id] = true
		maxID = max(maxID, id)
		f.Properties[DefaultIDField] = id
	}
	return DefaultIDField, nil
}

// Points：按 idField 读取点；几何必须为点
func (d *Dataset) Points(idField string) ([]Point, error) {
	out := make([]Point, 0, len(d.FC.Features))
	for i, f := range d.FC.Features {
		id, ok := validID(f.Properties[idField])
		if !ok {
			return nil, hwerr.Validation(idField, "row %d has no valid id; run AssignID first", i+1)
		}
		pt, err := f.Geometry.Point()
		if err != nil {
			return nil, hwerr.Validation("geometry", "row %d: %v", i+1, err)
		}
		var native any
		switch {
		case d.NativeField != "":
			native = f.Properties[d.NativeField]
		case f.ID != nil:
			native = f.ID
		default:
			native = i + 1
		}
		out = append(out, Point{NativeID: native, PointID: id, Geom: pt})
	}
	return out, nil
}

// PointStore：点 ID 映射的持久化（PostgreSQL 实现见 store 包）
type PointStore interface {
	LookupPoints(ctx context.Context, ids []int64) (map[int64]string, error)
	UpsertPoints(ctx context.Context, pts []Point) error
}

// Mirror：把 (native_id, point_id) 写入外部存储；已有映射与当前不一致时拒绝（ID 不可重分配）
func Mirror(ctx context.Context, st PointStore, pts []Point) error {
	ids := make([]int64, len(pts))
	for i, p := range pts {
		ids[i] = p.PointID
	}
	existing, err := st.LookupPoints(ctx, ids)
	if err != nil {
		return fmt.Errorf("lookup points: %w", err)
	}
	for _, p := range pts {
		if prev, ok := existing[p.PointID]; ok && prev != geojson.String(p.NativeID) {
			return hwerr.Validation(DefaultIDField, "point %d already mapped to native id %q, got %q", p.PointID, prev, geojson.String(p.NativeID))
		}
	}
	return st.UpsertPoints(ctx, pts)
}
