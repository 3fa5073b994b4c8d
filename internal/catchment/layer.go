// 包 catchment：汇水区解析
// 背景：每个点的上游流网按流段 ID 与汇水区 catchment_key 做同一性关联，融合成该点的汇水面；
// 没有得到汇水面的点再按空间关系兜底，仍然没有的点显式报告为未解析。
package catchment

import (
	"sort"
	"strings"

	"hw-catchment/internal/geojson"
	"hw-catchment/internal/geom"
	"hw-catchment/internal/hwerr"
	"hw-catchment/internal/refine"
)

// Kind：汇水区类型（带标识字段与关联目标）
type Kind int

const (
	KindCatchment Kind = iota + 1
	KindSubCatchment
)

func (k Kind) String() string {
	switch k {
	case KindCatchment:
		return "catchment"
	case KindSubCatchment:
		return "subcatchment"
	}
	return "unknown"
}

// JoinTarget：该类型的标识字段关联到哪个字段
func (k Kind) JoinTarget() string {
	if k == KindSubCatchment {
		return "point_id"
	}
	return "edge_id"
}

// TypeEntry：一类汇水区数据的描述
type TypeEntry struct {
	Kind        Kind
	Name        string
	Data        string
	IDField     string
	ZoneField   string
	JoinDataset string
}

// Catchment：粗汇水区
type Catchment struct {
	Key  string
	Tile string
	Geom geom.MultiPolygon
}

// Layer：汇水区图层（按 key 与空间索引查询）
type Layer struct {
	items []*Catchment
	byKey map[string]*Catchment
	index *geom.GridIndex
}

func NewLayer(items []*Catchment) (*Layer, error) {
	l := &Layer{byKey: make(map[string]*Catchment, len(items))}
	span := 0.0
	for _, c := range items {
		if _, dup := l.byKey[c.Key]; dup {
			return nil, hwerr.Validation("catchment_key", "duplicate key %q", c.Key)
		}
		l.byKey[c.Key] = c
		l.items = append(l.items, c)
		b := c.Geom.BBox()
		if !b.IsEmpty() {
			span += b.MaxX - b.MinX + b.MaxY - b.MinY
		}
	}
	cell := 1.0
	if span > 0 {
		cell = span / float64(2*len(items))
	}
	l.index = geom.NewGridIndex(cell)
	for _, c := range l.items {
		l.index.Insert(c.Geom.BBox())
	}
	return l, nil
}

// TileOf：瓦片键取 HUC 编码的前 4 位（HUC4）
func TileOf(v any) string {
	s := strings.TrimSpace(geojson.String(v))
	if len(s) > 4 {
		return s[:4]
	}
	return s
}

// 文档注释：由 GeoJSON 构建汇水区图层
// 约束：标识字段缺失属于配置错误（致命）；瓦片字段可为空，此时全部汇水区同属一个瓦片。
func FromGeoJSON(fc *geojson.FeatureCollection, entry TypeEntry) (*Layer, error) {
	if entry.IDField == "" {
		return nil, hwerr.Configuration("catchments", "identity field not configured")
	}
	items := make([]*Catchment, 0, len(fc.Features))
	for i, f := range fc.Features {
		raw, ok := f.Properties[entry.IDField]
		if !ok || geojson.String(raw) == "" {
			return nil, hwerr.Configuration("catchments", "feature %d is missing identity field %q", i+1, entry.IDField)
		}
		g, err := f.Geometry.Polygons()
		if err != nil {
			return nil, hwerr.Validation(entry.IDField, "catchment %s: %v", geojson.String(raw), err)
		}
		c := &Catchment{Key: geojson.String(raw), Geom: g}
		if entry.ZoneField != "" {
			c.Tile = TileOf(f.Properties[entry.ZoneField])
		}
		items = append(items, c)
	}
	return NewLayer(items)
}

func (l *Layer) Len() int { return len(l.items) }

// ByKey：同一性查询
func (l *Layer) ByKey(key string) (*Catchment, bool) {
	c, ok := l.byKey[key]
	return c, ok
}

// Containing：点落在内部或边界上的汇水区（按 key 排序）
func (l *Layer) Containing(pt geom.Point, tol float64) []*Catchment {
	var out []*Catchment
	for _, id := range l.index.Search(geom.BBox{MinX: pt.X - tol, MinY: pt.Y - tol, MaxX: pt.X + tol, MaxY: pt.Y + tol}) {
		c := l.items[id]
		if c.Geom.Intersects(pt, tol) {
			out = append(out, c)
		}
	}
	sortByKey(out)
	return out
}

// Parent：供子汇水区精化按起始流段取粗汇水区
func (l *Layer) Parent(key string) (refine.Parent, bool) {
	c, ok := l.byKey[key]
	if !ok {
		return refine.Parent{}, false
	}
	return refine.Parent{Key: c.Key, Tile: c.Tile, Geom: c.Geom}, true
}

func sortByKey(cs []*Catchment) {
	sort.Slice(cs, func(i, j int) bool { return cs[i].Key < cs[j].Key })
}
