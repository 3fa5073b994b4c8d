package hydro

import (
	"hw-catchment/internal/geojson"
	"hw-catchment/internal/geom"
	"hw-catchment/internal/hwerr"
)

// Fields：流网图层的属性字段名
type Fields struct {
	ID     string
	From   string
	To     string
	Length string
	FType  string
	FCode  string
}

func DefaultFields() Fields {
	return Fields{ID: "edge_id", From: "from_node", To: "to_node", Length: "length", FType: "ftype", FCode: "fcode"}
}

// 多部件线按顺序拼接（首尾重合的点只保留一次）
func joinParts(m geom.MultiLineString) geom.LineString {
	var out geom.LineString
	for _, l := range m {
		for i, p := range l {
			if i == 0 && len(out) > 0 && out[len(out)-1] == p {
				continue
			}
			out = append(out, p)
		}
	}
	return out
}

// FromGeoJSON：由流段图层构建流网；缺少 ID 字段属于配置错误
func FromGeoJSON(fc *geojson.FeatureCollection, f Fields) (*Network, error) {
	edges := make([]*Edge, 0, len(fc.Features))
	for i, feat := range fc.Features {
		raw, ok := feat.Properties[f.ID]
		if !ok || geojson.String(raw) == "" {
			return nil, hwerr.Configuration("network", "feature %d has no %q attribute", i+1, f.ID)
		}
		lines, err := feat.Geometry.Lines()
		if err != nil {
			return nil, hwerr.Validation(f.ID, "edge %s: %v", geojson.String(raw), err)
		}
		e := &Edge{
			ID:       geojson.String(raw),
			FromNode: geojson.String(feat.Properties[f.From]),
			ToNode:   geojson.String(feat.Properties[f.To]),
			Geom:     joinParts(lines),
		}
		if v, ok := geojson.Float(feat.Properties[f.Length]); ok {
			e.Length = v
		}
		if v, ok := geojson.Int(feat.Properties[f.FType]); ok {
			e.FType = int(v)
		}
		if v, ok := geojson.Int(feat.Properties[f.FCode]); ok {
			e.FCode = int(v)
		}
		edges = append(edges, e)
	}
	return NewNetwork(edges)
}

// BarriersFromGeoJSON：读取线障碍；带 ftype 字段的要素只保留坝（343）
func BarriersFromGeoJSON(fc *geojson.FeatureCollection, idField, ftypeField string) ([]Barrier, error) {
	var out []Barrier
	for i, feat := range fc.Features {
		if v, ok := geojson.Int(feat.Properties[ftypeField]); ok && v != FTypeDam {
			continue
		}
		lines, err := feat.Geometry.Lines()
		if err != nil {
			return nil, hwerr.Validation("barriers", "feature %d: %v", i+1, err)
		}
		id := geojson.String(feat.Properties[idField])
		if id == "" {
			id = geojson.String(i + 1)
		}
		out = append(out, Barrier{ID: id, Geom: joinParts(lines)})
	}
	return out, nil
}
