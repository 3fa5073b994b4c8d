// 包 geojson：点、流网与汇水区数据集的 GeoJSON 编解码
// 背景：输入与输出图层统一为 FeatureCollection；存储位置为任意 afs URL（本地路径、file://、mem:// 等）。
// 约束：属性中的数值以 json.Number 保留原始文本，ID 字段校验时再判定是否为整数。
package geojson

import (
	"bytes"
	"encoding/json"
	"fmt"

	"hw-catchment/internal/geom"
)

type Geometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

type Feature struct {
	Type       string         `json:"type"`
	ID         any            `json:"id,omitempty"`
	Properties map[string]any `json:"properties"`
	Geometry   *Geometry      `json:"geometry"`
}

type FeatureCollection struct {
	Type     string     `json:"type"`
	Name     string     `json:"name,omitempty"`
	Features []*Feature `json:"features"`
}

func NewCollection(name string) *FeatureCollection {
	return &FeatureCollection{Type: "FeatureCollection", Name: name, Features: []*Feature{}}
}

// Add：追加要素
func (fc *FeatureCollection) Add(g *Geometry, props map[string]any) *Feature {
	if props == nil {
		props = map[string]any{}
	}
	f := &Feature{Type: "Feature", Properties: props, Geometry: g}
	fc.Features = append(fc.Features, f)
	return f
}

// Decode：解析 FeatureCollection
func Decode(data []byte) (*FeatureCollection, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var fc FeatureCollection
	if err := dec.Decode(&fc); err != nil {
		return nil, fmt.Errorf("geojson: %w", err)
	}
	if fc.Type != "FeatureCollection" {
		return nil, fmt.Errorf("geojson: unexpected type %q", fc.Type)
	}
	for i, f := range fc.Features {
		if f == nil {
			return nil, fmt.Errorf("geojson: feature %d is null", i)
		}
		if f.Properties == nil {
			f.Properties = map[string]any{}
		}
	}
	return &fc, nil
}

func Encode(fc *FeatureCollection) ([]byte, error) {
	return json.Marshal(fc)
}

func xy(p geom.Point) [2]float64 { return [2]float64{p.X, p.Y} }

func raw(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}

func PointGeometry(p geom.Point) *Geometry {
	return &Geometry{Type: "Point", Coordinates: raw(xy(p))}
}

func lineCoords(l geom.LineString) [][2]float64 {
	out := make([][2]float64, len(l))
	for i, p := range l {
		out[i] = xy(p)
	}
	return out
}

func LineGeometry(l geom.LineString) *Geometry {
	return &Geometry{Type: "LineString", Coordinates: raw(lineCoords(l))}
}

func MultiLineGeometry(m geom.MultiLineString) *Geometry {
	out := make([][][2]float64, len(m))
	for i, l := range m {
		out[i] = lineCoords(l)
	}
	return &Geometry{Type: "MultiLineString", Coordinates: raw(out)}
}

// MultiPolygonGeometry：环按 GeoJSON 约定闭合输出
func MultiPolygonGeometry(m geom.MultiPolygon) *Geometry {
	out := make([][][][2]float64, len(m))
	for i, p := range m {
		rings := make([][][2]float64, len(p.Rings))
		for j, r := range p.Rings {
			rings[j] = lineCoords(geom.LineString(r.Closed()))
		}
		out[i] = rings
	}
	return &Geometry{Type: "MultiPolygon", Coordinates: raw(out)}
}

func toPoint(c []float64) (geom.Point, error) {
	if len(c) < 2 {
		return geom.Point{}, fmt.Errorf("geojson: position has %d ordinates", len(c))
	}
	return geom.Point{X: c[0], Y: c[1]}, nil
}

func toLine(cs [][]float64) (geom.LineString, error) {
	out := make(geom.LineString, 0, len(cs))
	for _, c := range cs {
		p, err := toPoint(c)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func toPolygon(rs [][][]float64) (geom.Polygon, error) {
	rings := make([]geom.Ring, 0, len(rs))
	for _, r := range rs {
		l, err := toLine(r)
		if err != nil {
			return geom.Polygon{}, err
		}
		rings = append(rings, geom.Ring(l))
	}
	return geom.NewPolygon(rings...), nil
}

// Point：Point 几何；MultiPoint 取第一个点
func (g *Geometry) Point() (geom.Point, error) {
	if g == nil {
		return geom.Point{}, fmt.Errorf("geojson: null geometry")
	}
	switch g.Type {
	case "Point":
		var c []float64
		if err := json.Unmarshal(g.Coordinates, &c); err != nil {
			return geom.Point{}, fmt.Errorf("geojson: point: %w", err)
		}
		return toPoint(c)
	case "MultiPoint":
		var cs [][]float64
		if err := json.Unmarshal(g.Coordinates, &cs); err != nil {
			return geom.Point{}, fmt.Errorf("geojson: multipoint: %w", err)
		}
		if len(cs) == 0 {
			return geom.Point{}, fmt.Errorf("geojson: empty multipoint")
		}
		return toPoint(cs[0])
	}
	return geom.Point{}, fmt.Errorf("geojson: expected point, got %s", g.Type)
}

// Lines：LineString 或 MultiLineString
func (g *Geometry) Lines() (geom.MultiLineString, error) {
	if g == nil {
		return nil, fmt.Errorf("geojson: null geometry")
	}
	switch g.Type {
	case "LineString":
		var cs [][]float64
		if err := json.Unmarshal(g.Coordinates, &cs); err != nil {
			return nil, fmt.Errorf("geojson: linestring: %w", err)
		}
		l, err := toLine(cs)
		if err != nil {
			return nil, err
		}
		return geom.MultiLineString{l}, nil
	case "MultiLineString":
		var css [][][]float64
		if err := json.Unmarshal(g.Coordinates, &css); err != nil {
			return nil, fmt.Errorf("geojson: multilinestring: %w", err)
		}
		out := make(geom.MultiLineString, 0, len(css))
		for _, cs := range css {
			l, err := toLine(cs)
			if err != nil {
				return nil, err
			}
			out = append(out, l)
		}
		return out, nil
	}
	return nil, fmt.Errorf("geojson: expected line, got %s", g.Type)
}

// Polygons：Polygon 或 MultiPolygon
func (g *Geometry) Polygons() (geom.MultiPolygon, error) {
	if g == nil {
		return nil, fmt.Errorf("geojson: null geometry")
	}
	switch g.Type {
	case "Polygon":
		var rs [][][]float64
		if err := json.Unmarshal(g.Coordinates, &rs); err != nil {
			return nil, fmt.Errorf("geojson: polygon: %w", err)
		}
		p, err := toPolygon(rs)
		if err != nil {
			return nil, err
		}
		return geom.MultiPolygon{p}, nil
	case "MultiPolygon":
		var ps [][][][]float64
		if err := json.Unmarshal(g.Coordinates, &ps); err != nil {
			return nil, fmt.Errorf("geojson: multipolygon: %w", err)
		}
		out := make(geom.MultiPolygon, 0, len(ps))
		for _, rs := range ps {
			p, err := toPolygon(rs)
			if err != nil {
				return nil, err
			}
			out = append(out, p)
		}
		return out, nil
	}
	return nil, fmt.Errorf("geojson: expected polygon, got %s", g.Type)
}
