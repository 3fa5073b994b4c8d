package geojson

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/im7mortal/UTM"
	"github.com/viant/afs"
)

// Store：基于 afs 的 FeatureCollection 读写
type Store struct {
	fs afs.Service
}

func NewStore() *Store { return &Store{fs: afs.New()} }

func NewStoreWith(fs afs.Service) *Store { return &Store{fs: fs} }

func (s *Store) Read(ctx context.Context, url string) (*FeatureCollection, error) {
	data, err := s.fs.DownloadWithURL(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	fc, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	return fc, nil
}

func (s *Store) Write(ctx context.Context, url string, fc *FeatureCollection) error {
	data, err := Encode(fc)
	if err != nil {
		return err
	}
	if err := s.fs.Upload(ctx, url, 0o644, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write %s: %w", url, err)
	}
	return nil
}

func (s *Store) Exists(ctx context.Context, url string) (bool, error) {
	return s.fs.Exists(ctx, url)
}

// Reprojector：UTM 投影坐标转 WGS84 经纬度（输出给 Web 地图时使用）
type Reprojector struct {
	Zone     int
	Northern bool
}

// ToWGS84：原地转换所有要素坐标
func (r Reprojector) ToWGS84(fc *FeatureCollection) error {
	for i, f := range fc.Features {
		if f.Geometry == nil {
			continue
		}
		var coords any
		if err := json.Unmarshal(f.Geometry.Coordinates, &coords); err != nil {
			return fmt.Errorf("reproject feature %d: %w", i, err)
		}
		out, err := r.walk(coords)
		if err != nil {
			return fmt.Errorf("reproject feature %d: %w", i, err)
		}
		f.Geometry.Coordinates = raw(out)
	}
	return nil
}

func (r Reprojector) walk(v any) (any, error) {
	arr, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("unexpected coordinate value %T", v)
	}
	if len(arr) >= 2 {
		if x, ok := arr[0].(float64); ok {
			y, _ := arr[1].(float64)
			lat, lon, err := UTM.ToLatLon(x, y, r.Zone, "", r.Northern)
			if err != nil {
				return nil, err
			}
			return []float64{lon, lat}, nil
		}
	}
	out := make([]any, len(arr))
	for i, e := range arr {
		c, err := r.walk(e)
		if err != nil {
			return nil, err
		}
		out[i] = c
	}
	return out, nil
}
