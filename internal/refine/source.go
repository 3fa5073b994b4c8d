package refine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"hw-catchment/internal/geom"
	"hw-catchment/internal/raster"

	"github.com/viant/afs"
)

// Parent：起始流段对应的粗汇水区
type Parent struct {
	Key  string
	Tile string
	Geom geom.MultiPolygon
}

// CatchmentSource：按 catchment_key 取粗汇水区
type CatchmentSource interface {
	Parent(key string) (Parent, bool)
}

// ErrNoFlowDir：瓦片没有流向栅格
var ErrNoFlowDir = errors.New("flow direction raster not found")

// DirSource：按瓦片（HUC4）提供流向栅格
type DirSource interface {
	Load(ctx context.Context, tile string) (*raster.IntGrid, error)
}

// AFSDirSource：<dir>/<tile>/<name> 布局的 ESRI ASCII 流向栅格
type AFSDirSource struct {
	fs   afs.Service
	dir  string
	name string
}

func NewAFSDirSource(dir, name string) *AFSDirSource {
	if name == "" {
		name = "fdr.asc"
	}
	return &AFSDirSource{fs: afs.New(), dir: strings.TrimRight(dir, "/"), name: name}
}

func (s *AFSDirSource) URL(tile string) string { return s.dir + "/" + tile + "/" + s.name }

func (s *AFSDirSource) Load(ctx context.Context, tile string) (*raster.IntGrid, error) {
	url := s.URL(tile)
	ok, err := s.fs.Exists(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("check %s: %w", url, err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", url, ErrNoFlowDir)
	}
	data, err := s.fs.DownloadWithURL(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	g, err := raster.ReadASCII(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", url, err)
	}
	return g, nil
}

// MemDirSource：内存中的流向栅格
type MemDirSource map[string]*raster.IntGrid

func (m MemDirSource) Load(ctx context.Context, tile string) (*raster.IntGrid, error) {
	g, ok := m[tile]
	if !ok {
		return nil, fmt.Errorf("tile %s: %w", tile, ErrNoFlowDir)
	}
	return g, nil
}
