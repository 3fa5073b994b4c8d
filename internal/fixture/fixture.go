// 包 fixture：测试用的合成流域
// 约束：坐标为投影米，流向栅格为 10 米单元；除 OffGridUpstream 外汇水区边界与栅格对齐。
package fixture

import (
	"hw-catchment/internal/geojson"
	"hw-catchment/internal/geom"
	"hw-catchment/internal/hydro"
	"hw-catchment/internal/raster"
	"hw-catchment/internal/registry"
)

// 汇水区图层字段
const (
	KeyField  = "FEATUREID"
	TileField = "REACHCODE"
)

type World struct {
	Net        *hydro.Network
	Catchments *geojson.FeatureCollection
	Points     []registry.Point
	Flowdir    map[string]*raster.IntGrid
}

func catchment(fc *geojson.FeatureCollection, key, reach string, p geom.Polygon) {
	fc.Add(geojson.MultiPolygonGeometry(geom.MultiPolygon{p}), map[string]any{KeyField: key, TileField: reach})
}

func mustNetwork(edges []*hydro.Edge) *hydro.Network {
	n, err := hydro.NewNetwork(edges)
	if err != nil {
		panic(err)
	}
	return n
}

// ThreePoints：点 10、11 分别落在流段 A、B 旁；点 12 落在没有流段的汇水区 C 内。
// X1 与流段 A 的下游端点相接，只能靠空间关系关联到 A。
func ThreePoints() World {
	fc := geojson.NewCollection("catchments")
	catchment(fc, "A", "02080101000001", geom.Rect(0, 0, 40, 40))
	catchment(fc, "B", "02080101000002", geom.Rect(50, 0, 90, 40))
	catchment(fc, "C", "02080101000003", geom.Rect(100, 0, 140, 40))
	catchment(fc, "X1", "02080101000004", geom.Rect(0, -40, 40, 0))
	return World{
		Net: mustNetwork([]*hydro.Edge{
			{ID: "A", Geom: geom.LineString{{X: 20, Y: 40}, {X: 20, Y: 0}}, FType: hydro.FTypeStream},
			{ID: "B", Geom: geom.LineString{{X: 70, Y: 40}, {X: 70, Y: 0}}, FType: hydro.FTypeStream},
		}),
		Catchments: fc,
		Points: []registry.Point{
			{NativeID: "site-10", PointID: 10, Geom: geom.Point{X: 21, Y: 10}},
			{NativeID: "site-11", PointID: 11, Geom: geom.Point{X: 71, Y: 10}},
			{NativeID: "site-12", PointID: 12, Geom: geom.Point{X: 120, Y: 20}},
		},
	}
}

// SouthFlow：全部流向正南（D8 编码 4）的流向栅格
func SouthFlow(g raster.Grid) *raster.IntGrid {
	ig := raster.NewIntGrid(g)
	for i := range ig.Data {
		ig.Data[i] = 4
	}
	return ig
}

// DuplicatePair：点 20、21 的起始流段同为 X（自西向东），X 的汇水区位于 HUC4 0208。
// 流向栅格全部向南，两点的子汇水区分别为其所在列。
func DuplicatePair() World {
	fc := geojson.NewCollection("catchments")
	catchment(fc, "X", "02080102000001", geom.Rect(0, 0, 40, 40))
	return World{
		Net: mustNetwork([]*hydro.Edge{
			{ID: "X", Geom: geom.LineString{{X: 0, Y: 5}, {X: 40, Y: 5}}, FType: hydro.FTypeStream},
		}),
		Catchments: fc,
		Points: []registry.Point{
			{NativeID: "site-20", PointID: 20, Geom: geom.Point{X: 15, Y: 6}},
			{NativeID: "site-21", PointID: 21, Geom: geom.Point{X: 35, Y: 6}},
		},
		Flowdir: map[string]*raster.IntGrid{
			"0208": SouthFlow(raster.Grid{XLL: -10, YLL: -10, CellSize: 10, NRows: 6, NCols: 6}),
		},
	}
}

// ConvergingPair：与 DuplicatePair 相同的点与流段，但流向向河汇聚：
// 河道所在行（y∈[0,10]）向东，其上各行向南。点 21 的流域包含点 20 的流域。
func ConvergingPair() World {
	w := DuplicatePair()
	g := raster.Grid{XLL: -10, YLL: -10, CellSize: 10, NRows: 6, NCols: 6}
	fd := SouthFlow(g)
	for c := 0; c < g.NCols; c++ {
		fd.Set(4, c, 1)
	}
	w.Flowdir = map[string]*raster.IntGrid{"0208": fd}
	return w
}

// OffGridUpstream：汇水区边界不与 10 米栅格对齐。点 20 的起始流段 X 位于 [0,37]²，
// 上游流段 B 的汇水区紧贴其北侧；流向栅格全部向南。
func OffGridUpstream() World {
	fc := geojson.NewCollection("catchments")
	catchment(fc, "X", "02080102000001", geom.Rect(0, 0, 37, 37))
	catchment(fc, "B", "02080102000002", geom.Rect(0, 37, 37, 74))
	return World{
		Net: mustNetwork([]*hydro.Edge{
			{ID: "B", Geom: geom.LineString{{X: 0, Y: 60}, {X: 0, Y: 5}}, FType: hydro.FTypeStream},
			{ID: "X", Geom: geom.LineString{{X: 0, Y: 5}, {X: 37, Y: 5}}, FType: hydro.FTypeStream},
		}),
		Catchments: fc,
		Points: []registry.Point{
			{NativeID: "site-20", PointID: 20, Geom: geom.Point{X: 15, Y: 6}},
		},
		Flowdir: map[string]*raster.IntGrid{
			"0208": SouthFlow(raster.Grid{XLL: -10, YLL: -10, CellSize: 10, NRows: 6, NCols: 6}),
		},
	}
}
