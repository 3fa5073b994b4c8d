package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	PointsTracedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hw_points_traced_total",
		Help: "Points with a non-empty upstream network, by threshold",
	}, []string{"threshold"})
	PointsUntracedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hw_points_untraced_total",
		Help: "Points that could not be snapped to an eligible edge, by threshold",
	}, []string{"threshold"})
	EdgesTracedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hw_edges_traced_total",
		Help: "Traced edge portions emitted, by threshold",
	}, []string{"threshold"})
	SolveDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hw_solve_duration_ms",
		Help:    "Upstream trace solve duration in milliseconds",
		Buckets: []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 30000},
	}, []string{"threshold"})
	SolveFailTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hw_solve_fail_total",
		Help: "Failed upstream trace solves, by threshold",
	}, []string{"threshold"})
	CatchAreasTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hw_catch_areas_total",
		Help: "Catchment areas produced, by resolution method",
	}, []string{"method"})
	RefinePassesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hw_refine_passes_total",
		Help: "Watershed delineation passes (tile x sequence)",
	})
	RefineDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "hw_refine_duration_ms",
		Help:    "Sub-catchment refinement duration per tile in milliseconds",
		Buckets: []float64{1, 5, 10, 50, 100, 500, 1000, 5000},
	})
	WarningsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hw_data_quality_warnings_total",
		Help: "Data quality warnings, by code",
	}, []string{"code"})
	CacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hw_trace_cache_hits_total",
		Help: "Trace result cache hits",
	})
	CacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hw_trace_cache_misses_total",
		Help: "Trace result cache misses",
	})
	ThresholdRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hw_threshold_runs_total",
		Help: "Threshold runs, by status (ok|failed)",
	}, []string{"status"})
)

func init() {
	prometheus.MustRegister(PointsTracedTotal)
	prometheus.MustRegister(PointsUntracedTotal)
	prometheus.MustRegister(EdgesTracedTotal)
	prometheus.MustRegister(SolveDurationMs)
	prometheus.MustRegister(SolveFailTotal)
	prometheus.MustRegister(CatchAreasTotal)
	prometheus.MustRegister(RefinePassesTotal)
	prometheus.MustRegister(RefineDurationMs)
	prometheus.MustRegister(WarningsTotal)
	prometheus.MustRegister(CacheHitsTotal)
	prometheus.MustRegister(CacheMissesTotal)
	prometheus.MustRegister(ThresholdRunsTotal)
}

// 文档注释：返回 Prometheus 指标监听器
// 背景：长时间批处理期间暴露进度类指标到 /metrics，供 Prometheus 抓取；由 hw-trace 在配置了监听地址时挂载。
func Handler() http.Handler { return promhttp.Handler() }
