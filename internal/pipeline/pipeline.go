// 包 pipeline：阈值循环
// 背景：每个阈值依次执行上溯追踪、汇水区解析（可选精化）与持久化；阈值之间除点登记与流网外不共享可变状态。
// 约束：
// - 追踪求解错误只中止当前阈值，其余阈值继续，最终返回合并后的错误；
// - 校验与配置错误以及持久化错误立即终止；
// - 每个阈值一个临时工作区，结束即释放。
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hw-catchment/internal/catchment"
	"hw-catchment/internal/config"
	"hw-catchment/internal/hwerr"
	"hw-catchment/internal/hydro"
	"hw-catchment/internal/logger"
	"hw-catchment/internal/metrics"
	"hw-catchment/internal/refine"
	"hw-catchment/internal/registry"
	"hw-catchment/internal/report"
	"hw-catchment/internal/trace"
	"hw-catchment/internal/workspace"

	"github.com/google/uuid"
	"github.com/gosuri/uiprogress"
)

// ThresholdResult：一个阈值的全部产出
type ThresholdResult struct {
	RunID     string
	Threshold string
	MaxDist   float64
	Started   time.Time
	Nets      []trace.UpstreamNetwork
	Lines     []trace.TracedEdge
	Dissolved []trace.DissolvedLine
	Resolved  *catchment.Result
	Report    *report.Report
}

// ThresholdSummary：阈值运行概要
type ThresholdSummary struct {
	Threshold  string
	RunID      string
	Points     int
	Edges      int
	Areas      int
	Unresolved int
	Warnings   int
	Elapsed    time.Duration
	Err        error
}

type Summary struct {
	Thresholds []ThresholdSummary
	Elapsed    time.Duration
}

// Failed：求解失败的阈值数
func (s *Summary) Failed() int {
	n := 0
	for _, t := range s.Thresholds {
		if t.Err != nil {
			n++
		}
	}
	return n
}

// Runner：阈值循环的全部依赖
type Runner struct {
	Trace      *trace.Engine
	Refine     *refine.Engine // 为空时不做精化
	Layer      *catchment.Layer
	Entry      catchment.TypeEntry
	Points     []registry.Point
	Barriers   []hydro.Barrier
	Precise    bool
	Sinks      []Sink
	ScratchDir string // 为空时不创建工作区
	Progress   bool
}

// Run：按给定顺序处理全部阈值
func (r *Runner) Run(ctx context.Context, thresholds []config.Threshold) (*Summary, error) {
	l := logger.L()
	if len(r.Points) == 0 {
		return nil, hwerr.Validation("points", "no points to trace")
	}
	start := time.Now()
	var bar *uiprogress.Bar
	if r.Progress {
		uiprogress.Start()
		defer uiprogress.Stop()
		bar = uiprogress.AddBar(len(thresholds)).AppendCompleted().PrependElapsed()
		bar.PrependFunc(func(b *uiprogress.Bar) string {
			if i := b.Current(); i < len(thresholds) {
				return fmt.Sprintf("%-8s", thresholds[i].Name())
			}
			return fmt.Sprintf("%-8s", "done")
		})
	}

	sum := &Summary{}
	var errs []error
	for _, th := range thresholds {
		if err := ctx.Err(); err != nil {
			sum.Elapsed = time.Since(start)
			l.Warn("run_done", "thresholds", len(thresholds), "completed", len(sum.Thresholds), "failed", sum.Failed(), "elapsed_ms", sum.Elapsed.Milliseconds(), "err", err)
			return sum, err
		}
		ts, err := r.runThreshold(ctx, th)
		sum.Thresholds = append(sum.Thresholds, ts)
		if bar != nil {
			bar.Incr()
		}
		if err == nil {
			metrics.ThresholdRunsTotal.WithLabelValues("ok").Inc()
			continue
		}
		metrics.ThresholdRunsTotal.WithLabelValues("failed").Inc()
		if hwerr.IsTraceSolve(err) {
			l.Error("threshold_failed", "threshold", th.Name(), "err", err)
			errs = append(errs, fmt.Errorf("threshold %s: %w", th.Name(), err))
			continue
		}
		return sum, fmt.Errorf("threshold %s: %w", th.Name(), err)
	}
	sum.Elapsed = time.Since(start)
	l.Info("run_done", "thresholds", len(thresholds), "failed", sum.Failed(), "elapsed_ms", sum.Elapsed.Milliseconds())
	return sum, errors.Join(errs...)
}

func (r *Runner) runThreshold(ctx context.Context, th config.Threshold) (ThresholdSummary, error) {
	runID := uuid.NewString()
	l := logger.ForRun(runID, th.Name())
	started := time.Now()
	ts := ThresholdSummary{Threshold: th.Name(), RunID: runID, Points: len(r.Points)}

	var scratch *workspace.Workspace
	if r.ScratchDir != "" {
		var err error
		if scratch, err = workspace.Acquire(ctx, r.ScratchDir); err != nil {
			return ts, err
		}
		defer scratch.Release(ctx)
	}

	nets, err := r.Trace.TraceUpstream(ctx, r.Points, th.Meters(), r.Barriers)
	if err != nil {
		ts.Err = err
		ts.Elapsed = time.Since(started)
		return ts, err
	}

	var refiner catchment.Refiner
	if r.Refine != nil {
		eng := *r.Refine
		eng.Scratch = scratch
		refiner = &eng
	}
	resolved, err := catchment.NewResolver(refiner).Resolve(ctx, nets, r.Layer, r.Points, r.Precise)
	if err != nil {
		return ts, err
	}

	res := &ThresholdResult{
		RunID:     runID,
		Threshold: th.Name(),
		MaxDist:   th.Meters(),
		Started:   started,
		Nets:      nets,
		Dissolved: trace.Dissolve(nets),
		Resolved:  resolved,
	}
	snapped := 0
	for _, n := range nets {
		res.Lines = append(res.Lines, n.Edges...)
		if n.Snapped {
			snapped++
		}
	}
	rep := &report.Report{RunID: runID, Threshold: th.Name(), MaxDistM: th.Meters(), Precise: r.Precise, Generated: started.UTC()}
	rep.Counts.Points = len(r.Points)
	rep.Counts.Snapped = snapped
	rep.Counts.Edges = len(res.Lines)
	features := 0
	if r.Layer != nil {
		features = r.Layer.Len()
	}
	rep.Layers = append(rep.Layers, report.CatchmentLayer(r.Entry, features))
	if r.Precise {
		sub := r.Entry
		sub.Kind = catchment.KindSubCatchment
		sub.Name = r.Entry.Name + "_sub"
		sub.IDField = registry.DefaultIDField
		sub.JoinDataset = "points"
		refined := 0
		for _, a := range resolved.Areas {
			if a.Refined {
				refined++
			}
		}
		rep.Layers = append(rep.Layers, report.CatchmentLayer(sub, refined))
	}
	rep.AddAreas(resolved.Areas)
	rep.AddWarnings(resolved.Warnings)
	rep.ElapsedSec = time.Since(started).Seconds()
	res.Report = rep

	for _, s := range r.Sinks {
		if err := s.Write(ctx, res); err != nil {
			return ts, fmt.Errorf("persist: %w", err)
		}
	}

	ts.Edges = len(res.Lines)
	ts.Areas = len(resolved.Areas)
	ts.Unresolved = len(resolved.Unresolved)
	ts.Warnings = len(rep.Warnings)
	ts.Elapsed = time.Since(started)
	l.Info("threshold_done", "max_dist_m", th.Meters(), "edges", ts.Edges, "areas", ts.Areas, "unresolved", ts.Unresolved, "warnings", ts.Warnings, "elapsed_ms", ts.Elapsed.Milliseconds())
	return ts, nil
}
