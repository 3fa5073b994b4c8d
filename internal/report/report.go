// 包 report：每个阈值一份的数据质量报告（YAML）
package report

import (
	"sort"
	"time"

	"hw-catchment/internal/catchment"
	"hw-catchment/internal/hwerr"

	"gopkg.in/yaml.v3"
)

// Layer：本次运行产出或使用的图层
type Layer struct {
	Name        string `yaml:"name"`
	Kind        string `yaml:"kind"`
	IDField     string `yaml:"id_field,omitempty"`
	JoinTarget  string `yaml:"join_target,omitempty"`
	JoinDataset string `yaml:"join_dataset,omitempty"`
	Features    int    `yaml:"features"`
}

type Counts struct {
	Points     int `yaml:"points"`
	Snapped    int `yaml:"snapped"`
	Traced     int `yaml:"traced"`
	Fallback   int `yaml:"fallback"`
	Unresolved int `yaml:"unresolved"`
	Refined    int `yaml:"refined"`
	Edges      int `yaml:"edges"`
}

type Warning struct {
	PointID int64  `yaml:"point_id,omitempty"`
	Code    string `yaml:"code"`
	Detail  string `yaml:"detail,omitempty"`
}

type Report struct {
	RunID      string         `yaml:"run_id"`
	Threshold  string         `yaml:"threshold"`
	MaxDistM   float64        `yaml:"max_dist_m"`
	Precise    bool           `yaml:"precise"`
	Generated  time.Time      `yaml:"generated"`
	ElapsedSec float64        `yaml:"elapsed_sec"`
	Counts     Counts         `yaml:"counts"`
	Layers     []Layer        `yaml:"layers"`
	ByCode     map[string]int `yaml:"warnings_by_code,omitempty"`
	Unresolved []int64        `yaml:"unresolved,omitempty"`
	Warnings   []Warning      `yaml:"warnings,omitempty"`
}

// AddAreas：按汇水面统计得出方式
func (r *Report) AddAreas(areas []catchment.Area) {
	for _, a := range areas {
		switch a.Method {
		case catchment.MethodTrace:
			r.Counts.Traced++
		case catchment.MethodFallback:
			r.Counts.Fallback++
		case catchment.MethodUnresolved:
			r.Counts.Unresolved++
			r.Unresolved = append(r.Unresolved, a.PointID)
		}
		if a.Refined {
			r.Counts.Refined++
		}
	}
	sort.Slice(r.Unresolved, func(i, j int) bool { return r.Unresolved[i] < r.Unresolved[j] })
}

// AddWarnings：同一点同一编码的告警只记一次
func (r *Report) AddWarnings(ws []hwerr.DataQualityWarning) {
	if r.ByCode == nil {
		r.ByCode = map[string]int{}
	}
	seen := make(map[Warning]bool, len(r.Warnings))
	for _, w := range r.Warnings {
		seen[Warning{PointID: w.PointID, Code: w.Code}] = true
	}
	for _, w := range ws {
		k := Warning{PointID: w.PointID, Code: w.Code}
		if seen[k] {
			continue
		}
		seen[k] = true
		r.ByCode[w.Code]++
		r.Warnings = append(r.Warnings, Warning{PointID: w.PointID, Code: w.Code, Detail: w.Detail})
	}
	sort.SliceStable(r.Warnings, func(i, j int) bool {
		if r.Warnings[i].PointID != r.Warnings[j].PointID {
			return r.Warnings[i].PointID < r.Warnings[j].PointID
		}
		return r.Warnings[i].Code < r.Warnings[j].Code
	})
}

// CatchmentLayer：描述一类汇水区图层
func CatchmentLayer(e catchment.TypeEntry, features int) Layer {
	return Layer{Name: e.Name, Kind: e.Kind.String(), IDField: e.IDField, JoinTarget: e.Kind.JoinTarget(), JoinDataset: e.JoinDataset, Features: features}
}

func (r *Report) Marshal() ([]byte, error) { return yaml.Marshal(r) }

func Unmarshal(data []byte) (*Report, error) {
	var r Report
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}
