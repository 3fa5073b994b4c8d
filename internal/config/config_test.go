package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"hw-catchment/internal/hwerr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
metrics_addr = ":9109"

[inputs]
points = "data/points.geojson"
network = "data/flowlines.geojson"
catchments = "data/catchments.geojson"
flowdir_dir = "data/fdr"

[trace]
rules = ["NoPipelines", "NoEphemeral"]
snap_tolerance = 250.0

[[trace.thresholds]]
value = 2.0
unit = "mi"

[[trace.thresholds]]
value = 500.0

[catchments]
id_field = "FEATUREID"
zone_field = "REACHCODE"

[refine]
precise = true
workers = 3
`

func env(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestThreshold(t *testing.T) {
	cases := []struct {
		in     string
		meters float64
		name   string
	}{
		{"2mi", 3218.68, "2mi"},
		{"5km", 5000, "5km"},
		{"800", 800, "800m"},
		{" 1.5 MI", 2414.01, "1.5mi"},
	}
	for _, c := range cases {
		th, err := ParseThreshold(c.in)
		require.NoError(t, err, c.in)
		assert.InDelta(t, c.meters, th.Meters(), 1e-6, c.in)
		assert.Equal(t, c.name, th.Name(), c.in)
	}
	_, err := ParseThreshold("far")
	assert.Error(t, err)
}

func TestParseAndValidate(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	require.Len(t, cfg.Trace.Thresholds, 2)
	assert.Equal(t, "2mi", cfg.Trace.Thresholds[0].Name())
	assert.Equal(t, "500m", cfg.Trace.Thresholds[1].Name())
	assert.Equal(t, 250.0, cfg.TraceConfig().SnapTolerance)
	assert.Equal(t, 100.0, cfg.TraceConfig().BarrierTolerance)
	assert.Equal(t, []string{"NoEphemeral", "NoPipelines"}, cfg.RuleSet().Names)
	assert.Equal(t, 3, cfg.RefineConfig().Workers)
	assert.Equal(t, "fdr.asc", cfg.RefineConfig().FdirName)
	assert.Equal(t, "edge_id", cfg.NetworkFields().ID)
	ttl, err := cfg.CacheTTL()
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, ttl)
}

func TestApplyEnv(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)
	require.NoError(t, cfg.ApplyEnv(env(map[string]string{
		"HW_THRESHOLDS": "1km, 3mi",
		"HW_PRECISE":    "false",
		"HW_WORKERS":    "8",
		"HW_OUTPUT_DIR": "/tmp/hw",
		"HW_RULES":      "NoCanals",
	})))
	assert.Equal(t, []Threshold{{Value: 1, Unit: "km"}, {Value: 3, Unit: "mi"}}, cfg.Trace.Thresholds)
	assert.False(t, cfg.Refine.Precise)
	assert.Equal(t, 8, cfg.Refine.Workers)
	assert.Equal(t, "/tmp/hw", cfg.Output.Dir)
	assert.Equal(t, []string{"NoCanals"}, cfg.RuleSet().Names)

	err = cfg.ApplyEnv(env(map[string]string{"HW_WORKERS": "many"}))
	assert.True(t, hwerr.IsConfiguration(err))
	err = cfg.ApplyEnv(env(map[string]string{"HW_CACHE": "maybe"}))
	assert.True(t, hwerr.IsConfiguration(err))
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(c *Config){
		"no points":        func(c *Config) { c.Inputs.Points = "" },
		"no thresholds":    func(c *Config) { c.Trace.Thresholds = nil },
		"zero threshold":   func(c *Config) { c.Trace.Thresholds = []Threshold{{Value: 0}} },
		"bad unit":         func(c *Config) { c.Trace.Thresholds = []Threshold{{Value: 1, Unit: "ft"}} },
		"duplicate":        func(c *Config) { c.Trace.Thresholds = []Threshold{{Value: 1, Unit: "km"}, {Value: 1, Unit: "KM"}} },
		"unknown rule":     func(c *Config) { c.Trace.Rules = []string{"NoDams"} },
		"no id field":      func(c *Config) { c.Catchments.IDField = "" },
		"precise no fdir":  func(c *Config) { c.Inputs.FlowDirDir = "" },
		"graph no uri":     func(c *Config) { c.Network.Source = "graph" },
		"unknown source":   func(c *Config) { c.Network.Source = "shapefile" },
		"bad ttl":          func(c *Config) { c.Cache.TTL = "forever" },
		"negative barrier": func(c *Config) { c.Trace.BarrierTolerance = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg, err := Parse([]byte(sample))
			require.NoError(t, err)
			mutate(cfg)
			assert.True(t, hwerr.IsConfiguration(cfg.Validate()))
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.toml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))
	t.Setenv("HW_METRICS_ADDR", ":9200")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9200", cfg.MetricsAddr)

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.True(t, hwerr.IsConfiguration(err))

	require.NoError(t, os.WriteFile(path, []byte("[trace\n"), 0o644))
	_, err = Load(path)
	assert.True(t, hwerr.IsConfiguration(err))
}
