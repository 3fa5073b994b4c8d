// 包 config：运行配置
// 背景：先由 .env 注入环境变量（cmd 中完成），再读 TOML 运行文件，最后以 HW_* 环境变量覆盖；
// 校验失败一律返回 ConfigurationError，在任何处理开始前终止。
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"hw-catchment/internal/hwerr"
	"hw-catchment/internal/hydro"
	"hw-catchment/internal/refine"
	"hw-catchment/internal/trace"

	"github.com/pelletier/go-toml/v2"
)

const metersPerMile = 1609.34

// Threshold：上溯距离阈值
type Threshold struct {
	Value float64 `toml:"value"`
	Unit  string  `toml:"unit"` // mi | km | m，缺省为 m
}

func (t Threshold) Meters() float64 {
	switch strings.ToLower(t.Unit) {
	case "mi":
		return t.Value * metersPerMile
	case "km":
		return t.Value * 1000
	}
	return t.Value
}

// Name：输出图层名中使用的阈值名，如 2mi、500m
func (t Threshold) Name() string {
	unit := strings.ToLower(t.Unit)
	if unit == "" {
		unit = "m"
	}
	return strconv.FormatFloat(t.Value, 'f', -1, 64) + unit
}

// ParseThreshold：解析 "2mi"、"5km"、"800" 形式
func ParseThreshold(s string) (Threshold, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	unit := "m"
	for _, u := range []string{"mi", "km", "m"} {
		if strings.HasSuffix(s, u) {
			unit = u
			s = strings.TrimSpace(strings.TrimSuffix(s, u))
			break
		}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Threshold{}, fmt.Errorf("bad threshold %q", s)
	}
	return Threshold{Value: v, Unit: unit}, nil
}

type InputsConfig struct {
	Points     string `toml:"points"`
	Network    string `toml:"network"`
	Barriers   string `toml:"barriers"`
	Catchments string `toml:"catchments"`
	FlowDirDir string `toml:"flowdir_dir"`
	FlowDir    string `toml:"flowdir_name"`
}

type RegistryConfig struct {
	IDField     string `toml:"id_field"` // 为空时由行号派生 point_id
	NativeField string `toml:"native_field"`
}

type NetworkConfig struct {
	Source      string `toml:"source"` // geojson | graph
	IDField     string `toml:"id_field"`
	FromField   string `toml:"from_field"`
	ToField     string `toml:"to_field"`
	LengthField string `toml:"length_field"`
	FTypeField  string `toml:"ftype_field"`
	FCodeField  string `toml:"fcode_field"`
}

type TraceConfig struct {
	Thresholds        []Threshold `toml:"thresholds"`
	Rules             []string    `toml:"rules"`
	SnapTolerance     float64     `toml:"snap_tolerance"`
	BarrierTolerance  float64     `toml:"barrier_tolerance"`
	BarrierIDField    string      `toml:"barrier_id_field"`
	BarrierFTypeField string      `toml:"barrier_ftype_field"`
	SolvePerPoint     bool        `toml:"solve_per_point"`
}

type CatchmentsConfig struct {
	Name        string `toml:"name"`
	IDField     string `toml:"id_field"`
	ZoneField   string `toml:"zone_field"`
	JoinDataset string `toml:"join_dataset"`
}

type RefineConfig struct {
	Precise       bool `toml:"precise"`
	Workers       int  `toml:"workers"`
	PourSnapCells int  `toml:"pour_snap_cells"`
	WriteScratch  bool `toml:"write_scratch"`
}

type OutputConfig struct {
	Dir        string `toml:"dir"`
	Postgres   bool   `toml:"postgres"`
	UTMZone    int    `toml:"utm_zone"` // 大于 0 时 GeoJSON 输出转为 WGS84
	Northern   bool   `toml:"northern"`
	ScratchDir string `toml:"scratch_dir"`
	Report     bool   `toml:"report"`
}

type CacheConfig struct {
	Enabled bool   `toml:"enabled"`
	TTL     string `toml:"ttl"`
}

type MemgraphConfig struct {
	URI      string `toml:"uri"`
	User     string `toml:"user"`
	Password string `toml:"password"`
}

type Config struct {
	Inputs      InputsConfig     `toml:"inputs"`
	Registry    RegistryConfig   `toml:"registry"`
	Network     NetworkConfig    `toml:"network"`
	Trace       TraceConfig      `toml:"trace"`
	Catchments  CatchmentsConfig `toml:"catchments"`
	Refine      RefineConfig     `toml:"refine"`
	Output      OutputConfig     `toml:"output"`
	Cache       CacheConfig      `toml:"cache"`
	Memgraph    MemgraphConfig   `toml:"memgraph"`
	MetricsAddr string           `toml:"metrics_addr"`
}

// Default：未在文件中出现的项取这些值
func Default() *Config {
	f := hydro.DefaultFields()
	return &Config{
		Registry: RegistryConfig{},
		Network: NetworkConfig{Source: "geojson", IDField: f.ID, FromField: f.From, ToField: f.To,
			LengthField: f.Length, FTypeField: f.FType, FCodeField: f.FCode},
		Trace: TraceConfig{
			Rules:             append([]string(nil), hydro.DefaultRuleNames...),
			SnapTolerance:     500,
			BarrierTolerance:  100,
			BarrierIDField:    "barrier_id",
			BarrierFTypeField: "ftype",
		},
		Catchments: CatchmentsConfig{Name: "catchments", IDField: "catchment_key", ZoneField: "huc", JoinDataset: "flowlines"},
		Refine:     RefineConfig{Workers: 1},
		Output:     OutputConfig{Dir: "out", ScratchDir: os.TempDir(), Report: true},
		Cache:      CacheConfig{TTL: "24h"},
		Inputs:     InputsConfig{FlowDir: "fdr.asc"},
	}
}

// Parse：在默认值之上解析 TOML
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, hwerr.Configuration("config", "failed to parse TOML: %v", err)
	}
	return cfg, nil
}

// Load：读取 TOML 文件（path 为空时只用默认值），应用环境变量覆盖并校验
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, hwerr.Configuration("config", "failed to read config file '%s': %v", path, err)
		}
		if cfg, err = Parse(data); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv：HW_* 覆盖；lookup 与 os.LookupEnv 同签名，便于测试
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) error {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return hwerr.Configuration(key, "not a boolean: %q", v)
			}
			*dst = b
		}
		return nil
	}
	str("HW_POINTS", &c.Inputs.Points)
	str("HW_NETWORK", &c.Inputs.Network)
	str("HW_BARRIERS", &c.Inputs.Barriers)
	str("HW_CATCHMENTS", &c.Inputs.Catchments)
	str("HW_FLOWDIR_DIR", &c.Inputs.FlowDirDir)
	str("HW_ID_FIELD", &c.Registry.IDField)
	str("HW_NETWORK_SOURCE", &c.Network.Source)
	str("HW_OUTPUT_DIR", &c.Output.Dir)
	str("HW_SCRATCH_DIR", &c.Output.ScratchDir)
	str("HW_METRICS_ADDR", &c.MetricsAddr)
	str("HW_CACHE_TTL", &c.Cache.TTL)
	str("MEMGRAPH_URI", &c.Memgraph.URI)
	str("MEMGRAPH_USER", &c.Memgraph.User)
	str("MEMGRAPH_PASSWORD", &c.Memgraph.Password)
	for key, dst := range map[string]*bool{
		"HW_PRECISE":  &c.Refine.Precise,
		"HW_POSTGRES": &c.Output.Postgres,
		"HW_CACHE":    &c.Cache.Enabled,
	} {
		if err := boolean(key, dst); err != nil {
			return err
		}
	}
	if v, ok := lookup("HW_WORKERS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return hwerr.Configuration("HW_WORKERS", "not an integer: %q", v)
		}
		c.Refine.Workers = n
	}
	if v, ok := lookup("HW_THRESHOLDS"); ok && v != "" {
		var ts []Threshold
		for _, part := range strings.Split(v, ",") {
			t, err := ParseThreshold(part)
			if err != nil {
				return hwerr.Configuration("HW_THRESHOLDS", "%v", err)
			}
			ts = append(ts, t)
		}
		c.Trace.Thresholds = ts
	}
	if v, ok := lookup("HW_RULES"); ok && v != "" {
		c.Trace.Rules = strings.Split(v, ",")
	}
	return nil
}

// Validate：输入、阈值与规则集的合法性
func (c *Config) Validate() error {
	if c.Inputs.Points == "" {
		return hwerr.Configuration("inputs.points", "point dataset not configured")
	}
	if c.Network.Source == "geojson" && c.Inputs.Network == "" {
		return hwerr.Configuration("inputs.network", "network dataset not configured")
	}
	if c.Network.Source == "graph" && c.Memgraph.URI == "" {
		return hwerr.Configuration("memgraph.uri", "graph network source requires a database uri")
	}
	if c.Network.Source != "geojson" && c.Network.Source != "graph" {
		return hwerr.Configuration("network.source", "unknown source %q", c.Network.Source)
	}
	if c.Inputs.Catchments == "" {
		return hwerr.Configuration("inputs.catchments", "catchment dataset not configured")
	}
	if c.Catchments.IDField == "" {
		return hwerr.Configuration("catchments.id_field", "identity field not configured")
	}
	if len(c.Trace.Thresholds) == 0 {
		return hwerr.Configuration("trace.thresholds", "at least one threshold required")
	}
	seen := map[string]bool{}
	for _, t := range c.Trace.Thresholds {
		if t.Meters() <= 0 {
			return hwerr.Configuration("trace.thresholds", "threshold %s must be positive", t.Name())
		}
		switch strings.ToLower(t.Unit) {
		case "", "m", "km", "mi":
		default:
			return hwerr.Configuration("trace.thresholds", "unknown unit %q", t.Unit)
		}
		if seen[t.Name()] {
			return hwerr.Configuration("trace.thresholds", "duplicate threshold %s", t.Name())
		}
		seen[t.Name()] = true
	}
	if _, err := hydro.ParseRules(c.Trace.Rules); err != nil {
		return hwerr.Configuration("trace.rules", "%v", err)
	}
	if c.Trace.SnapTolerance <= 0 || c.Trace.BarrierTolerance < 0 {
		return hwerr.Configuration("trace", "tolerances must be positive")
	}
	if c.Refine.Precise && c.Inputs.FlowDirDir == "" {
		return hwerr.Configuration("inputs.flowdir_dir", "precise mode requires a flow direction directory")
	}
	if c.Refine.Precise && c.Catchments.ZoneField == "" {
		return hwerr.Configuration("catchments.zone_field", "precise mode requires a tile field")
	}
	if _, err := c.CacheTTL(); err != nil {
		return err
	}
	return nil
}

func (c *Config) RuleSet() hydro.RuleSet {
	rs, _ := hydro.ParseRules(c.Trace.Rules)
	return rs
}

func (c *Config) NetworkFields() hydro.Fields {
	n := c.Network
	return hydro.Fields{ID: n.IDField, From: n.FromField, To: n.ToField, Length: n.LengthField, FType: n.FTypeField, FCode: n.FCodeField}
}

func (c *Config) TraceConfig() trace.Config {
	return trace.Config{SnapTolerance: c.Trace.SnapTolerance, BarrierTolerance: c.Trace.BarrierTolerance, SolvePerPoint: c.Trace.SolvePerPoint}
}

func (c *Config) RefineConfig() refine.Config {
	return refine.Config{
		SourceDir:     c.Inputs.FlowDirDir,
		FdirName:      c.Inputs.FlowDir,
		Workers:       c.Refine.Workers,
		PourSnapCells: c.Refine.PourSnapCells,
		WriteScratch:  c.Refine.WriteScratch,
	}
}

func (c *Config) CacheTTL() (time.Duration, error) {
	if c.Cache.TTL == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Cache.TTL)
	if err != nil {
		return 0, hwerr.Configuration("cache.ttl", "bad duration %q", c.Cache.TTL)
	}
	return d, nil
}
