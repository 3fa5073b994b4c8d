package hydro

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// NHD 要素类型（FType）
const (
	FTypeConnector   = 334
	FTypeCanal       = 336
	FTypeDam         = 343
	FTypeUnderground = 420
	FTypePipeline    = 428
	FTypeStream      = 460
	FTypeArtificial  = 558
	FTypeCoastline   = 566
)

// NHD 要素编码（FCode）
const (
	FCodeIntermittent = 46003
	FCodeEphemeral    = 46007
)

// RuleSet：上溯通行限制；被排除的流段既不能作为起点也不能被穿越
type RuleSet struct {
	Names         []string
	ExcludeFTypes []int
	ExcludeFCodes []int
}

// 单条限制
var restrictions = map[string]struct {
	ftypes []int
	fcodes []int
}{
	"NoPipelines":           {ftypes: []int{FTypePipeline}},
	"NoUndergroundConduits": {ftypes: []int{FTypeUnderground}},
	"NoCoastline":           {ftypes: []int{FTypeCoastline}},
	"NoConnectors":          {ftypes: []int{FTypeConnector}},
	"NoCanals":              {ftypes: []int{FTypeCanal}},
	"NoEphemeral":           {fcodes: []int{FCodeEphemeral}},
	"NoIntermittent":        {fcodes: []int{FCodeIntermittent}},
}

// 默认规则集：排除管道、地下暗渠、海岸线、季节性与间歇性河段
var DefaultRuleNames = []string{"NoPipelines", "NoUndergroundConduits", "NoEphemeral", "NoIntermittent", "NoCoastline"}

func DefaultRules() RuleSet {
	r, _ := ParseRules(DefaultRuleNames)
	return r
}

// ParseRules：由限制名组合规则集；未知名称报错
func ParseRules(names []string) (RuleSet, error) {
	var rs RuleSet
	seen := map[string]bool{}
	for _, raw := range names {
		name := strings.TrimSpace(raw)
		if name == "" || seen[name] {
			continue
		}
		def, ok := restrictions[name]
		if !ok {
			return RuleSet{}, fmt.Errorf("unknown restriction %q", name)
		}
		seen[name] = true
		rs.Names = append(rs.Names, name)
		rs.ExcludeFTypes = append(rs.ExcludeFTypes, def.ftypes...)
		rs.ExcludeFCodes = append(rs.ExcludeFCodes, def.fcodes...)
	}
	sort.Strings(rs.Names)
	sort.Ints(rs.ExcludeFTypes)
	sort.Ints(rs.ExcludeFCodes)
	return rs, nil
}

func (r RuleSet) Allows(e *Edge) bool {
	for _, t := range r.ExcludeFTypes {
		if e.FType == t {
			return false
		}
	}
	for _, c := range r.ExcludeFCodes {
		if e.FCode == c {
			return false
		}
	}
	return true
}

// Key：规则集的规范文本（用于缓存键）
func (r RuleSet) Key() string {
	var b strings.Builder
	b.WriteString(strings.Join(r.Names, "+"))
	b.WriteString("|t")
	for _, t := range r.ExcludeFTypes {
		b.WriteString(":" + strconv.Itoa(t))
	}
	b.WriteString("|c")
	for _, c := range r.ExcludeFCodes {
		b.WriteString(":" + strconv.Itoa(c))
	}
	return b.String()
}
