// 包 hwerr：追溯与汇水区解析流程的错误分类
// 背景：校验与配置错误在处理前即终止；追溯求解错误只中止当前阈值；数据质量问题只记录不中断。
package hwerr

import (
	"errors"
	"fmt"
)

// ValidationError：输入数据不满足约束（如 ID 字段非数值或存在重复值）
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: field %q: %s", e.Field, e.Reason)
}

// ConfigurationError：必需的图层或字段缺失
type ConfigurationError struct {
	Item   string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s: %s", e.Item, e.Reason)
}

// TraceSolveError：整批追溯求解失败；调用方不得假设存在部分结果
type TraceSolveError struct {
	Threshold string
	Err       error
}

func (e *TraceSolveError) Error() string {
	return fmt.Sprintf("trace solve failed (threshold %s): %v", e.Threshold, e.Err)
}

func (e *TraceSolveError) Unwrap() error { return e.Err }

// 数据质量告警编码
const (
	CodeUntraced          = "untraced_point"
	CodeNoStartEdge       = "no_start_edge"
	CodeDuplicateStart    = "duplicate_start_edge"
	CodeMissingParent     = "missing_parent_catchment"
	CodeMissingFlowDir    = "missing_flow_direction"
	CodeEmptySubcatchment = "empty_subcatchment"
	CodeUnresolved        = "unresolved_point"
	CodeMultipleFallback  = "multiple_fallback_catchments"
	CodeNoCatchments      = "no_catchments"
)

// DataQualityWarning：非致命的数据质量问题；受影响的点回退到粗汇水区或被标记为未解析
type DataQualityWarning struct {
	PointID int64
	Code    string
	Detail  string
}

func (w DataQualityWarning) Error() string {
	if w.PointID == 0 {
		return fmt.Sprintf("data quality [%s]: %s", w.Code, w.Detail)
	}
	return fmt.Sprintf("data quality [%s] point %d: %s", w.Code, w.PointID, w.Detail)
}

func Validation(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

func Configuration(item, format string, args ...any) error {
	return &ConfigurationError{Item: item, Reason: fmt.Sprintf(format, args...)}
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func IsConfiguration(err error) bool {
	var c *ConfigurationError
	return errors.As(err, &c)
}

func IsTraceSolve(err error) bool {
	var t *TraceSolveError
	return errors.As(err, &t)
}

// Fatal：校验与配置错误需在任何处理开始前上报并终止
func Fatal(err error) bool { return IsValidation(err) || IsConfiguration(err) }
