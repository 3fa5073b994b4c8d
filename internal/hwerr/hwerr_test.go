package hwerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassification(t *testing.T) {
	v := Validation("gauge_id", "contains %d duplicate values", 2)
	c := Configuration("catchments", "missing identity field %q", "FEATUREID")
	s := &TraceSolveError{Threshold: "2km", Err: errors.New("network not built")}

	assert.True(t, IsValidation(v))
	assert.False(t, IsValidation(c))
	assert.True(t, IsConfiguration(fmt.Errorf("load: %w", c)))
	assert.True(t, IsTraceSolve(fmt.Errorf("run: %w", s)))
	assert.True(t, Fatal(v))
	assert.True(t, Fatal(c))
	assert.False(t, Fatal(s))
	assert.Contains(t, v.Error(), `"gauge_id"`)
	assert.ErrorContains(t, s, "network not built")
}

func TestWarningMessage(t *testing.T) {
	w := DataQualityWarning{PointID: 20, Code: CodeDuplicateStart, Detail: "2 starting edges"}
	assert.Equal(t, "data quality [duplicate_start_edge] point 20: 2 starting edges", w.Error())
	w = DataQualityWarning{Code: CodeNoCatchments, Detail: "layer is empty"}
	assert.Equal(t, "data quality [no_catchments]: layer is empty", w.Error())
}
