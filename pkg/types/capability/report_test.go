package capability

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationReport_Empty(t *testing.T) {
	r := &ValidationReport{}

	assert.True(t, r.Passed())
	assert.Equal(t, StatusClean, r.Status())
	assert.Empty(t, r.Errors())
	assert.Empty(t, r.Warnings())
}

func TestValidationReport_WarningsOnly(t *testing.T) {
	r := &ValidationReport{}
	r.AddWarning("invalid_version", "version is not a semver", "module_info.version")
	r.AddWarning("nonstandard_category", "category is not standard", "module_exports.gadgets")

	assert.True(t, r.Passed())
	assert.Equal(t, StatusWarned, r.Status())
	assert.Len(t, r.Warnings(), 2)
	assert.Empty(t, r.Errors())
}

func TestValidationReport_ErrorsDominate(t *testing.T) {
	r := &ValidationReport{}
	r.AddWarning("invalid_version", "version is not a semver", "module_info.version")
	r.AddError("missing_field", "name is required", "module_info.name")

	assert.False(t, r.Passed())
	assert.Equal(t, StatusFailed, r.Status())
	assert.Len(t, r.Errors(), 1)
	assert.Len(t, r.Warnings(), 1)

	e := r.Errors()[0]
	assert.Equal(t, SeverityError, e.Severity)
	assert.Equal(t, "missing_field", e.Code)
	assert.Equal(t, "module_info.name", e.Path)
}

func TestValidationReport_ChecksPreserveOrder(t *testing.T) {
	r := &ValidationReport{}
	r.AddError("a", "first", "")
	r.AddWarning("b", "second", "")
	r.AddError("c", "third", "")

	codes := make([]string, 0, len(r.Checks))
	for _, c := range r.Checks {
		codes = append(codes, c.Code)
	}
	assert.Equal(t, []string{"a", "b", "c"}, codes)
}
