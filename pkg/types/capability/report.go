package capability

// Severity classifies a validation finding.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Check is a single validation finding. Path points at the offending
// declaration, e.g. "module_info.version" or "module_exports.tools[2]".
type Check struct {
	Severity Severity `json:"severity"`
	Code     string   `json:"code"`
	Message  string   `json:"message"`
	Path     string   `json:"path,omitempty"`
}

// ReportStatus is the rolled-up outcome of a validation run.
type ReportStatus string

const (
	// StatusClean means no findings at all.
	StatusClean ReportStatus = "clean"
	// StatusWarned means warnings only; the unit is still registrable.
	StatusWarned ReportStatus = "warned"
	// StatusFailed means at least one error-severity finding.
	StatusFailed ReportStatus = "failed"
)

// ValidationReport collects the outcome of one validation run: the
// labels of checks that passed plus the findings that did not. Findings
// are data, never panics: an adversarial declaration produces a Failed
// report, not a crash.
type ValidationReport struct {
	Passes []string `json:"passes,omitempty"`
	Checks []Check  `json:"checks,omitempty"`
}

// AddPass records the label of a check that passed.
func (r *ValidationReport) AddPass(label string) {
	r.Passes = append(r.Passes, label)
}

// AddError appends an error-severity finding.
func (r *ValidationReport) AddError(code, message, path string) {
	r.Checks = append(r.Checks, Check{Severity: SeverityError, Code: code, Message: message, Path: path})
}

// AddWarning appends a warning-severity finding.
func (r *ValidationReport) AddWarning(code, message, path string) {
	r.Checks = append(r.Checks, Check{Severity: SeverityWarning, Code: code, Message: message, Path: path})
}

// Passed reports whether the run produced no error-severity findings.
func (r *ValidationReport) Passed() bool {
	for _, c := range r.Checks {
		if c.Severity == SeverityError {
			return false
		}
	}
	return true
}

// Errors returns the error-severity findings.
func (r *ValidationReport) Errors() []Check {
	var out []Check
	for _, c := range r.Checks {
		if c.Severity == SeverityError {
			out = append(out, c)
		}
	}
	return out
}

// Warnings returns the warning-severity findings.
func (r *ValidationReport) Warnings() []Check {
	var out []Check
	for _, c := range r.Checks {
		if c.Severity == SeverityWarning {
			out = append(out, c)
		}
	}
	return out
}

// Status rolls the findings up into Clean, Warned, or Failed.
func (r *ValidationReport) Status() ReportStatus {
	if !r.Passed() {
		return StatusFailed
	}
	if len(r.Checks) > 0 {
		return StatusWarned
	}
	return StatusClean
}
