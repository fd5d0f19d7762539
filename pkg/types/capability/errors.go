package capability

import "fmt"

// LoadErrorKind distinguishes the ways a unit can reach Failed.
type LoadErrorKind string

const (
	// LoadErrSpawn means the unit's executable could not be started.
	LoadErrSpawn LoadErrorKind = "spawn"
	// LoadErrTimeout means describe did not finish within the per-unit timeout.
	LoadErrTimeout LoadErrorKind = "timeout"
	// LoadErrOutput means the describe output exceeded the configured cap.
	LoadErrOutput LoadErrorKind = "output"
	// LoadErrDecode means the describe output was not a JSON object.
	LoadErrDecode LoadErrorKind = "decode"
	// LoadErrValidation means the unit's declarations failed validation.
	LoadErrValidation LoadErrorKind = "validation"
	// LoadErrPolicy means the unit validated with warnings and the link
	// policy excludes warned units.
	LoadErrPolicy LoadErrorKind = "policy"
	// LoadErrIncompatible means the unit declares a platform or runtime
	// requirement the host does not meet.
	LoadErrIncompatible LoadErrorKind = "incompatible"
	// LoadErrFiltered means the unit was excluded by an allow/deny pattern.
	LoadErrFiltered LoadErrorKind = "filtered"
)

// LoadError is the terminal error recorded on a Failed unit. It is data
// on the unit record, not a thrown error: a broken unit never takes its
// siblings down.
type LoadError struct {
	Kind    LoadErrorKind `json:"kind"`
	Message string        `json:"message"`
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewLoadError builds a LoadError with a formatted message.
func NewLoadError(kind LoadErrorKind, format string, args ...any) *LoadError {
	return &LoadError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}
