package spatial

import "fmt"

// ValidationKind classifies a validation failure.
type ValidationKind string

// Validation failure kinds.
const (
	MissingField  ValidationKind = "MISSING_FIELD"
	OutOfRange    ValidationKind = "OUT_OF_RANGE"
	BadGeometry   ValidationKind = "BAD_GEOMETRY"
	BadQuaternion ValidationKind = "BAD_QUATERNION"
)

// ValidationError is a structured error naming the offending field. It is
// always surfaced to the caller, never swallowed: malformed data must not
// reach the bus.
type ValidationError struct {
	Kind    ValidationKind
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return string(e.Kind) + ": " + e.Message
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Field, e.Message)
}

func validationErr(kind ValidationKind, field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Kind: kind, Field: field, Message: fmt.Sprintf(format, args...)}
}
