package params

import "fmt"

// ConfigurationError reports a bad preset, key or override. It is fatal for
// the whole batch.
type ConfigurationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s=%q: %s", e.Field, e.Value, e.Reason)
}

// InvariantViolationError means a generated value left its declared range.
// Reaching it indicates a generator bug.
type InvariantViolationError struct {
	Dimension Dimension
	Value     float64
	Range     Range
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("invariant violation: %s=%g outside [%g, %g]", e.Dimension, e.Value, e.Range.Min, e.Range.Max)
}
