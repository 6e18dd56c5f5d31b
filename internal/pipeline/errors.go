package pipeline

import "fmt"

// InvalidGeometryError rejects a source with non-positive dimensions.
type InvalidGeometryError struct {
	Width  int
	Height int
}

func (e *InvalidGeometryError) Error() string {
	return fmt.Sprintf("invalid geometry %dx%d: width and height must be positive", e.Width, e.Height)
}

// InvariantViolationError is raised instead of clamping when a
// modification value falls outside what its filter accepts.
type InvariantViolationError struct {
	Field  string
	Value  float64
	Reason string
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("invariant violation: %s=%g: %s", e.Field, e.Value, e.Reason)
}
