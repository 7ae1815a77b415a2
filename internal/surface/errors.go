package surface

import "errors"

var (
	// ErrMissingParam indicates a parameter required by the schema is absent.
	ErrMissingParam = errors.New("surface: missing parameter")
	// ErrUnknownParam indicates a parameter that is not part of the schema.
	ErrUnknownParam = errors.New("surface: unknown parameter")
	// ErrParamType indicates a parameter value of the wrong kind.
	ErrParamType = errors.New("surface: parameter has wrong type")
	// ErrUnknownFunction indicates a function name with no registered constructor.
	ErrUnknownFunction = errors.New("surface: unknown function")
	// ErrDimension indicates an invalid dimensionality.
	ErrDimension = errors.New("surface: invalid dimension")
	// ErrShape indicates array arguments that cannot be broadcast together.
	ErrShape = errors.New("surface: arrays cannot be broadcast together")
	// ErrSearchSpace indicates a malformed search space.
	ErrSearchSpace = errors.New("surface: invalid search space")
)
