package mcp

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingArgument is returned when a required tool argument is absent.
	ErrMissingArgument = errors.New("mcp: missing argument")

	// ErrInvalidArgument is returned when a tool argument has the wrong shape.
	ErrInvalidArgument = errors.New("mcp: invalid argument")
)

// ArgumentError names the tool argument that could not be used.
type ArgumentError struct {
	Argument string
	Err      error
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("argument %s: %v", e.Argument, e.Err)
}

func (e *ArgumentError) Unwrap() error {
	return e.Err
}

// Missing reports a required argument that was not supplied.
func Missing(arg string) error {
	return &ArgumentError{Argument: arg, Err: ErrMissingArgument}
}

// Invalid reports an argument that could not be decoded.
func Invalid(arg string, err error) error {
	return &ArgumentError{Argument: arg, Err: fmt.Errorf("%w: %v", ErrInvalidArgument, err)}
}
