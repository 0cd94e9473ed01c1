package graph

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownSystem matches any lookup of a name absent from the Universe.
	ErrUnknownSystem = errors.New("unknown system")

	// ErrMalformedGraph is returned by Build when the input is inconsistent:
	// asymmetric stargates, dangling references, duplicate names or
	// conflicting jump bridges. It is fatal for engine start-up.
	ErrMalformedGraph = errors.New("malformed graph")
)

// UnknownSystemError names the system that could not be found.
type UnknownSystemError struct {
	Name string
}

func (e *UnknownSystemError) Error() string {
	return fmt.Sprintf("unknown system %q", e.Name)
}

// Is reports ErrUnknownSystem as the sentinel for this error.
func (e *UnknownSystemError) Is(target error) bool {
	return target == ErrUnknownSystem
}

func unknown(name string) error {
	return &UnknownSystemError{Name: name}
}

func malformed(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrMalformedGraph, fmt.Sprintf(format, args...))
}
