package storage

import (
	"errors"
	"fmt"

	"github.com/stevemurr/treestore/keypath"
)

var (
	// ErrNotFound is matched by every *NotFoundError. It is the only error
	// the core recovers from, and only inside Lift.
	ErrNotFound = errors.New("not found")

	// ErrNotContainer is returned by Append when p holds a scalar.
	ErrNotContainer = errors.New("not a container")

	// ErrInvalidValue is returned when a written value holds a NaN or
	// infinite number.
	ErrInvalidValue = errors.New("invalid value")
)

// NotFoundError is returned when operating on a path that holds nothing.
type NotFoundError struct {
	Path keypath.Path
}

func (err *NotFoundError) Error() string {
	return fmt.Sprintf("path not found: %s", err.Path)
}

func (err *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// NotFound is shorthand for &NotFoundError{Path: p}.
func NotFound(p keypath.Path) error {
	return &NotFoundError{Path: p}
}

// IsNotFound reports whether err matches ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// UnknownOptionError is returned for unsupported backend, codec or policy
// names.
type UnknownOptionError struct {
	Option string
	Value  string
}

func (err *UnknownOptionError) Error() string {
	return fmt.Sprintf("unknown %s: %q", err.Option, err.Value)
}
