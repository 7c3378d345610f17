package segmap

import (
	"errors"
	"fmt"
)

// --------------------------------------------------------------------------
// Sentinel errors
// --------------------------------------------------------------------------

var (
	// ErrInvalidConfig is wrapped by every *ConfigError.
	ErrInvalidConfig = errors.New("segmap: invalid configuration")

	// ErrNilKey is reported when a nil key is passed to the map.
	ErrNilKey = errors.New("segmap: nil key")

	// ErrNilValue is reported when a nil value is passed where a value is required.
	ErrNilValue = errors.New("segmap: nil value")

	// ErrIllegalState is returned by Iterator.Remove without a preceding Next.
	ErrIllegalState = errors.New("segmap: iterator has no current element")

	// ErrNoSuchElement is returned by Iterator.Next once the iterator is exhausted.
	ErrNoSuchElement = errors.New("segmap: no such element")
)

// --------------------------------------------------------------------------
// Error types
// --------------------------------------------------------------------------

// ConfigError describes a rejected constructor argument.
type ConfigError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s=%v %s", ErrInvalidConfig, e.Field, e.Value, e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfig
}

// PreconditionError is the panic value used when an operation is called with
// a nil key or value.
type PreconditionError struct {
	Op  string
	Err error
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PreconditionError) Unwrap() error {
	return e.Err
}
