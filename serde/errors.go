package serde

import (
	"errors"
	"fmt"
)

var (
	ErrSerialization = errors.New("serde: value does not conform to schema")
	ErrSchema        = errors.New("serde: invalid schema")
	ErrWireFormat    = errors.New("serde: malformed wire frame")
)

// SerializationError is returned synchronously when a native value cannot be
// encoded with the subject's schema. Nothing is sent in that case.
type SerializationError struct {
	Subject string
	Err     error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("serde: serialize %s: %v", e.Subject, e.Err)
}

func (e *SerializationError) Unwrap() error { return e.Err }

func (e *SerializationError) Is(target error) bool { return target == ErrSerialization }
