package remuxer

import (
	"fmt"
)

// Kind is the kind of an Error.
type Kind int

// error kinds.
const (
	// KindUsage is a malformed invocation or a malformed track option.
	KindUsage Kind = iota

	// KindContainer is a failure of the container service.
	KindContainer

	// KindResource is a failure to allocate internal resources.
	KindResource
)

func (k Kind) String() string {
	switch k {
	case KindUsage:
		return "usage"
	case KindContainer:
		return "container"
	case KindResource:
		return "resource"
	}
	return "unknown"
}

// Error is an error returned by Remuxer.
type Error struct {
	Kind Kind
	Err  error
}

// Error implements error.
func (e *Error) Error() string {
	return e.Err.Error()
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, format string, args ...interface{}) error {
	return &Error{
		Kind: kind,
		Err:  fmt.Errorf(format, args...),
	}
}
