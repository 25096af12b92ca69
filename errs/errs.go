// Package errs defines the error kinds shared by the training and serving pipelines.
package errs

import (
	"errors"
	"fmt"
)

var (
	Transfer          = errors.New("transfer error")
	Authentication    = errors.New("authentication error")
	NotFound          = errors.New("not found")
	Parse             = errors.New("parse error")
	Schema            = errors.New("schema error")
	EmptyDataset      = errors.New("empty dataset")
	DimensionMismatch = errors.New("dimension mismatch")
	Validation        = errors.New("validation error")
	Decode            = errors.New("artifact decode error")
	Invalid           = errors.New("invalid argument")
	NotReady          = errors.New("model not loaded")
)

var kinds = []error{
	Transfer, Authentication, NotFound, Parse, Schema, EmptyDataset,
	DimensionMismatch, Validation, Decode, Invalid, NotReady,
}

// Error wraps a failure of operation Op with one of the kinds above.
type Error struct {
	Kind error
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Kind.Error()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// E builds an *Error. A nil err still yields an error carrying the kind.
func E(kind error, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Ef is E with a formatted cause.
func Ef(kind error, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the first known kind found in err's chain, or nil.
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// Name is the short, stable label used in JSON error bodies and logs.
func Name(kind error) string {
	switch kind {
	case Transfer:
		return "transfer"
	case Authentication:
		return "authentication"
	case NotFound:
		return "not_found"
	case Parse:
		return "parse"
	case Schema:
		return "schema"
	case EmptyDataset:
		return "empty_dataset"
	case DimensionMismatch:
		return "dimension_mismatch"
	case Validation:
		return "validation"
	case Decode:
		return "decode"
	case Invalid:
		return "invalid"
	case NotReady:
		return "not_ready"
	default:
		return "internal"
	}
}
