package gateway

import (
	"errors"
	"fmt"
)

// Kind classifies why a completion produced no text.
type Kind string

const (
	KindNotConfigured Kind = "not_configured"
	KindTransport     Kind = "transport_failure"
	KindUpstream      Kind = "upstream_error"
	KindEmpty         Kind = "empty_completion"
)

var (
	ErrNotConfigured   = errors.New("completion gateway not configured")
	ErrTransport       = errors.New("completion transport failure")
	ErrUpstream        = errors.New("completion upstream error")
	ErrEmptyCompletion = errors.New("empty completion")
)

func (k Kind) sentinel() error {
	switch k {
	case KindNotConfigured:
		return ErrNotConfigured
	case KindTransport:
		return ErrTransport
	case KindUpstream:
		return ErrUpstream
	default:
		return ErrEmptyCompletion
	}
}

// Error is returned by Complete. It matches its kind's sentinel with
// errors.Is and unwraps to the underlying cause.
type Error struct {
	Kind   Kind
	Model  string
	Status int // HTTP status for KindUpstream
	Err    error
}

func (e *Error) Error() string {
	var msg string
	switch {
	case e.Status != 0:
		msg = fmt.Sprintf("%s (model %s, status %d)", e.Kind.sentinel(), e.Model, e.Status)
	case e.Model != "":
		msg = fmt.Sprintf("%s (model %s)", e.Kind.sentinel(), e.Model)
	default:
		msg = e.Kind.sentinel().Error()
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == e.Kind.sentinel() }

// KindOf returns the kind of a gateway error, or "" for other errors.
func KindOf(err error) Kind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return ""
}
