package dispatch

import (
	"errors"
)

// Kind classifies a dispatch failure.
type Kind int

const (
	KindMethod Kind = iota + 1
	KindNetwork
	KindHTTP
	KindJSON
	KindUTF8
	KindClient
)

func (k Kind) String() string {
	switch k {
	case KindMethod:
		return "method"
	case KindNetwork:
		return "network"
	case KindHTTP:
		return "http"
	case KindJSON:
		return "json"
	case KindUTF8:
		return "utf8"
	case KindClient:
		return "client"
	default:
		return "unknown"
	}
}

var (
	ErrInvalidMethod    = errors.New("invalid HTTP method")
	ErrInvalidURL       = errors.New("invalid URL")
	ErrInvalidHeader    = errors.New("invalid header")
	ErrInvalidUTF8      = errors.New("invalid utf-8")
	ErrResponseTooLarge = errors.New("response body exceeds limit")
	ErrNilRequest       = errors.New("request is nil")
)

// Error is the single failure value a call produces.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Kind == KindNetwork {
		return "Network error: " + e.Err.Error()
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of err, or 0 when err is not a dispatch error.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return 0
}

func newError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}
