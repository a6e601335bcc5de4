package client

import (
	"errors"
	"fmt"
)

// Kind partitions job failures into the small closed set a caller needs to
// distinguish: configuration mistakes are fatal and never retried, transport
// failures mean the job's fate is unknown (resubmitting would duplicate
// compute), content rejections warrant a different user-facing message, and
// result errors mean the engine finished without producing anything usable.
type Kind int

const (
	KindConfig Kind = iota + 1
	KindTransport
	KindProtocol
	KindContent
	KindResult
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindTransport:
		return "transport"
	case KindProtocol:
		return "protocol"
	case KindContent:
		return "content"
	case KindResult:
		return "result"
	default:
		return "unknown"
	}
}

// Error is a job failure tagged with its Kind.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s error", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the failure kind of err, or 0 if err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func wrapErr(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func errorf(kind Kind, op string, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}
