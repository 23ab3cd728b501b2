package artifactory

import (
	"errors"
	"fmt"
)

// Kind separates failures the caller can act on locally from failures
// that originate on the network or the server.
type Kind int

const (
	// KindIO covers local filesystem failures (creating or writing the
	// destination file).
	KindIO Kind = iota + 1
	// KindTransport covers connection failures, non-success HTTP statuses
	// and response bodies that cannot be decoded.
	KindTransport
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "io"
	case KindTransport:
		return "transport"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is the only error type returned by Client operations.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("artifactory %s: %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// StatusError is wrapped by a transport Error when the server answers
// with a status outside the 2xx range.
type StatusError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("failed to fetch %s : %s", e.URL, e.Status)
}

func ioError(op string, err error) error {
	return &Error{Kind: KindIO, Op: op, Err: err}
}

func transportError(op string, err error) error {
	return &Error{Kind: KindTransport, Op: op, Err: err}
}

func isKind(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}

// IsIO reports whether err is a local filesystem failure.
func IsIO(err error) bool {
	return isKind(err, KindIO)
}

// IsTransport reports whether err originated in the HTTP layer.
func IsTransport(err error) bool {
	return isKind(err, KindTransport)
}

// StatusCode returns the HTTP status carried by err, or 0 if err does not
// wrap a *StatusError.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}
