package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrorKind classifies why a fetch failed.
type ErrorKind string

const (
	ErrTimeout     ErrorKind = "timeout"
	ErrConnection  ErrorKind = "connection"
	ErrForbidden   ErrorKind = "forbidden"
	ErrNotFound    ErrorKind = "not_found"
	ErrRateLimited ErrorKind = "rate_limited"
	ErrStatus      ErrorKind = "status"
	ErrNavigation  ErrorKind = "navigation"
	ErrOther       ErrorKind = "other"
)

// FetchError reports a failed fetch: a non-2xx status, a network failure or
// a browser navigation failure.
type FetchError struct {
	URL    string
	Status int
	Kind   ErrorKind
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: %s: status %d", e.URL, e.Kind, e.Status)
	}
	if e.Err == nil {
		return fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
	}
	return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Classify wraps a transport error and/or HTTP status into a FetchError.
// It returns nil for a nil error with a 2xx status.
func Classify(url string, err error, status int) *FetchError {
	if err == nil && status >= 200 && status < 300 {
		return nil
	}

	fe := &FetchError{URL: url, Status: status, Err: err}

	var netErr net.Error
	var opErr *net.OpError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		fe.Kind = ErrTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		fe.Kind = ErrTimeout
	case errors.As(err, &opErr):
		fe.Kind = ErrConnection
	case status == http.StatusForbidden:
		fe.Kind = ErrForbidden
	case status == http.StatusNotFound:
		fe.Kind = ErrNotFound
	case status == http.StatusTooManyRequests:
		fe.Kind = ErrRateLimited
	case status != 0:
		fe.Kind = ErrStatus
	default:
		fe.Kind = ErrOther
	}
	return fe
}

// Label maps an error to a low-cardinality metrics label.
func Label(err error) string {
	if err == nil {
		return "ok"
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return string(fe.Kind)
	}
	return string(ErrOther)
}
