package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// ServiceError is returned when the server answers with a non-2xx status.
// Body holds the response body as text, unmodified.
type ServiceError struct {
	Status int
	Body   string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("Server error: %d - %s", e.Status, e.Body)
}

// NetworkError is returned when the request never produced an HTTP
// response: the host was unreachable, the connection dropped, the call was
// abandoned, or the bounded wait expired.
type NetworkError struct {
	Op      string
	URL     string
	Err     error
	timeout time.Duration
}

func (e *NetworkError) Error() string {
	if e.Timeout() {
		return fmt.Sprintf("%s %s: request timed out after %s", e.Op, e.URL, e.timeout)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the request was cut off by the client timeout.
func (e *NetworkError) Timeout() bool {
	if e.timeout <= 0 {
		return false
	}
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(e.Err, &ne) && ne.Timeout()
}

// Canceled reports whether the request was abandoned by the caller.
func (e *NetworkError) Canceled() bool {
	return errors.Is(e.Err, context.Canceled)
}
