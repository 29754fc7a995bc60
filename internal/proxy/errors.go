package proxy

import (
	"fmt"
	"time"
)

// hostUnavailableError signals the host is unreachable (stale or missing
// liveness) before any request was posted.
type hostUnavailableError struct{ reason string }

func (e hostUnavailableError) Error() string { return "model host unavailable: " + e.reason }

// IsHostUnavailable reports whether err means the host could not be reached.
func IsHostUnavailable(err error) bool {
	_, ok := err.(hostUnavailableError)
	return ok
}

// requestTimeoutError signals a round trip that never saw its response.
type requestTimeoutError struct {
	action  string
	timeout time.Duration
}

func (e requestTimeoutError) Error() string {
	return fmt.Sprintf("request %s timed out after %s", e.action, e.timeout)
}

// IsRequestTimeout reports whether err is a proxy-side round trip timeout.
func IsRequestTimeout(err error) bool {
	_, ok := err.(requestTimeoutError)
	return ok
}
