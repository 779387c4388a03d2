package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/noah-network/noah/pkg/util"
)

// HTTPError is returned when the server answered with a non-2xx status
type HTTPError struct {
	Method  string
	Path    string
	Status  int
	Message string // envelope "message", when the body carried one
	Body    []byte
}

func (e *HTTPError) Error() string {
	msg := fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Status, http.StatusText(e.Status))
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

// Is lets errors.Is(err, util.ErrAuthExpired) match a 401 response
func (e *HTTPError) Is(target error) bool {
	return target == util.ErrAuthExpired && e.Status == http.StatusUnauthorized
}

// NetworkError is returned when no response was received
type NetworkError struct {
	Method  string
	Path    string
	Timeout bool
	Err     error
}

func (e *NetworkError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("%s %s: request timed out: %v", e.Method, e.Path, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
}

func (e *NetworkError) Unwrap() []error {
	if e.Timeout {
		return []error{e.Err, util.ErrNetwork, util.ErrTimeout}
	}
	return []error{e.Err, util.ErrNetwork}
}

// StatusCode returns the HTTP status carried by err, if any
func StatusCode(err error) (int, bool) {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.Status, true
	}
	return 0, false
}

// Message returns the best human-readable message for err: the server's
// envelope message, then fallback when the failure is a bare transport or
// status error, then the error text.
func Message(err error, fallback string) string {
	if err == nil {
		return ""
	}
	var he *HTTPError
	if errors.As(err, &he) {
		if he.Message != "" {
			return he.Message
		}
		if fallback != "" {
			return fallback
		}
	}
	var ne *NetworkError
	if errors.As(err, &ne) && fallback != "" {
		return fallback
	}
	if s := err.Error(); s != "" {
		return s
	}
	return fallback
}
