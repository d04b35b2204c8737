package client

import (
	"errors"
	"fmt"
)

var (
	// ErrNoTerminal is returned by Prompt when stdin is not a terminal and
	// the password therefore cannot be read without echo.
	ErrNoTerminal = errors.New("no terminal available for interactive password prompt")

	// ErrNoMatchingDevice is returned by ResolveDevice when neither a
	// hostname nor a device ID matches the argument.
	ErrNoMatchingDevice = errors.New("no device with hostname or device ID")

	// ErrAmbiguousDevice is returned by ResolveDevice when more than one
	// device reports the requested hostname.
	ErrAmbiguousDevice = errors.New("multiple devices with hostname")
)

// AuthError reports a failed login. Err holds the underlying transport or
// HTTP status error. Calls is the number of API calls made before giving up.
type AuthError struct {
	Username string
	Calls    int64
	Err      error
}

func (e *AuthError) Error() string {
	if e.Username == "" {
		return fmt.Sprintf("authenticate: %v", e.Err)
	}
	return fmt.Sprintf("authenticate %s: %v", e.Username, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// TransportError reports a request that never produced an HTTP response.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// HTTPStatusError reports a response with a status code of 400 or above.
// Client and server errors are not distinguished.
type HTTPStatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: server returned HTTP %d", e.Method, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: server returned HTTP %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}
