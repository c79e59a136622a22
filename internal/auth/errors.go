// File: internal/auth/errors.go
package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrElementNotFound is returned by Document lookups when no element matches.
	ErrElementNotFound = errors.New("element not found")
	// ErrNotAuthenticated is returned when a client is requested before a successful Authenticate.
	ErrNotAuthenticated = errors.New("not authenticated")
)

// NavigationError reports a page that failed to load, returned a failing status,
// or raised a script error.
type NavigationError struct {
	URL string
	Err error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigation to %s failed: %v", e.URL, e.Err)
}

func (e *NavigationError) Unwrap() error { return e.Err }

// EngineError reports a structural failure of the handshake: a missing form control,
// a session that could not be opened, or a cookie jar that could not be read.
type EngineError struct {
	Op      string
	Locator string
	Err     error
}

func (e *EngineError) Error() string {
	if e.Locator != "" {
		return fmt.Sprintf("authentication engine error: %s %q: %v", e.Op, e.Locator, e.Err)
	}
	return fmt.Sprintf("authentication engine error: %s: %v", e.Op, e.Err)
}

func (e *EngineError) Unwrap() error { return e.Err }

// TimeoutError reports a settle wait that was interrupted.
type TimeoutError struct {
	URL   string
	Stage string
	Err   error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("interrupted while waiting for %s to settle (%s): %v", e.URL, e.Stage, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// AuthenticationFailedError means the handshake completed but the marker cookie was not issued.
// The credentials were rejected or a sign-in policy was not satisfied.
type AuthenticationFailedError struct {
	URL    string
	Marker string
}

func (e *AuthenticationFailedError) Error() string {
	return fmt.Sprintf("authentication to %s failed: cookie %q was not issued", e.URL, e.Marker)
}
