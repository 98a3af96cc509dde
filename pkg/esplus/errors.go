package esplus

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrUnauthenticated is matched by every error that a fresh login could fix:
// requests attempted without a token and 401/403 responses.
var ErrUnauthenticated = errors.New("not authenticated")

// TransportError is returned when the portal could not be reached, answered
// with a non-200 status or with a body that is not JSON.
type TransportError struct {
	Method     string
	Path       string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: unexpected status code %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is reports 401 and 403 responses as ErrUnauthenticated.
func (e *TransportError) Is(target error) bool {
	if target != ErrUnauthenticated {
		return false
	}
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// UpstreamError is returned when the envelope carries a non-zero error code.
// The code is opaque to the client.
type UpstreamError struct {
	Path string
	Code int
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: upstream error %d", e.Path, e.Code)
}

// AuthenticationError is returned when login failed with every login type
// that was attempted.
type AuthenticationError struct {
	LoginType string
	Err       error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed (login_type=%s): %v", e.LoginType, e.Err)
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// DecodeError identifies the record and field that could not be decoded.
type DecodeError struct {
	Record string
	Field  string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: field %q: %v", e.Record, e.Field, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// ValidationError is returned when indications are rejected before being
// sent to the portal.
type ValidationError struct {
	Zone   string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Zone == "" {
		return e.Reason
	}
	return fmt.Sprintf("zone %s: %s", e.Zone, e.Reason)
}

var (
	errMissing   = errors.New("missing")
	errMalformed = errors.New("malformed")
)
