package domain

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrNotLoggedIn is returned when a remote answers as if the session is gone
	// (redirect to a login page or an empty notification payload).
	ErrNotLoggedIn = errors.New("user is not logged in")
	// ErrLoginFailed is returned when the session is still dead after an
	// interactive login.
	ErrLoginFailed = errors.New("login failed")
)

// HTTPStatusError is a non-2xx answer that is not classified otherwise.
type HTTPStatusError struct {
	Op   string
	Code int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status code %d", e.Op, e.Code)
}

// APIError is a well-formed response whose embedded status is not "ok".
type APIError struct {
	Op      string
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: code %s: %s", e.Op, e.Code, e.Message)
}

// IsAuthError reports whether err means the session must be re-established.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrNotLoggedIn) || errors.Is(err, ErrLoginFailed)
}
