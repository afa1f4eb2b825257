package appclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Error classification:
//
//   - *InvalidCredentialsError: credentials rejected locally, nothing was
//     sent over the wire.
//   - *ServerError: the backend rejected a request. For Login this is the
//     "authentication failed" case (IsAuthError reports true); for Call it is
//     the Data API rejection passed through verbatim.
//   - ErrNotAuthenticated: Call was made while no user is logged in.
//   - ErrAuthenticationExpired: the refresh-and-retry cycle is exhausted or
//     the refresh token was revoked; the caller must Login again.
//   - *transport.Error: network-level failure, passed through verbatim.
var (
	// ErrNotAuthenticated is returned by Call when no user is logged in.
	ErrNotAuthenticated = errors.New("appclient: not authenticated")

	// ErrAuthenticationExpired is returned when the session can no longer be
	// refreshed. A new Login is required.
	ErrAuthenticationExpired = errors.New("appclient: authentication expired")
)

// InvalidCredentialsError reports credentials that failed local validation.
type InvalidCredentialsError struct {
	Provider string
	Reason   string
}

// Error implements the error interface.
func (e *InvalidCredentialsError) Error() string {
	return fmt.Sprintf("appclient: invalid %s credentials: %s", e.Provider, e.Reason)
}

// ServerError represents an error response from the App Services backend.
type ServerError struct {
	// Op is the operation that failed: "login", "refresh", "profile",
	// "logout", or a Data API action such as "findOne".
	Op         string `json:"-"`
	StatusCode int    `json:"-"`
	ErrorCode  string `json:"error_code,omitempty"`
	Message    string `json:"error"`
	Link       string `json:"link,omitempty"`
}

// Error implements the error interface.
func (e *ServerError) Error() string {
	if e.ErrorCode != "" {
		return fmt.Sprintf("appclient: %s: %s (%s)", e.Op, e.Message, e.ErrorCode)
	}
	return fmt.Sprintf("appclient: %s: %s", e.Op, e.Message)
}

// IsAuthError reports whether the backend rejected the request for
// authentication reasons (expired or invalid token, bad credentials).
func (e *ServerError) IsAuthError() bool {
	return e.StatusCode == http.StatusUnauthorized
}

// InvalidSessionCode is the backend error code for a revoked or expired
// refresh token.
const InvalidSessionCode = "InvalidSession"

// serverError decodes an error response body. Bodies that do not parse as
// the documented {error, error_code, link} shape are preserved verbatim in
// Message.
func serverError(op string, statusCode int, body []byte) *ServerError {
	serr := &ServerError{Op: op, StatusCode: statusCode}
	if err := json.Unmarshal(body, serr); err != nil || serr.Message == "" {
		serr.Message = string(body)
	}
	if serr.Message == "" {
		serr.Message = http.StatusText(statusCode)
	}
	return serr
}
