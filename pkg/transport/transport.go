// Package transport abstracts HTTP delivery for the App Services client.
//
// The client core only depends on the Sender interface, so embedders in
// restricted runtimes can swap in their own delivery mechanism (a fetch
// shim, a test double, a proxied tunnel). The default implementation wraps
// net/http.
package transport

import (
	"context"
	"fmt"
	"net/http"
)

// Request is a single HTTP request to deliver.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Response is the raw result of a delivered request.
//
// Non-2xx statuses are not transport failures: the response is returned as-is
// and classified by the caller.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Sender delivers a request and returns the raw response.
//
// Implementations must honor ctx cancellation and return an *Error for
// network-level failures (connectivity, timeout, DNS). Server-side rejections
// are reported through Response, never through error.
type Sender interface {
	Send(ctx context.Context, req *Request) (*Response, error)
}

// Error represents a network-level delivery failure.
type Error struct {
	Op  string // "send"
	URL string
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("transport: %s %s: %v", e.Op, e.URL, e.Err)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}
