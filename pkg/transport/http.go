package transport

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"
)

// DefaultTimeout bounds each request issued by the default client.
const DefaultTimeout = 30 * time.Second

// Client is the default Sender backed by net/http.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a Sender with the given per-request timeout.
// A zero timeout falls back to DefaultTimeout.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// NewClientWith wraps an existing http.Client, for embedders that need
// custom transports or proxies.
func NewClientWith(hc *http.Client) *Client {
	return &Client{httpClient: hc}
}

// Send delivers the request and reads the full response body.
func (c *Client) Send(ctx context.Context, req *Request) (*Response, error) {
	var bodyReader io.Reader
	if len(req.Body) > 0 {
		bodyReader = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bodyReader)
	if err != nil {
		return nil, &Error{Op: "send", URL: req.URL, Err: err}
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &Error{Op: "send", URL: req.URL, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Op: "send", URL: req.URL, Err: err}
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       respBody,
	}, nil
}
