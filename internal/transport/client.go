// Package transport is the HTTP layer shared by the catalog and policy
// service clients.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentstation/policytool/pkg/errors"
	"github.com/agentstation/policytool/pkg/logging"
)

// DefaultHTTPTimeout is the default per-call timeout.
const DefaultHTTPTimeout = 60 * time.Second

// Doer sends an HTTP request. *http.Client and the SPNEGO client satisfy it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client provides JSON over HTTP with authentication applied.
type Client struct {
	service string
	doer    Doer
	auth    Authenticator
	timeout time.Duration
	logger  *zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithAuth sets the authenticator applied to every request.
func WithAuth(auth Authenticator) Option {
	return func(c *Client) {
		c.auth = auth
	}
}

// WithDoer replaces the underlying HTTP client.
func WithDoer(doer Doer) Option {
	return func(c *Client) {
		c.doer = doer
	}
}

// WithTimeout sets the per-call timeout. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(logger *zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates a transport client for the named service.
func New(service string, opts ...Option) *Client {
	c := &Client{
		service: service,
		doer:    &http.Client{},
		auth:    &NoAuth{},
		timeout: DefaultHTTPTimeout,
		logger:  logging.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Service returns the service name used in errors.
func (c *Client) Service() string {
	return c.service
}

// Do sends a request with an optional JSON body and reads the whole response.
// Transport failures are returned as IO errors; the status code is not
// checked here.
func (c *Client) Do(ctx context.Context, method, url string, body any) (*Response, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, errors.WrapParse("json", "request body", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, errors.NewValidationError("url", url, err.Error())
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.auth.Apply(req)

	start := time.Now()
	resp, err := c.doer.Do(req)
	if err != nil {
		return nil, errors.WrapIO("request", method+" "+url, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.WrapIO("read", "response body", err)
	}

	c.logger.Trace().
		Str("service", c.service).
		Str("method", method).
		Str("url", url).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("HTTP request")

	return &Response{
		Service:    c.service,
		Method:     method,
		Endpoint:   url,
		StatusCode: resp.StatusCode,
		Body:       data,
	}, nil
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, url string) (*Response, error) {
	return c.Do(ctx, http.MethodGet, url, nil)
}
