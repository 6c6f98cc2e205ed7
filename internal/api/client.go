// Package api is the HTTP client for the domu REST API: request
// authorization, status interpretation and error payload decoding.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"domu/internal/log"
	"domu/internal/trace"
)

const maxBodyBytes = 1 << 20

// Client talks to the API below a fixed base URL. It is safe for
// concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *log.Logger
	tracer  *trace.Transport
	creds   CredentialSource

	mu        sync.RWMutex
	onExpired func(token string)
}

type Option func(*clientOptions)

type clientOptions struct {
	base    http.RoundTripper
	timeout time.Duration
	logger  *log.Logger
}

// WithTransport sets the underlying transport (tests pass httptest's).
func WithTransport(rt http.RoundTripper) Option {
	return func(o *clientOptions) { o.base = rt }
}

// WithTimeout bounds every request.
func WithTimeout(d time.Duration) Option {
	return func(o *clientOptions) { o.timeout = d }
}

func WithLogger(l *log.Logger) Option {
	return func(o *clientOptions) { o.logger = l }
}

// NewClient builds a client whose transport chain is
// Authorizer -> request tracing -> request logging -> base transport.
func NewClient(baseURL string, creds CredentialSource, opts ...Option) (*Client, error) {
	o := clientOptions{timeout: 15 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = log.Discard()
	}

	baseURL = strings.TrimRight(baseURL, "/")
	tracer := trace.NewTransport(log.NewTransport(o.base, o.logger))
	authorizer, err := NewAuthorizer(baseURL, creds, tracer)
	if err != nil {
		return nil, fmt.Errorf("parse API base URL: %w", err)
	}

	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Transport: authorizer, Timeout: o.timeout},
		tracer:  tracer,
		creds:   creds,
		logger:  o.logger.WithComponent(log.ComponentAPI),
	}, nil
}

// Metrics reports the requests sent so far.
func (c *Client) Metrics() trace.Metrics {
	return c.tracer.Metrics()
}

// BaseURL returns the API base the client is bound to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// OnAuthExpired registers fn to run whenever an authorized request is
// rejected with 401/403. fn receives the credential the rejected request
// carried, which may no longer be the current one.
func (c *Client) OnAuthExpired(fn func(token string)) {
	c.mu.Lock()
	c.onExpired = fn
	c.mu.Unlock()
}

// URL resolves path against the API base.
func (c *Client) URL(path string) string {
	return c.baseURL + "/" + strings.TrimLeft(path, "/")
}

type tokenRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

// Login exchanges username and password for a bearer credential. The
// request never carries the current credential, so a stale one cannot make
// the server reject valid user credentials.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	const op = "login"
	ctx = WithCredential(ctx, "")
	status, body, err := c.send(ctx, http.MethodPost, "token-auth/", tokenRequest{Username: username, Password: password})
	if err != nil {
		return "", &Error{Kind: KindAuthRejected, Op: op, Payload: Payload{Kind: PayloadNetworkFailure}, Err: err}
	}
	if status != http.StatusOK {
		return "", &Error{Kind: KindAuthRejected, Op: op, Status: status, Payload: DecodePayload(body)}
	}

	var resp tokenResponse
	if err := json.Unmarshal(body, &resp); err != nil || resp.Token == "" {
		return "", &Error{
			Kind:    KindAuthRejected,
			Op:      op,
			Status:  status,
			Payload: Payload{Kind: PayloadFreeform, Text: "invalid login response: token missing"},
		}
	}
	return resp.Token, nil
}

// Do performs an authorized request. The response body is decoded into out
// when out is non-nil and the body is not empty. expect lists the accepted
// success statuses; any other 2xx yields KindUnexpectedStatus. It returns
// the response status even on error when one was received.
func (c *Client) Do(ctx context.Context, method, path string, body, out any, expect ...int) (int, error) {
	op := strings.ToLower(method) + " " + path
	token := c.credential()
	status, raw, err := c.send(WithCredential(ctx, token), method, path, body)
	if err != nil {
		return 0, &Error{Kind: KindRequestFailed, Op: op, Payload: Payload{Kind: PayloadNetworkFailure}, Err: err}
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		c.expired(token)
		return status, &Error{Kind: KindAuthExpired, Op: op, Status: status, Payload: DecodePayload(raw)}
	case status < 200 || status > 299:
		return status, &Error{Kind: KindRequestFailed, Op: op, Status: status, Payload: DecodePayload(raw)}
	case len(expect) > 0 && !slices.Contains(expect, status):
		return status, &Error{Kind: KindUnexpectedStatus, Op: op, Status: status, Payload: DecodePayload(raw)}
	}

	if out != nil && len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return status, &Error{
				Kind:    KindRequestFailed,
				Op:      op,
				Status:  status,
				Payload: Payload{Kind: PayloadFreeform, Text: "malformed server response"},
				Err:     fmt.Errorf("decode response: %w", err),
			}
		}
	}
	return status, nil
}

func (c *Client) send(ctx context.Context, method, path string, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.URL(path), reader)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil && !errors.Is(err, io.EOF) {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, raw, nil
}

func (c *Client) credential() string {
	if c.creds == nil {
		return ""
	}
	return c.creds.Credential()
}

func (c *Client) expired(token string) {
	c.mu.RLock()
	fn := c.onExpired
	c.mu.RUnlock()
	if fn != nil {
		fn(token)
	}
}
