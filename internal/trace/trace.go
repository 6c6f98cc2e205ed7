// Package trace tags outbound API requests with a request ID and keeps
// simple request metrics.
package trace

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

// ContextKey type for context keys
type ContextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey ContextKey = "request_id"

	// HeaderRequestID carries the request ID to the server.
	HeaderRequestID = "X-Request-ID"
)

// Metrics tracks request metrics
type Metrics struct {
	TotalRequests       int64
	FailedRequests      int64
	AverageResponseTime int64 // in microseconds
}

// Transport assigns every request a request ID, sends it in the
// X-Request-ID header and exposes it to inner transports via the request
// context. A request ID already present in the context is reused.
type Transport struct {
	Base http.RoundTripper

	total   atomic.Int64
	failed  atomic.Int64
	totalUs atomic.Int64
}

// NewTransport wraps base (http.DefaultTransport when nil).
func NewTransport(base http.RoundTripper) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{Base: base}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()

	requestID := GetRequestID(req.Context())
	if requestID == "" {
		requestID = GenerateRequestID()
	}
	traced := req.Clone(WithRequestID(req.Context(), requestID))
	traced.Header.Set(HeaderRequestID, requestID)

	resp, err := t.Base.RoundTrip(traced)

	t.total.Add(1)
	t.totalUs.Add(time.Since(start).Microseconds())
	if err != nil || resp.StatusCode >= 500 {
		t.failed.Add(1)
	}
	return resp, err
}

// Metrics returns current metrics
func (t *Transport) Metrics() Metrics {
	m := Metrics{
		TotalRequests:  t.total.Load(),
		FailedRequests: t.failed.Load(),
	}
	if m.TotalRequests > 0 {
		m.AverageResponseTime = t.totalUs.Load() / m.TotalRequests
	}
	return m
}

// GenerateRequestID creates a unique request ID for tracing
func GenerateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp if random fails
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

// WithRequestID returns ctx carrying id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}

// GetRequestID extracts the request ID from context
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}
