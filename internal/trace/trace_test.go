package trace

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestTransport_AssignsRequestID(t *testing.T) {
	var header, fromCtx string
	tr := NewTransport(roundTripFunc(func(r *http.Request) (*http.Response, error) {
		header = r.Header.Get(HeaderRequestID)
		fromCtx = GetRequestID(r.Context())
		return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}, nil
	}))

	req := httptest.NewRequest(http.MethodGet, "https://domu.example.com/api/expenses/", nil)
	_, err := tr.RoundTrip(req)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(header, "req_"), header)
	assert.Equal(t, header, fromCtx)
	assert.Empty(t, req.Header.Get(HeaderRequestID), "input request is not modified")
}

func TestTransport_ReusesContextID(t *testing.T) {
	var header string
	tr := NewTransport(roundTripFunc(func(r *http.Request) (*http.Response, error) {
		header = r.Header.Get(HeaderRequestID)
		return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}, nil
	}))

	ctx := WithRequestID(context.Background(), "req_fixed")
	req := httptest.NewRequest(http.MethodGet, "https://domu.example.com/api/", nil).WithContext(ctx)
	_, err := tr.RoundTrip(req)
	require.NoError(t, err)
	assert.Equal(t, "req_fixed", header)
}

func TestTransport_Metrics(t *testing.T) {
	calls := 0
	tr := NewTransport(roundTripFunc(func(r *http.Request) (*http.Response, error) {
		calls++
		switch calls {
		case 1:
			return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}, nil
		case 2:
			return &http.Response{StatusCode: http.StatusBadGateway, Body: http.NoBody}, nil
		default:
			return nil, errors.New("connection refused")
		}
	}))

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "https://domu.example.com/api/", nil)
		_, _ = tr.RoundTrip(req)
	}

	m := tr.Metrics()
	assert.Equal(t, int64(3), m.TotalRequests)
	assert.Equal(t, int64(2), m.FailedRequests)
	assert.GreaterOrEqual(t, m.AverageResponseTime, int64(0))
}

func TestGenerateRequestID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := GenerateRequestID()
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}
