package log

import (
	"log/slog"
	"net/http"
	"time"

	"domu/internal/trace"
)

// Transport logs every outbound request. It never logs headers, so the
// Authorization credential stays out of the logs.
type Transport struct {
	Base   http.RoundTripper
	Logger *Logger
}

// NewTransport wraps base (http.DefaultTransport when nil).
func NewTransport(base http.RoundTripper, logger *Logger) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	if logger == nil {
		logger = Discard()
	}
	return &Transport{Base: base, Logger: logger.WithComponent(ComponentAPI)}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.Base.RoundTrip(req)
	elapsed := time.Since(start).Milliseconds()

	fields := NewFields().WithHTTPRequest(req.Method, req.URL.Path)
	if id := trace.GetRequestID(req.Context()); id != "" {
		fields[FieldRequestID] = id
	}
	if err != nil {
		fields.WithError(err).WithHTTPResponse(0, elapsed, false)
		t.Logger.WarnContext(req.Context(), "API request failed", fields.ToSlice()...)
		return nil, err
	}

	level := slog.LevelDebug
	switch {
	case resp.StatusCode >= 500:
		level = slog.LevelError
	case resp.StatusCode >= 400:
		level = slog.LevelWarn
	}
	fields.WithHTTPResponse(resp.StatusCode, elapsed, resp.StatusCode < 400)
	t.Logger.LogContext(req.Context(), level, "API request completed", fields.ToSlice()...)
	return resp, nil
}
