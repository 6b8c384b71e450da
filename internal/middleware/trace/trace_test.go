package trace

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/blogle/dojo-sub001/internal/log"
)

func newTestMiddleware(buf *bytes.Buffer) *Middleware {
	cfg := log.DefaultConfig()
	cfg.Output = buf
	return NewMiddleware(log.New(cfg), func(r *http.Request) string { return "203.0.113.7" })
}

func TestMiddleware_AssignsRequestID(t *testing.T) {
	var buf bytes.Buffer
	m := newTestMiddleware(&buf)

	var seen string
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		log.FromContext(r.Context()).InfoContext(r.Context(), "inside handler")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/budget/2025-03", nil))

	if !strings.HasPrefix(seen, "req_") {
		t.Fatalf("request id = %q", seen)
	}
	if rr.Header().Get(RequestIDHeader) != seen {
		t.Errorf("%s header = %q, want %q", RequestIDHeader, rr.Header().Get(RequestIDHeader), seen)
	}
	if !strings.Contains(buf.String(), "request_id="+seen) {
		t.Errorf("handler log lines should carry the request id:\n%s", buf.String())
	}
}

func TestMiddleware_HonoursUpstreamRequestID(t *testing.T) {
	var buf bytes.Buffer
	m := newTestMiddleware(&buf)
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(RequestIDHeader, "edge-42")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if got := rr.Header().Get(RequestIDHeader); got != "edge-42" {
		t.Errorf("request id = %q, want edge-42", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(RequestIDHeader, strings.Repeat("x", 100))
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if got := rr.Header().Get(RequestIDHeader); !strings.HasPrefix(got, "req_") {
		t.Errorf("overlong upstream id should be replaced, got %q", got)
	}
}

func TestMiddleware_CountsServerErrors(t *testing.T) {
	var buf bytes.Buffer
	m := newTestMiddleware(&buf)

	status := http.StatusOK
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))

	for _, code := range []int{http.StatusOK, http.StatusUnprocessableEntity, http.StatusInternalServerError} {
		status = code
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/transactions", nil))
	}

	metrics := m.GetMetrics()
	if metrics.TotalRequests != 3 || metrics.ServerErrors != 1 {
		t.Errorf("metrics = %+v, want 3 requests and 1 server error", metrics)
	}
	out := buf.String()
	if !strings.Contains(out, "HTTP request rejected") || !strings.Contains(out, "HTTP request failed") {
		t.Errorf("4xx and 5xx outcomes should be logged distinctly:\n%s", out)
	}
}
