package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// respondError answers a failed request: malformed input gets 400, anything
// else is mapped from its ledger kind.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, errMalformed) {
		BadRequestError(r, err.Error()).Write(w)
		return
	}
	LedgerError(r, err).Write(w)
}

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.startedAt).Round(time.Second).String(),
	}).Write(w)
}

// handleReady reports whether the ledger database answers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status, code := "ready", http.StatusOK
	checks := map[string]string{"database": "ok"}
	if s.ready != nil {
		if err := s.ready.Ping(ctx); err != nil {
			s.logger.WarnContext(ctx, "Readiness check failed", "error", err)
			checks["database"] = "failed: " + err.Error()
			status, code = "not_ready", http.StatusServiceUnavailable
		}
	}

	NewJSONResponse().Status(code).Body(map[string]any{
		"status": status,
		"checks": checks,
	}).Write(w)
}

// handleMetrics writes counters in the Prometheus text format.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	traceMetrics := s.tracer.GetMetrics()
	limitMetrics := s.limiter.GetMetrics()
	securityMetrics := s.detector.GetMetrics()
	cacheStats := s.ledger.ReadCacheStats()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	writeMetric(w, "ledger_http_requests_total", "counter", "Total number of HTTP requests", traceMetrics.TotalRequests)
	writeMetric(w, "ledger_http_server_errors_total", "counter", "Requests answered with a 5xx status", traceMetrics.ServerErrors)
	writeMetric(w, "ledger_http_last_request_seconds", "gauge", "Duration of the most recent request", traceMetrics.LastLatency.Seconds())
	writeMetric(w, "ledger_rate_limited_total", "counter", "Mutations rejected by the rate limiter", limitMetrics.Rejected)
	writeMetric(w, "ledger_rate_limit_clients", "gauge", "Clients currently tracked by the rate limiter", limitMetrics.ClientCount)
	writeMetric(w, "ledger_suspicious_requests_total", "counter", "Requests flagged as suspicious", securityMetrics.SuspiciousRequests)
	writeMetric(w, "ledger_read_cache_hits_total", "counter", "Derived reads served from the cache", cacheStats.Hits)
	writeMetric(w, "ledger_read_cache_misses_total", "counter", "Derived reads loaded from the database", cacheStats.Misses)
	writeMetric(w, "ledger_read_cache_evictions_total", "counter", "Cache entries evicted by the size bound", cacheStats.Evictions)
	writeMetric(w, "ledger_read_cache_entries", "gauge", "Entries currently cached", cacheStats.Size)
	writeMetric(w, "ledger_uptime_seconds", "gauge", "Server uptime in seconds", time.Since(s.startedAt).Seconds())
}

func writeMetric(w http.ResponseWriter, name, kind, help string, value any) {
	fmt.Fprintf(w, "# HELP %s %s\n", name, help)
	fmt.Fprintf(w, "# TYPE %s %s\n", name, kind)
	switch v := value.(type) {
	case float64:
		fmt.Fprintf(w, "%s %g\n\n", name, v)
	default:
		fmt.Fprintf(w, "%s %d\n\n", name, v)
	}
}
