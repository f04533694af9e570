package http

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zoeplatform/zoefinan/internal/log"
)

const readinessTimeout = 5 * time.Second

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type readinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// handleReady runs every readiness check concurrently and answers 503 when
// any of them fails.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make([]error, len(names))
	var g errgroup.Group
	for i, name := range names {
		check := s.checks[name]
		g.Go(func() error {
			results[i] = check(ctx)
			return nil
		})
	}
	_ = g.Wait()

	resp := readinessResponse{Status: "ready", Checks: make(map[string]string, len(names))}
	status := http.StatusOK
	for i, name := range names {
		if err := results[i]; err != nil {
			resp.Checks[name] = err.Error()
			resp.Status = "unavailable"
			status = http.StatusServiceUnavailable
			s.logger.WarnContext(ctx, "Readiness check failed",
				"check", name,
				log.FieldError, err)
			continue
		}
		resp.Checks[name] = "ok"
	}
	writeJSON(w, status, resp)
}

// handleMetrics exposes the middleware counters in Prometheus text format.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	tm := s.traceMiddleware.GetMetrics()
	rm := s.rateLimiter.GetMetrics()
	sm := s.securityDetector.GetMetrics()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	writeMetric(w, "zoefinan_http_requests_total", "counter", "HTTP requests served.", tm.TotalRequests)
	writeMetric(w, "zoefinan_http_last_response_time_microseconds", "gauge", "Duration of the last request.", tm.LastResponseTimeUs)
	writeMetric(w, "zoefinan_ratelimit_hits_total", "counter", "Write requests rejected by the rate limiter.", rm.TotalHits)
	writeMetric(w, "zoefinan_ratelimit_clients", "gauge", "Clients tracked by the rate limiter.", rm.ClientCount)
	writeMetric(w, "zoefinan_security_suspicious_requests_total", "counter", "Requests rejected as suspicious.", sm.SuspiciousRequests)
	writeMetric(w, "zoefinan_security_invalid_ip_total", "counter", "Requests with an unparsable client address.", sm.InvalidIPAttempts)
	writeMetric(w, "zoefinan_uptime_seconds", "gauge", "Seconds since the server was built.", int64(time.Since(s.started).Seconds()))
}

func writeMetric(w http.ResponseWriter, name, kind, help string, value int64) {
	fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n%s %d\n", name, help, name, kind, name, value)
}
