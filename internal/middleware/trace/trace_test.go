package trace

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zoeplatform/zoefinan/internal/log"
)

func TestMiddleware_AssignsRequestID(t *testing.T) {
	var out bytes.Buffer
	logger := log.New(log.Config{Level: "info", Format: "json", Output: &out})
	m := NewMiddleware(func(*http.Request) string { return "203.0.113.1" }, logger)

	var seen string
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		log.FromContext(r.Context()).InfoContext(r.Context(), "inside handler")
		w.WriteHeader(http.StatusCreated)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/entries", nil))

	require.True(t, strings.HasPrefix(seen, "req_"))
	assert.Equal(t, seen, rec.Header().Get(HeaderRequestID))
	assert.Equal(t, int64(1), m.GetMetrics().TotalRequests)

	logs := out.String()
	assert.Contains(t, logs, `"msg":"HTTP request started"`)
	assert.Contains(t, logs, `"msg":"HTTP request completed"`)
	assert.Contains(t, logs, `"status_code":201`)
	assert.Contains(t, logs, `"request_id":"`+seen+`"`)
	assert.Contains(t, logs, `"client_ip":"203.0.113.1"`)
}

func TestMiddleware_ReusesInboundRequestID(t *testing.T) {
	m := NewMiddleware(nil, log.New(log.Config{Level: "info", Output: &bytes.Buffer{}}))
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	r := httptest.NewRequest(http.MethodGet, "/api/months", nil)
	r.Header.Set(HeaderRequestID, "edge-1234abcd")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	assert.Equal(t, "edge-1234abcd", rec.Header().Get(HeaderRequestID))

	r = httptest.NewRequest(http.MethodGet, "/api/months", nil)
	r.Header.Set(HeaderRequestID, "bad id\nwith newline")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	assert.True(t, strings.HasPrefix(rec.Header().Get(HeaderRequestID), "req_"))
}

func TestResponseWriter_KeepsFirstStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, statusCode: http.StatusOK}
	_, _ = rw.Write([]byte("ok"))
	rw.WriteHeader(http.StatusInternalServerError)
	assert.Equal(t, http.StatusOK, rw.statusCode)
}
