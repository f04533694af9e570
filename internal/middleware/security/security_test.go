package security

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetector_DetectSuspiciousRequest(t *testing.T) {
	tests := []struct {
		name   string
		method string
		target string
		agent  string
		xff    string
		want   bool
	}{
		{name: "plain api call", method: http.MethodGet, target: "/api/months/2026-03", want: false},
		{name: "path traversal", method: http.MethodGet, target: "/api/../../etc/passwd", want: true},
		{name: "dotenv probe", method: http.MethodGet, target: "/.env", want: true},
		{name: "encoded query is not decoded", method: http.MethodGet, target: "/api/snapshot?month=1%27+union+select", want: false},
		{name: "scanner agent", method: http.MethodGet, target: "/", agent: "sqlmap/1.7", want: true},
		{name: "curl is fine", method: http.MethodGet, target: "/healthz", agent: "curl/8.4", want: false},
		{name: "trace method", method: "TRACE", target: "/", want: true},
		{name: "long url", method: http.MethodGet, target: "/" + strings.Repeat("a", 2100), want: true},
		{name: "forged hops", method: http.MethodGet, target: "/", xff: "1.1.1.1,2.2.2.2,3.3.3.3,4.4.4.4,5.5.5.5,6.6.6.6,7.7.7.7", want: true},
	}

	d := NewDetector(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(tt.method, tt.target, nil)
			if tt.agent != "" {
				r.Header.Set("User-Agent", tt.agent)
			}
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			assert.Equal(t, tt.want, d.DetectSuspiciousRequest(r))
		})
	}
	assert.Equal(t, int64(6), d.GetMetrics().SuspiciousRequests)
}

func TestDetector_ExtractClientIP(t *testing.T) {
	d := NewDetector(nil)

	direct := httptest.NewRequest(http.MethodGet, "/", nil)
	direct.RemoteAddr = "203.0.113.9:5555"
	direct.Header.Set("X-Forwarded-For", "198.51.100.1")
	assert.Equal(t, "203.0.113.9", d.ExtractClientIP(direct), "untrusted peers cannot forward")

	proxied := httptest.NewRequest(http.MethodGet, "/", nil)
	proxied.RemoteAddr = "10.0.0.5:5555"
	proxied.Header.Set("X-Forwarded-For", "198.51.100.1, 10.0.0.5")
	assert.Equal(t, "198.51.100.1", d.ExtractClientIP(proxied))

	realIP := httptest.NewRequest(http.MethodGet, "/", nil)
	realIP.RemoteAddr = "127.0.0.1:5555"
	realIP.Header.Set("X-Real-IP", "198.51.100.2")
	assert.Equal(t, "198.51.100.2", d.ExtractClientIP(realIP))

	garbage := httptest.NewRequest(http.MethodGet, "/", nil)
	garbage.RemoteAddr = "192.168.1.1:1"
	garbage.Header.Set("X-Forwarded-For", "not-an-ip")
	assert.Equal(t, "192.168.1.1", d.ExtractClientIP(garbage))
	assert.Equal(t, int64(1), d.GetMetrics().InvalidIPAttempts)

	require.NoError(t, d.AddTrustedProxy("203.0.113.0/24"))
	assert.Equal(t, "198.51.100.1", d.ExtractClientIP(direct))
	assert.Error(t, d.AddTrustedProxy("nope"))
}

func TestDetector_Middleware(t *testing.T) {
	d := NewDetector(nil)
	h := d.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/wp-admin", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/months", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHeadersMiddleware(t *testing.T) {
	h := NewHeadersMiddleware(DefaultHeadersConfig()).Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/months", nil))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Empty(t, rec.Header().Get("Strict-Transport-Security"))

	secure := httptest.NewRequest(http.MethodGet, "/api/months", nil)
	secure.TLS = &tls.ConnectionState{}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, secure)
	assert.Equal(t, "max-age=31536000; includeSubDomains", rec.Header().Get("Strict-Transport-Security"))
}
