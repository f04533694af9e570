package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newJSONLogger(buf *bytes.Buffer, level string) *Logger {
	return New(Config{Level: level, Format: "json", Component: "test", Output: buf})
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	return out
}

func TestNewLevels(t *testing.T) {
	tests := []struct {
		name        string
		level       string
		expectLevel logrus.Level
	}{
		{name: "debug", level: "debug", expectLevel: logrus.DebugLevel},
		{name: "upper case warn", level: "WARN", expectLevel: logrus.WarnLevel},
		{name: "error", level: "error", expectLevel: logrus.ErrorLevel},
		{name: "invalid defaults to info", level: "loud", expectLevel: logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := newJSONLogger(&buf, tt.level)
			assert.Equal(t, tt.expectLevel, logger.Logrus().GetLevel())
		})
	}
}

func TestLoggerWritesComponentAndPairs(t *testing.T) {
	var buf bytes.Buffer
	logger := newJSONLogger(&buf, "info")

	logger.Info("Ledger updated", FieldUserID, "u1", FieldMonth, "2026-03", FieldError, errors.New("boom"))

	line := decodeLine(t, &buf)
	assert.Equal(t, "Ledger updated", line["msg"])
	assert.Equal(t, "test", line[FieldComponent])
	assert.Equal(t, "u1", line[FieldUserID])
	assert.Equal(t, "2026-03", line[FieldMonth])
	assert.Equal(t, "boom", line[FieldError])
}

func TestLoggerDanglingKey(t *testing.T) {
	var buf bytes.Buffer
	logger := newJSONLogger(&buf, "info")

	logger.Warn("odd args", "lonely")

	line := decodeLine(t, &buf)
	assert.Equal(t, "lonely", line["!BADKEY"])
}

func TestWithComponentAndContextRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := newJSONLogger(&buf, "debug").WithComponent(ComponentLedger)

	ctx := ContextWithRequestID(context.Background(), "req_abc")
	logger.DebugContext(ctx, "resolved month")

	line := decodeLine(t, &buf)
	assert.Equal(t, ComponentLedger, line[FieldComponent])
	assert.Equal(t, "req_abc", line[FieldRequestID])
	assert.Equal(t, ComponentLedger, logger.Component())
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	assert.Same(t, Default(), FromContext(context.Background()))

	var buf bytes.Buffer
	logger := newJSONLogger(&buf, "info")
	handler := Middleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Same(t, logger, FromContext(r.Context()))
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}

func TestStructuredLoggerHTTPEndLevels(t *testing.T) {
	tests := []struct {
		status    int
		wantLevel string
	}{
		{status: 200, wantLevel: "info"},
		{status: 404, wantLevel: "warning"},
		{status: 503, wantLevel: "error"},
	}

	for _, tt := range tests {
		var buf bytes.Buffer
		sl := NewStructuredLogger(newJSONLogger(&buf, "info"))
		req := httptest.NewRequest(http.MethodGet, "/api/v1/months", nil)

		sl.LogHTTPEnd(context.Background(), req, tt.status, 12, "10.0.0.1")

		line := decodeLine(t, &buf)
		assert.Equal(t, tt.wantLevel, line["level"], "status %d", tt.status)
		assert.Equal(t, float64(tt.status), line[FieldStatusCode])
	}
}

func TestStructuredLoggerLedgerChange(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(newJSONLogger(&buf, "info"))

	sl.LogLedgerChange(context.Background(), "u1", "2026-03", "add_expense", "entry_added")

	line := decodeLine(t, &buf)
	assert.Equal(t, "Ledger updated", line["msg"])
	assert.Equal(t, "u1", line[FieldUserID])
	assert.Equal(t, "2026-03", line[FieldMonth])
	assert.Equal(t, "add_expense", line[FieldOperation])
	assert.Equal(t, "entry_added", line[FieldReason])
	assert.Equal(t, ComponentLedger, line[FieldComponent])
}

func TestStructuredLoggerError(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(newJSONLogger(&buf, "info"))

	sl.LogError(context.Background(), "Failed to publish ledger change", errors.New("channel closed"),
		ComponentLedger, "publish", NewFields().WithLedger("u1", "2026-03"))

	line := decodeLine(t, &buf)
	assert.Equal(t, "error", line["level"])
	assert.Equal(t, "channel closed", line[FieldError])
	assert.Equal(t, "publish", line[FieldOperation])
	assert.Equal(t, "u1", line[FieldUserID])
}

func TestFieldsWithHealth(t *testing.T) {
	f := NewFields().WithLedger("u1", "2026-03").WithHealth(30, "Crítico")
	assert.Equal(t, 30, f[FieldScore])
	assert.Equal(t, "Crítico", f[FieldStatus])
	assert.Len(t, f.ToSlice(), 8)
}
