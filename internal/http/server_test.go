package http

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/zoeplatform/zoefinan/internal/auth"
	"github.com/zoeplatform/zoefinan/internal/core"
	"github.com/zoeplatform/zoefinan/internal/log"
	"github.com/zoeplatform/zoefinan/internal/services"
	"github.com/zoeplatform/zoefinan/internal/storage"
)

// stepClock advances one second per reading so entry ids never collide.
type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

const testSecret = "test-secret-with-at-least-32-characters"

type apiFixture struct {
	server *Server
	store  *storage.MemoryStore
}

func newAPIFixture(t *testing.T, rateLimit int, checks map[string]ReadinessCheck) *apiFixture {
	t.Helper()
	clk := &stepClock{t: time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)}
	now := clk.now
	logger := log.New(log.Config{Level: "error", Format: "json", Component: "test", Output: io.Discard})

	store := storage.NewMemoryStore()
	ledger := services.NewLedgerService(store, core.NewMonthKeyService(now),
		services.WithLedgerClock(now), services.WithLedgerLogger(logger))
	provider := auth.NewLocalProvider(store, store, testSecret, time.Hour, logger,
		auth.WithBcryptCost(bcrypt.MinCost))

	s := NewServer(":0", Deps{
		Ledger:             ledger,
		Auth:               provider,
		Checks:             checks,
		RateLimitPerMinute: rateLimit,
		Logger:             logger,
	})
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return &apiFixture{server: s, store: store}
}

func (f *apiFixture) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.server.Handler.ServeHTTP(rec, req)
	return rec
}

func (f *apiFixture) signUp(t *testing.T, email string) string {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/auth/signup", "",
		`{"email":"`+email+`","password":"segredo123","confirmPassword":"segredo123"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var session auth.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &session))
	require.NotEmpty(t, session.Token)
	return session.Token
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) (string, string) {
	t.Helper()
	var body ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body.Error.Code, body.Error.Field
}

const setupBody = `{
	"rendaMensal": "3.000,00",
	"despesasFixas": [{"descricao": "Aluguel", "valor": 1000}, {"descricao": "", "valor": 0}],
	"dividas": [{"credor": "Banco", "saldo": 500, "parcela": 100, "isParcelada": true}]
}`

func TestServer_LedgerFlow(t *testing.T) {
	f := newAPIFixture(t, 1000, nil)
	token := f.signUp(t, "ana@example.com")

	rec := f.do(t, http.MethodPost, "/api/setup", token, setupBody)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	doc := decodeBody(t, rec)
	assert.Equal(t, true, doc["setupConcluido"])
	assert.Len(t, doc["despesasFixas"], 1)

	rec = f.do(t, http.MethodGet, "/api/months/current/snapshot", token, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var snap services.MonthSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, core.MonthKey("2026-03"), snap.Month)
	assert.Equal(t, "março de 2026", snap.Label)
	assert.True(t, snap.Stored)
	assert.Equal(t, "1100", snap.Totals.Committed.String())

	rec = f.do(t, http.MethodPost, "/api/months/2026-03/entries", token,
		`{"kind":"despesa","descricao":"Mercado","valor":"200,50"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var bucket core.MonthlyBucket
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bucket))
	require.Len(t, bucket.Expenses, 2)
	assert.Equal(t, "200.5", bucket.Expenses[1].Amount.String())

	rec = f.do(t, http.MethodPost, "/api/months/2026-03/entries", token,
		`{"kind":"divida","credor":"Cartão","saldo":"800"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bucket))
	require.Len(t, bucket.Debts, 2)
	assert.Equal(t, "800", bucket.Debts[1].Installment.String())

	id := string(bucket.Expenses[1].ID)
	rec = f.do(t, http.MethodDelete, "/api/months/2026-03/entries/despesa/"+id, token, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bucket))
	assert.Len(t, bucket.Expenses, 1)

	rec = f.do(t, http.MethodDelete, "/api/months/2026-03/entries/despesa/404", token, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	code, _ := errorCode(t, rec)
	assert.Equal(t, "entry_not_found", code)

	rec = f.do(t, http.MethodPut, "/api/months/2026-03/income", token, `{"valor":"4000"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bucket))
	assert.Equal(t, "4000", bucket.BaseIncome.String())
}

func TestServer_Insights(t *testing.T) {
	f := newAPIFixture(t, 1000, nil)
	token := f.signUp(t, "bia@example.com")
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/setup", token, setupBody).Code)

	rec := f.do(t, http.MethodGet, "/api/months/2026-03/diagnosis", token, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var d services.Diagnosis
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &d))
	assert.Equal(t, "1900", d.FreeBalance.String())
	assert.Len(t, d.Categories, 2)

	rec = f.do(t, http.MethodGet, "/api/months/2026-03/breakdown?format=csv", token, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "categoria;valor;percentual;ideal;status"))

	rec = f.do(t, http.MethodGet, "/api/months/2026-03/strategy", token, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var plan services.StrategicPlan
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &plan))
	assert.Equal(t, "1000", plan.SurvivalCosts.String())

	rec = f.do(t, http.MethodGet, "/api/simulate?reduction=50", token, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var sim services.Simulation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sim))
	assert.Equal(t, "Despesas", sim.Name)
	assert.Equal(t, "500", sim.MonthlySaving.String())

	rec = f.do(t, http.MethodGet, "/api/simulate?reduction=150", token, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/evolution?count=2&format=csv", token, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "mes;rotulo;renda;saidas;saldo;variacao", lines[0])
	assert.True(t, strings.HasPrefix(lines[2], "2026-03;"))

	rec = f.do(t, http.MethodGet, "/api/evolution?format=yaml", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/yaml; charset=utf-8", rec.Header().Get("Content-Type"))

	rec = f.do(t, http.MethodGet, "/api/evolution?format=xml", token, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	_, field := errorCode(t, rec)
	assert.Equal(t, "format", field)
}

func TestServer_Account(t *testing.T) {
	f := newAPIFixture(t, 1000, nil)
	token := f.signUp(t, "caio@example.com")

	rec := f.do(t, http.MethodPut, "/api/fixed-expenses", token,
		`[{"id":"42","descricao":"Luz","valor":"150"},{"descricao":"Internet","valor":100}]`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var expenses []core.Entry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &expenses))
	require.Len(t, expenses, 2)
	assert.Equal(t, core.EntryID("42"), expenses[0].ID)
	assert.NotEqual(t, expenses[0].ID, expenses[1].ID)

	rec = f.do(t, http.MethodPut, "/api/debts", token,
		`[{"credor":"Banco","saldo":"1.200,00","parcela":"300","isParcelada":true}]`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var debts []core.Debt
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &debts))
	require.Len(t, debts, 1)
	assert.Equal(t, "1200", debts[0].Balance.String())

	rec = f.do(t, http.MethodPost, "/api/reserve", token, `{"valor":"100"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(t, http.MethodPost, "/api/reserve", token, `{"valor":"50,25"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "150.25", decodeBody(t, rec)["reservaEmergencia"])

	rec = f.do(t, http.MethodPost, "/api/reserve", token, `{"valor":"0"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/account/reset", token, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/me", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	doc := decodeBody(t, rec)
	assert.Equal(t, "caio@example.com", doc["email"])
	assert.Equal(t, "0", doc["reservaEmergencia"])
	assert.Equal(t, false, doc["setupConcluido"])
}

func TestServer_Auth(t *testing.T) {
	f := newAPIFixture(t, 1000, nil)

	rec := f.do(t, http.MethodGet, "/api/me", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))

	rec = f.do(t, http.MethodGet, "/api/me", "garbage", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token := f.signUp(t, "dora@example.com")

	rec = f.do(t, http.MethodPost, "/api/auth/signup", "",
		`{"email":"dora@example.com","password":"segredo123","confirmPassword":"segredo123"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/auth/signup", "",
		`{"email":"eva@example.com","password":"segredo123","confirmPassword":"outro123"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/auth/signin", "", `{"email":"dora@example.com","password":"errada"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	code, _ := errorCode(t, rec)
	assert.Equal(t, "invalid_credentials", code)

	rec = f.do(t, http.MethodPost, "/api/auth/signin", "", `{"email":"dora@example.com","password":"segredo123"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/auth/signout", token, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/me", token, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func readAuthEvent(t *testing.T, r *bufio.Reader) map[string]any {
	t.Helper()
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		if data, ok := strings.CutPrefix(line, "data: "); ok {
			var out map[string]any
			require.NoError(t, json.Unmarshal([]byte(data), &out))
			return out
		}
	}
}

func TestServer_AuthStateStream(t *testing.T) {
	f := newAPIFixture(t, 1000, nil)
	ts := httptest.NewServer(f.server.Handler)
	defer ts.Close()

	token := f.signUp(t, "lia@example.com")
	other := f.signUp(t, "rui@example.com")

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/auth/state", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := bufio.NewReader(resp.Body)
	first := readAuthEvent(t, events)
	assert.Equal(t, true, first["signedIn"])
	assert.Equal(t, "lia@example.com", first["user"].(map[string]any)["email"])

	// Another user's sign out is not part of this stream.
	require.Equal(t, http.StatusNoContent, f.do(t, http.MethodPost, "/api/auth/signout", other, "").Code)
	require.Equal(t, http.StatusNoContent, f.do(t, http.MethodPost, "/api/auth/signout", token, "").Code)

	last := readAuthEvent(t, events)
	assert.Equal(t, false, last["signedIn"])
	_, err = io.ReadAll(events)
	assert.NoError(t, err, "stream ends after sign out")
}

func TestServer_Validation(t *testing.T) {
	f := newAPIFixture(t, 1000, nil)
	token := f.signUp(t, "davi@example.com")

	tests := []struct {
		name      string
		method    string
		path      string
		body      string
		wantField string
	}{
		{"unknown kind", http.MethodPost, "/api/months/2026-03/entries", `{"kind":"bonus","descricao":"x","valor":"1"}`, "kind"},
		{"negative amount", http.MethodPost, "/api/months/2026-03/entries", `{"kind":"despesa","descricao":"x","valor":"-5"}`, "valor"},
		{"missing amount", http.MethodPost, "/api/months/2026-03/entries", `{"kind":"renda","descricao":"x"}`, "valor"},
		{"installment required", http.MethodPost, "/api/months/2026-03/entries", `{"kind":"divida","credor":"Banco","saldo":"10","isParcelada":true}`, "parcela"},
		{"bad month", http.MethodGet, "/api/months/2026-13/snapshot", "", "month"},
		{"bad mode", http.MethodGet, "/api/months/current/snapshot?mode=partial", "", "mode"},
		{"unknown field", http.MethodPut, "/api/months/current/income", `{"valor":"1","extra":true}`, ""},
		{"bad count", http.MethodGet, "/api/evolution?count=abc", "", "count"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, tt.method, tt.path, token, tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			code, field := errorCode(t, rec)
			assert.Equal(t, "validation_error", code)
			assert.Equal(t, tt.wantField, field)
		})
	}

	rec := f.do(t, http.MethodPost, "/api/months/2026-03/entries", token, `{"kind":"despesa","descricao":"   ","valor":"5"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_MissingDocument(t *testing.T) {
	logger := log.New(log.Config{Level: "error", Format: "json", Component: "test", Output: io.Discard})
	accounts := storage.NewMemoryStore()
	ledgerStore := storage.NewMemoryStore()
	s := NewServer(":0", Deps{
		Ledger: services.NewLedgerService(ledgerStore, core.NewMonthKeyService(time.Now)),
		Auth:   auth.NewLocalProvider(accounts, accounts, testSecret, time.Hour, logger, auth.WithBcryptCost(bcrypt.MinCost)),
		Logger: logger,
	})
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	f := &apiFixture{server: s, store: ledgerStore}
	token := f.signUp(t, "gil@example.com")

	rec := f.do(t, http.MethodGet, "/api/months/current/snapshot", token, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	code, _ := errorCode(t, rec)
	assert.Equal(t, "no_document", code)
}

func TestServer_PublicRoutes(t *testing.T) {
	f := newAPIFixture(t, 1000, nil)

	rec := f.do(t, http.MethodGet, "/api/months?count=3", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var months monthsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &months))
	assert.Equal(t, core.MonthKey("2026-03"), months.Current)
	require.Len(t, months.Months, 3)
	assert.Equal(t, monthItem{Key: "2026-01", Label: "janeiro de 2026"}, months.Months[0])

	rec = f.do(t, http.MethodGet, "/api/months?count=0", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &months))
	assert.Empty(t, months.Months)

	rec = f.do(t, http.MethodPost, "/api/health/evaluate", "", `{"income":"2000","committed":"1900"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var health core.HealthAssessment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.True(t, health.IsCritical())

	rec = f.do(t, http.MethodGet, "/nowhere", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	code, _ := errorCode(t, rec)
	assert.Equal(t, "not_found", code)

	for _, tc := range []struct{ method, path string }{
		{http.MethodDelete, "/api/months"},
		{http.MethodGet, "/api/auth/signin"},
		{http.MethodGet, "/api/setup"},
		{http.MethodPost, "/api/months/2026-03/snapshot"},
	} {
		rec = f.do(t, tc.method, tc.path, "", "")
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, "%s %s", tc.method, tc.path)
		code, _ = errorCode(t, rec)
		assert.Equal(t, "method_not_allowed", code)
	}
}

func TestServer_Ops(t *testing.T) {
	f := newAPIFixture(t, 1000, map[string]ReadinessCheck{
		"store": func(context.Context) error { return nil },
		"cache": func(context.Context) error { return errors.New("connection refused") },
	})

	rec := f.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = f.do(t, http.MethodGet, "/readyz", "", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var ready readinessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ready))
	assert.Equal(t, "unavailable", ready.Status)
	assert.Equal(t, map[string]string{"store": "ok", "cache": "connection refused"}, ready.Checks)

	rec = f.do(t, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "# TYPE zoefinan_http_requests_total counter")
	assert.Contains(t, rec.Body.String(), "zoefinan_ratelimit_hits_total 0")
}

func TestServer_RateLimitsWrites(t *testing.T) {
	f := newAPIFixture(t, 2, nil)
	body := `{"income":"1000","committed":"100"}`

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/health/evaluate", "", body).Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/health/evaluate", "", body).Code)

	rec := f.do(t, http.MethodPost, "/api/health/evaluate", "", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/months", "", "").Code)
}
