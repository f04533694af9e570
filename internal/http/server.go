package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/zoeplatform/zoefinan/internal/auth"
	"github.com/zoeplatform/zoefinan/internal/log"
	"github.com/zoeplatform/zoefinan/internal/middleware/ratelimit"
	"github.com/zoeplatform/zoefinan/internal/middleware/security"
	"github.com/zoeplatform/zoefinan/internal/middleware/trace"
	"github.com/zoeplatform/zoefinan/internal/services"
)

// ReadinessCheck probes one dependency for /readyz.
type ReadinessCheck func(ctx context.Context) error

// Deps are the collaborators the API serves.
type Deps struct {
	Ledger *services.LedgerService
	Auth   auth.Provider
	// Checks are run by /readyz, keyed by dependency name.
	Checks             map[string]ReadinessCheck
	RateLimitPerMinute int
	Logger             *log.Logger
}

type Server struct {
	http.Server
	ledger *services.LedgerService
	auth   auth.Provider
	checks map[string]ReadinessCheck
	logger *log.Logger

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware
	started          time.Time
	shutdownOnce     sync.Once
}

// NewServer wires the routes and the middleware chain into a ready-to-run http.Server.
func NewServer(addr string, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = log.Default()
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	s := &Server{
		ledger:  deps.Ledger,
		auth:    deps.Auth,
		checks:  deps.Checks,
		logger:  logger,
		started: time.Now(),
	}
	s.securityDetector = security.NewDetector(logger)
	s.traceMiddleware = trace.NewMiddleware(s.securityDetector.ExtractClientIP, logger)
	s.rateLimiter = ratelimit.NewLimiter(ratelimit.Config{
		RequestsPerMinute: deps.RateLimitPerMinute,
		Logger:            logger,
	})

	router := s.routes()

	var handler http.Handler = router
	handler = s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, isWrite, func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusTooManyRequests, "rate_limited", "muitas requisições, tente novamente em instantes").Write(w)
	})(handler)
	handler = s.securityDetector.Middleware(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = s.traceMiddleware.Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func isWrite(r *http.Request) bool {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusNotFound, "not_found", "rota não encontrada").Write(w)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		MethodNotAllowedError("").Write(w)
	})

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)
	r.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/auth/signup", s.handleSignUp).Methods(http.MethodPost)
	api.HandleFunc("/auth/signin", s.handleSignIn).Methods(http.MethodPost)
	api.HandleFunc("/months", s.handleMonths).Methods(http.MethodGet)
	api.HandleFunc("/health/evaluate", s.handleEvaluateHealth).Methods(http.MethodPost)

	// Authenticated routes share the api subrouter so a method mismatch on
	// any /api path still reaches the 405 handler.
	priv := func(path string, h http.HandlerFunc) *mux.Route {
		return api.Handle(path, s.requireAuth(h))
	}
	priv("/auth/signout", s.handleSignOut).Methods(http.MethodPost)
	priv("/auth/state", s.handleAuthState).Methods(http.MethodGet)
	priv("/me", s.handleDocument).Methods(http.MethodGet)

	priv("/months/{month}/snapshot", s.handleSnapshot).Methods(http.MethodGet)
	priv("/months/{month}/entries", s.handleAddEntry).Methods(http.MethodPost)
	priv("/months/{month}/entries/{kind}/{id}", s.handleRemoveEntry).Methods(http.MethodDelete)
	priv("/months/{month}/income", s.handleSetIncome).Methods(http.MethodPut)
	priv("/months/{month}/diagnosis", s.handleDiagnosis).Methods(http.MethodGet)
	priv("/months/{month}/breakdown", s.handleBreakdown).Methods(http.MethodGet)
	priv("/months/{month}/strategy", s.handleStrategy).Methods(http.MethodGet)
	priv("/simulate", s.handleSimulate).Methods(http.MethodGet)
	priv("/evolution", s.handleEvolution).Methods(http.MethodGet)

	priv("/setup", s.handleSetup).Methods(http.MethodPost)
	priv("/fixed-expenses", s.handleReplaceFixedExpenses).Methods(http.MethodPut)
	priv("/debts", s.handleReplaceDebts).Methods(http.MethodPut)
	priv("/reserve", s.handleAddReserve).Methods(http.MethodPost)
	priv("/account/reset", s.handleReset).Methods(http.MethodPost)

	return r
}

// Shutdown stops the rate limiter and drains the HTTP server. Safe to call twice.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}
