// Package http exposes the monthly query endpoint and operational routes.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rs/cors"

	"mgnregs/internal/log"
	"mgnregs/internal/middleware/ratelimit"
	"mgnregs/internal/middleware/security"
	"mgnregs/internal/middleware/trace"
)

// MonthlyService is what the server needs from the query service.
type MonthlyService interface {
	Querier
	APIKeyConfigured() bool
	CacheSize() int
}

// ServerConfig configures NewServer. Zero values get defaults.
type ServerConfig struct {
	Addr               string
	RateLimitPerMinute int
	CORSAllowedOrigins []string
	Logger             *log.Logger
}

type Server struct {
	http.Server
	service     MonthlyService
	limiter     *ratelimit.Limiter
	tracer      *trace.Middleware
	logger      *log.Logger
	startedAt   time.Time
	shutdownOne sync.Once
}

// NewServer wires routes and middleware around service.
func NewServer(cfg ServerConfig, service MonthlyService) *Server {
	if cfg.Logger == nil {
		cfg.Logger = log.New(log.DefaultConfig())
	}
	if len(cfg.CORSAllowedOrigins) == 0 {
		cfg.CORSAllowedOrigins = []string{"*"}
	}
	logger := cfg.Logger.WithComponent(log.ComponentHTTP)

	s := &Server{
		service:   service,
		limiter:   ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: cfg.RateLimitPerMinute}),
		tracer:    trace.NewMiddleware(extractClientIP, cfg.Logger),
		logger:    logger,
		startedAt: time.Now(),
	}

	limited := s.limiter.Middleware(extractClientIP, s.onRateLimited)

	mux := http.NewServeMux()
	mux.Handle(MonthlyPath, limited(NewMonthlyHandler(service)))
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Origin", "X-Requested-With"},
		ExposedHeaders: []string{trace.RequestIDHeader, "Retry-After"},
		MaxAge:         600,
	})

	var handler http.Handler = mux
	handler = corsHandler.Handler(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = recoverer(handler)
	handler = s.tracer.Middleware(handler)

	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) onRateLimited(w http.ResponseWriter, r *http.Request, retryAfter int) {
	log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, extractClientIP(r))
	_ = writeJSON(w, http.StatusTooManyRequests, rateLimitError{Error: codeRateLimited, RetryAfter: retryAfter})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	_ = writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type readiness struct {
	Status           string            `json:"status"`
	APIKeyConfigured bool              `json:"api_key_configured"`
	CacheEntries     int               `json:"cache_entries"`
	Uptime           string            `json:"uptime"`
	Requests         trace.Metrics     `json:"requests"`
	RateLimit        ratelimit.Metrics `json:"rate_limit"`
}

// handleReady reports 503 while no API key is configured, since every
// query would fail.
func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	body := readiness{
		Status:           "ready",
		APIKeyConfigured: s.service.APIKeyConfigured(),
		CacheEntries:     s.service.CacheSize(),
		Uptime:           time.Since(s.startedAt).Round(time.Second).String(),
		Requests:         s.tracer.GetMetrics(),
		RateLimit:        s.limiter.GetMetrics(),
	}
	status := http.StatusOK
	if !body.APIKeyConfigured {
		body.Status = "not_ready"
		status = http.StatusServiceUnavailable
	}
	_ = writeJSON(w, status, body)
}

// Shutdown stops background goroutines and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOne.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}
