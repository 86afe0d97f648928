// Package http exposes the computation core over a JSON REST API: one
// endpoint per computation kind plus the portfolio registry, health, and
// metrics.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/quantfolio/quantfolio/internal/application"
	"github.com/quantfolio/quantfolio/internal/config"
)

// Server is the HTTP front of the computation service.
type Server struct {
	router  *mux.Router
	server  *http.Server
	cfg     config.ServerConfig
	metrics *MetricsRegistry
	limiter *rate.Limiter
	timeout time.Duration
}

// NewServer wires routes, middleware, and metrics around a Service.
func NewServer(cfg *config.Config, svc *application.Service) *Server {
	s := &Server{
		router:  mux.NewRouter(),
		cfg:     cfg.Server,
		metrics: NewMetricsRegistry(),
		limiter: rate.NewLimiter(rate.Limit(cfg.Server.RateLimitRPS), cfg.Server.RateLimitBurst),
		timeout: cfg.Compute.RequestTimeout(),
	}

	h := newHandlers(svc, s.metrics)
	s.setupRoutes(h)

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout(),
		WriteTimeout: cfg.Server.WriteTimeout(),
		IdleTimeout:  cfg.Server.IdleTimeout(),
	}
	return s
}

// Router exposes the configured router for tests.
func (s *Server) Router() http.Handler { return s.router }

func (s *Server) setupRoutes(h *handlers) {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.rateLimitMiddleware)
	s.router.Use(s.timeoutMiddleware)

	api := s.router.PathPrefix("/").Subrouter()
	api.Use(jsonContentTypeMiddleware)

	api.HandleFunc("/optimization/risk-parity", h.RiskParity).Methods(http.MethodPost)
	api.HandleFunc("/optimization/hrp", h.HRP).Methods(http.MethodPost)
	api.HandleFunc("/optimization/efficient-frontier", h.Frontier).Methods(http.MethodPost)
	api.HandleFunc("/monte-carlo/simulate", h.Simulate).Methods(http.MethodPost)
	api.HandleFunc("/monte-carlo/analyze", h.Analyze).Methods(http.MethodPost)

	api.HandleFunc("/portfolios", h.CreatePortfolio).Methods(http.MethodPost)
	api.HandleFunc("/portfolios", h.ListPortfolios).Methods(http.MethodGet)
	api.HandleFunc("/portfolios/{id}", h.GetPortfolio).Methods(http.MethodGet)
	api.HandleFunc("/portfolios/{id}", h.UpdatePortfolio).Methods(http.MethodPut)
	api.HandleFunc("/portfolios/{id}", h.DeletePortfolio).Methods(http.MethodDelete)

	api.HandleFunc("/health", h.Health).Methods(http.MethodGet)

	s.router.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{})).Methods(http.MethodGet)
	s.router.NotFoundHandler = http.HandlerFunc(h.NotFound)
}

// Start runs the server until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.server.Addr).Msg("http server listening")
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info().Msg("http server shutting down")
		return s.server.Shutdown(shutdownCtx)
	}
}

type ctxKey string

const requestIDKey ctxKey = "request_id"

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if tmpl, err := current.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}
		s.metrics.RequestDuration.WithLabelValues(route, fmt.Sprintf("%d", sw.status)).Observe(time.Since(start).Seconds())

		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", sw.status).
			Dur("duration", time.Since(start)).
			Str("request_id", requestIDFrom(r.Context())).
			Msg("http request")
	})
}

func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			http.Error(w, `{"error":"rate limit exceeded","code":"RATE_LIMITED"}`, http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) timeoutMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.timeout <= 0 {
			next.ServeHTTP(w, r)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		next.ServeHTTP(w, r)
	})
}

func requestIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
