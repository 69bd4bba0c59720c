// Package web provides the HTTP API for submitting and tracking bulk
// jobs. All responses are JSON, SSE progress streams, or file
// downloads; no HTML is rendered here.
package web

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/forceadmin/bulkops/internal/config"
	"github.com/forceadmin/bulkops/internal/core"
	"github.com/forceadmin/bulkops/internal/history"
)

// Server is the HTTP server for the bulk-operation API.
type Server struct {
	dispatcher *core.Dispatcher
	history    *history.Store // nil when no database is configured
	router     *chi.Mux
	server     *http.Server
}

// NewServer creates a new Server instance.
func NewServer(dispatcher *core.Dispatcher, hist *history.Store, cfg *config.Config) *Server {
	s := &Server{
		dispatcher: dispatcher,
		history:    hist,
		router:     chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))

	s.router.Use(securityHeaders)

	// Rate limiting: 120 requests per minute per IP
	limiter := newRateLimiter(120, time.Minute)
	s.router.Use(limiter.middleware)
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Route("/api", func(r chi.Router) {
		r.Post("/jobs", s.handleSubmitJob)
		r.Get("/jobs", s.handleListJobs)
		r.Get("/jobs/{jobID}", s.handleJobStatus)
		r.Get("/jobs/{jobID}/events", s.handleJobEvents)
		r.Get("/jobs/{jobID}/download", s.handleJobDownload)
		r.Post("/jobs/{jobID}/cancel", s.handleCancelJob)
		r.Get("/history", s.handleHistory)
	})

	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	slog.Info("http server listening", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// securityHeaders sets standard hardening headers on every response.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

// rateLimiter is a simple fixed-window per-IP request limiter.
type rateLimiter struct {
	mu     sync.Mutex
	counts map[string]int
	limit  int
	window time.Duration
	reset  time.Time
}

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	return &rateLimiter{
		counts: make(map[string]int),
		limit:  limit,
		window: window,
		reset:  time.Now().Add(window),
	}
}

func (l *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		l.mu.Lock()
		if time.Now().After(l.reset) {
			l.counts = make(map[string]int)
			l.reset = time.Now().Add(l.window)
		}
		l.counts[r.RemoteAddr]++
		over := l.counts[r.RemoteAddr] > l.limit
		l.mu.Unlock()

		if over {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
