// Package web provides the HTTP server and handlers for the people API.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/JonMunkholm/tablemgr/internal/config"
	"github.com/JonMunkholm/tablemgr/internal/logging"
	"github.com/JonMunkholm/tablemgr/internal/tablemgr"
	mw "github.com/JonMunkholm/tablemgr/internal/web/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// ConnSource hands out one connection per request. The Manager built on
// it closes the connection when the request ends.
type ConnSource func(ctx context.Context) (tablemgr.Conn, error)

// Server is the HTTP server for the people API.
type Server struct {
	cfg         config.ServerConfig
	security    config.SecurityConfig
	conns       ConnSource
	managerOpts []tablemgr.Option
	limiter     *batchLimiter
	router      *chi.Mux
	server      *http.Server
}

// NewServer creates a new Server. opts are applied to every per-request Manager.
func NewServer(cfg config.ServerConfig, security config.SecurityConfig, conns ConnSource, opts ...tablemgr.Option) *Server {
	s := &Server{
		cfg:         cfg,
		security:    security,
		conns:       conns,
		managerOpts: opts,
		limiter:     newBatchLimiter(cfg.MaxConcurrentBatches, cfg.BatchWaitTime),
		router:      chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(mw.TrustedRealIP(s.security.TrustedProxies))
	s.router.Use(mw.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
	if s.cfg.RequestTimeout > 0 {
		s.router.Use(middleware.Timeout(s.cfg.RequestTimeout))
	}
	s.router.Use(securityHeaders)
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/people", func(r chi.Router) {
		r.Get("/", s.handleListPeople)
		r.Post("/exists", s.handlePeopleExist)
		r.Get("/{id}", s.handleGetPerson)

		// Batch writes hold a connection for the whole staging transaction
		r.Group(func(r chi.Router) {
			r.Use(mw.APIKeyAuth(s.security))
			r.Use(s.limitBatches)
			r.Post("/", s.handleCreatePeople)
			r.Put("/", s.handleUpsertPeople)
			r.Put("/{id}", s.handleUpdatePerson)
			r.Delete("/{id}", s.handleDeletePerson)
		})
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	slog.Info("starting server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server, then waits for running batch
// writes to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			return err
		}
	}
	if status := s.limiter.Status(); status.Active > 0 {
		slog.Info("waiting for batch writes", "active", status.Active)
	}
	return s.limiter.WaitForDrain(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// manager builds a Manager over a fresh connection for r.
// Callers must defer Close.
func (s *Server) manager(r *http.Request) (*tablemgr.Manager, error) {
	conn, err := s.conns(r.Context())
	if err != nil {
		return nil, err
	}
	opts := append([]tablemgr.Option{tablemgr.WithLogger(logging.FromContext(r.Context()))}, s.managerOpts...)
	return tablemgr.New(conn, opts...), nil
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Prevent MIME type sniffing
		w.Header().Set("X-Content-Type-Options", "nosniff")

		// Prevent clickjacking
		w.Header().Set("X-Frame-Options", "DENY")

		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		next.ServeHTTP(w, r)
	})
}

// writeJSON encodes v as JSON with the given status.
// Logs encoding errors since headers are already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
