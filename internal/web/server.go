// Package web exposes the import pipeline over HTTP.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/JonMunkholm/PageImport/internal/config"
	"github.com/JonMunkholm/PageImport/internal/core"
	mw "github.com/JonMunkholm/PageImport/internal/web/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ulule/limiter/v3"
)

// Server is the HTTP front end of the import service.
type Server struct {
	service  *core.Service
	cfg      *config.Config
	defaults core.RunConfig
	validate *validator.Validate
	router   *chi.Mux
	server   *http.Server
	limiter  *limiter.Limiter
}

// NewServer builds the router. Run defaults come from cfg.Import.
func NewServer(service *core.Service, cfg *config.Config) (*Server, error) {
	defaults, err := core.DefaultRunConfig(cfg.Import)
	if err != nil {
		return nil, err
	}
	s := &Server{
		service:  service,
		cfg:      cfg,
		defaults: defaults,
		validate: validator.New(),
		router:   chi.NewRouter(),
	}
	if cfg.Security.RateLimit > 0 {
		s.limiter = mw.NewRateLimiter(cfg.Security.RateLimit, cfg.Security.RateLimitPeriod)
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s, nil
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(mw.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(mw.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(securityHeaders)
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/api", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(s.cfg.Security))
		if s.limiter != nil {
			r.Use(mw.RateLimit(s.limiter))
		}

		// Progress streams stay open for the whole run.
		r.Get("/import/{runID}/progress", s.handleImportProgress)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(s.requestTimeout()))

			r.Get("/templates", s.handleListTemplates)
			r.Get("/templates/{template}", s.handleGetTemplate)
			r.Post("/preview/{template}", s.handlePreview)
			r.Post("/import/{template}", s.handleImport)
			r.Get("/import/{runID}/result", s.handleImportResult)
			r.Post("/import/{runID}/cancel", s.handleCancelImport)
		})
	})
}

func (s *Server) requestTimeout() time.Duration {
	if s.cfg.Server.RequestTimeout > 0 {
		return s.cfg.Server.RequestTimeout
	}
	return 60 * time.Second
}

// Start listens on the configured address until Shutdown.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}
	slog.Info("starting server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the handler, for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
