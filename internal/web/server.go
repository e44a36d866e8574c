// Package web provides the HTTP server and handlers for the indicator
// dashboard: a password-gated landing page plus the JSON, PNG and export
// endpoints the dashboard views are built from.
package web

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"

	"github.com/JonMunkholm/soedash/internal/config"
	"github.com/JonMunkholm/soedash/internal/dashboard"
	"github.com/JonMunkholm/soedash/internal/logging"
	"github.com/JonMunkholm/soedash/internal/ratelimit"
	"github.com/JonMunkholm/soedash/internal/web/middleware"
)

//go:embed templates/*.html
var templateFiles embed.FS

// Server is the HTTP server for the dashboard.
type Server struct {
	cfg      *config.Config
	service  *dashboard.Service
	sessions *middleware.SessionStore
	validate *validator.Validate
	pages    *template.Template

	limiter      *ratelimit.KeyedLimiter
	loginLimiter *ratelimit.KeyedLimiter

	router *chi.Mux
	server *http.Server
}

// NewServer creates a Server over service.
func NewServer(cfg *config.Config, service *dashboard.Service) (*Server, error) {
	pages, err := template.New("").Funcs(templateFuncs).ParseFS(templateFiles, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	s := &Server{
		cfg:      cfg,
		service:  service,
		sessions: middleware.NewSessionStore(cfg.Auth.SessionTTL),
		validate: newValidator(),
		pages:    pages,
		router:   chi.NewRouter(),
	}
	if cfg.Rate.Enabled {
		s.limiter = ratelimit.New(float64(cfg.Rate.RequestsPerMinute)/60, cfg.Rate.Burst, cfg.Rate.IdleTTL)
		s.loginLimiter = ratelimit.New(float64(cfg.Rate.LoginPerMinute)/60, cfg.Rate.LoginPerMinute, cfg.Rate.IdleTTL)
	}

	s.setupMiddleware()
	s.setupRoutes()
	return s, nil
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(middleware.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(middleware.Logger)
	s.router.Use(chimw.Recoverer)
	if s.cfg.Server.RequestTimeout > 0 {
		s.router.Use(chimw.Timeout(s.cfg.Server.RequestTimeout))
	}

	s.router.Use(securityHeaders(s.cfg.Security.EnableCSP))

	if len(s.cfg.Security.CORSOrigins) > 0 {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.cfg.Security.CORSOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
			ExposedHeaders:   []string{"Content-Disposition", "Retry-After"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	if s.limiter != nil {
		s.router.Use(middleware.RateLimit(s.limiter, time.Minute))
	}

	s.router.Use(middleware.PasswordGate(s.sessions, s.cfg.Auth.CookieName, "/login", "/login", "/healthz"))
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	// Pages
	s.router.Get("/login", s.handleLoginPage)
	s.router.With(s.loginRateLimit).Post("/login", s.handleLogin)
	s.router.Post("/logout", s.handleLogout)
	s.router.Get("/", s.handleIndex)

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/central", func(r chi.Router) {
			r.Get("/categories", s.handleCentralCategories)
			r.Get("/indicators", s.handleCentralIndicators)
			r.Get("/search", s.handleCentralSearch)
			r.Get("/series", s.handleCentralSeries)
			r.Get("/chart.png", s.handleCentralChart)
			r.Get("/export.csv", s.handleCentralExport)
			r.Get("/export.xlsx", s.handleCentralExport)
			r.Get("/report", s.handleCentralReport)
		})

		r.Route("/province", func(r chi.Router) {
			r.Get("/sources", s.handleProvinceSources)
			r.Get("/years", s.handleProvinceYears)
			r.Get("/indicators", s.handleProvinceIndicators)
			r.Get("/snapshot", s.handleProvinceSnapshot)
			r.Get("/trend", s.handleProvinceTrend)
			r.Get("/trend.csv", s.handleProvinceTrendExport)
			r.Get("/trend.xlsx", s.handleProvinceTrendExport)
		})

		r.Get("/geo", s.handleGeo)
		r.Get("/status", s.handleStatus)
		r.Post("/validate", s.handleValidate)
		r.Post("/reload", s.handleReload)
		r.Get("/audit", s.handleAudit)
	})
}

// loginRateLimit applies the stricter login limiter when rate limiting is
// enabled.
func (s *Server) loginRateLimit(next http.Handler) http.Handler {
	if s.loginLimiter == nil {
		return next
	}
	return middleware.RateLimit(s.loginLimiter, time.Minute)(next)
}

// Start begins listening for HTTP requests.
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	logging.FromContext(context.Background()).Info("starting server", "addr", addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server and its background sweepers.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.limiter != nil {
		s.limiter.Stop()
	}
	if s.loginLimiter != nil {
		s.loginLimiter.Stop()
	}
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func securityHeaders(enableCSP bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

			// Inline styles only; charts are server-rendered PNGs.
			if enableCSP {
				w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'self' 'unsafe-inline'; img-src 'self' data:")
			}

			next.ServeHTTP(w, r)
		})
	}
}

// writeJSON encodes v as JSON and writes it to w.
// Logs encoding errors since headers are already sent.
func writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(r.Context()).Error("json encode error", "error", err)
	}
}
