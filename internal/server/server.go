// Package server provides the HTTP server and routing for quantfolio.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/anjeshnu/quantfolio/internal/database"
	"github.com/anjeshnu/quantfolio/internal/modules/backtest"
)

// Config holds server configuration.
type Config struct {
	Log  zerolog.Logger
	DB   *database.DB
	Port int
}

// Server is the HTTP server.
type Server struct {
	router   *chi.Mux
	server   *http.Server
	log      zerolog.Logger
	db       *database.DB
	handlers *Handlers
}

// New creates a new HTTP server.
func New(cfg Config) *Server {
	s := &Server{
		router:   chi.NewRouter(),
		log:      cfg.Log.With().Str("component", "server").Logger(),
		db:       cfg.DB,
		handlers: NewHandlers(cfg.Log, backtest.NewStore(cfg.DB, cfg.Log)),
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
	}
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(120 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/api/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/exposures", s.handlers.EstimateExposures)
		r.Post("/covariance", s.handlers.EstimateCovariance)
		r.Post("/posterior", s.handlers.ComputePosterior)
		r.Post("/optimize", s.handlers.Optimize)
		r.Post("/frontier", s.handlers.ComputeFrontier)
		r.Post("/backtest", s.handlers.RunBacktest)
		r.Get("/backtest/runs", s.handlers.ListRuns)
		r.Get("/backtest/runs/{runID}", s.handlers.GetRun)
		r.Get("/backtest/runs/{runID}/sharpe", s.handlers.RunRollingSharpe)
		r.Delete("/backtest/runs/{runID}", s.handlers.DeleteRun)
		r.Post("/backtest/compare", s.handlers.CompareRuns)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := s.db.HealthCheck(ctx); err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Start begins serving. Blocks until the server stops.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
