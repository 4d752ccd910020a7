// Package server provides the HTTP server and routing.
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

	"github.com/aristath/quanport/internal/config"
	"github.com/aristath/quanport/internal/di"
	backtesthandlers "github.com/aristath/quanport/internal/modules/backtest/handlers"
	marketdatahandlers "github.com/aristath/quanport/internal/modules/marketdata/handlers"
	selectionhandlers "github.com/aristath/quanport/internal/modules/selection/handlers"
)

// Config holds server configuration
type Config struct {
	Log            zerolog.Logger
	Config         *config.Config
	Container      *di.Container // DI container with all services
	Jobs           *di.JobInstances
	Port           int
	DevMode        bool
	AllowedOrigins []string // CORS and websocket origins; empty allows any origin
}

// Server represents the HTTP server
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	cfg            *config.Config
	container      *di.Container
	systemHandlers *SystemHandlers
	allowedOrigins []string
	credentials    bool // only with an explicit origin list
	port           int
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	s := &Server{
		router:         chi.NewRouter(),
		log:            cfg.Log.With().Str("component", "server").Logger(),
		cfg:            cfg.Config,
		container:      cfg.Container,
		allowedOrigins: origins,
		credentials:    len(cfg.AllowedOrigins) > 0,
		port:           cfg.Port,
		systemHandlers: NewSystemHandlers(cfg.Log, cfg.Config.DataDir, cfg.Container, cfg.Jobs),
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: s.handlerTimeout() + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// handlerTimeout bounds a single request, never below 60s
func (s *Server) handlerTimeout() time.Duration {
	timeout := 2 * s.cfg.RequestTimeout
	if timeout < 60*time.Second {
		timeout = 60 * time.Second
	}
	return timeout
}

// Router returns the HTTP handler, for tests and embedding
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware(devMode bool) {
	// Recovery from panics
	s.router.Use(middleware.Recoverer)

	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(s.loggingMiddleware)

	// Timeout: covers a full optimize stream (request read plus solver budget)
	s.router.Use(middleware.Timeout(s.handlerTimeout()))

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: s.credentials,
		MaxAge:           300,
	}))

	// Compress responses
	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

func (s *Server) setupRoutes() {
	// Health check
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		selectionhandlers.NewHandler(s.container.SelectionService, s.allowedOrigins, s.log).RegisterRoutes(r)
		backtesthandlers.NewHandler(s.container.BacktestService, s.log).RegisterRoutes(r)

		var importer marketdatahandlers.ImportRunner
		if s.container.Importer != nil {
			importer = s.container.Importer
		}
		marketdatahandlers.NewHandler(s.container.MarketDataRepo, importer, s.log).RegisterRoutes(r)

		r.Route("/system", func(r chi.Router) {
			r.Get("/status", s.systemHandlers.HandleSystemStatus)
			r.Get("/database/stats", s.systemHandlers.HandleDatabaseStats)
			r.Post("/jobs/{job}", s.systemHandlers.HandleTriggerJob)
		})
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
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
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
