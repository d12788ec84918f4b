package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/kozaktomas/staff-portal/internal/config"
	"github.com/kozaktomas/staff-portal/internal/database"
	"github.com/kozaktomas/staff-portal/internal/directory"
	"github.com/kozaktomas/staff-portal/internal/imagestore"
	"github.com/kozaktomas/staff-portal/internal/login"
	"github.com/kozaktomas/staff-portal/internal/web/handlers"
	"github.com/kozaktomas/staff-portal/internal/web/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Deps are the collaborators of the portal server
type Deps struct {
	// Engine serves password logins.
	Engine         *login.Session
	FaceSessions   *handlers.FaceSessions
	SessionManager *middleware.SessionManager
	Directory      directory.ReadWriter
	Images         imagestore.ReadWriter

	// Optional.
	Events   database.LoginEventReader
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
}

// Server represents the web server
type Server struct {
	config     *config.Config
	deps       Deps
	log        *zap.Logger
	router     *chi.Mux
	httpServer *http.Server
}

// NewServer creates a new web server
func NewServer(cfg *config.Config, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}

	r := chi.NewRouter()
	s := &Server{
		config: cfg,
		deps:   deps,
		log:    deps.Logger,
		router: r,
	}

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(2 * time.Minute))
	r.Use(middleware.CORS(cfg.Web.AllowedOrigins))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.ClientInfo)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       time.Minute, // frame uploads
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info("starting web server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and closes every open face-login
// session.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down web server")

	err := s.httpServer.Shutdown(ctx)
	s.deps.FaceSessions.CloseAll()
	if err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing
func (s *Server) Router() *chi.Mux {
	return s.router
}
