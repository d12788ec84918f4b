package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/kozaktomas/staff-portal/internal/constants"
	"github.com/kozaktomas/staff-portal/internal/database"
	"github.com/kozaktomas/staff-portal/internal/login"
	"github.com/kozaktomas/staff-portal/internal/web"
	"github.com/kozaktomas/staff-portal/internal/web/handlers"
	"github.com/kozaktomas/staff-portal/internal/web/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Long: `Start the Staff Portal web server.
The server exposes password login, face-login sessions fed with camera
frames, self-registration and enrollment image replacement.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides WEB_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (overrides WEB_HOST)")
	serveCmd.Flags().String("session-secret", "", "Secret for signing session cookies (overrides WEB_SESSION_SECRET)")
}

// scheduleSweeps expires portal sessions and idle face-login sessions in
// the background.
func scheduleSweeps(sm *middleware.SessionManager, faces *handlers.FaceSessions, log *zap.Logger) (*gocron.Scheduler, error) {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()

	if _, err := s.Every(constants.FaceSessionSweepMinutes).Minutes().Do(func() {
		if n := faces.Sweep(); n > 0 {
			log.Info("closed idle face sessions", zap.Int("count", n))
		}
	}); err != nil {
		return nil, fmt.Errorf("scheduling face session sweep: %w", err)
	}

	if _, err := s.Every(constants.SessionCleanupMinutes).Minutes().Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		n, err := sm.CleanupExpired(ctx)
		if err != nil {
			log.Warn("expiring sessions failed", zap.Error(err))
			return
		}
		if n > 0 {
			log.Info("expired sessions", zap.Int64("count", n))
		}
	}); err != nil {
		return nil, fmt.Errorf("scheduling session cleanup: %w", err)
	}

	s.StartAsync()
	return s, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	b, err := loadBackends(ctx, true)
	if err != nil {
		return err
	}
	defer b.Close()
	log := b.log
	cfg := b.cfg

	if port := mustGetInt(cmd, "port"); port != 0 {
		cfg.Web.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		cfg.Web.Host = host
	}
	if secret := mustGetString(cmd, "session-secret"); secret != "" {
		cfg.Web.SessionSecret = secret
	}
	if cfg.Web.SessionSecret == "" {
		log.Warn("WEB_SESSION_SECRET is not set, using the development secret")
	}

	opts, err := b.options()
	if err != nil {
		return err
	}

	if err := b.extractor.Ping(ctx); err != nil {
		log.Warn("embedding server is not reachable, face login will fail until it is", zap.Error(err))
	}

	var store database.SessionStore
	var events database.LoginEventReader
	if b.db != nil {
		store = b.sessions
		events = b.events
		log.Info("session persistence enabled (PostgreSQL)")
	} else {
		log.Warn("DATABASE_URL is not set, sessions are kept in memory and login events are not recorded")
	}

	sm := middleware.NewSessionManager(cfg.Web.SessionSecret, store)
	metrics, err := login.NewMetrics(login.MetricsOptions{})
	if err != nil {
		return err
	}

	newEngine := func() *login.Session {
		return login.NewSession(b.loginDeps(sm, metrics), opts)
	}
	passwordEngine := newEngine()
	defer passwordEngine.Close()
	faces := handlers.NewFaceSessions(newEngine, cfg.Match.SessionTTL, cfg.Match.MaxSessions)

	scheduler, err := scheduleSweeps(sm, faces, log)
	if err != nil {
		return err
	}
	defer scheduler.Stop()

	server := web.NewServer(cfg, web.Deps{
		Engine:         passwordEngine,
		FaceSessions:   faces,
		SessionManager: sm,
		Directory:      b.directory,
		Images:         b.images,
		Events:         events,
		Gatherer:       prometheus.DefaultGatherer,
		Logger:         log,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("error during shutdown", zap.Error(err))
		}
	}()

	fmt.Printf("Starting Staff Portal on http://%s:%d\n", cfg.Web.Host, cfg.Web.Port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	<-shutdownDone
	return nil
}
