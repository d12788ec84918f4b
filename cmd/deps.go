package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/kozaktomas/staff-portal/internal/config"
	"github.com/kozaktomas/staff-portal/internal/database/postgres"
	"github.com/kozaktomas/staff-portal/internal/directory"
	"github.com/kozaktomas/staff-portal/internal/fingerprint"
	"github.com/kozaktomas/staff-portal/internal/imagestore"
	"github.com/kozaktomas/staff-portal/internal/logger"
	"github.com/kozaktomas/staff-portal/internal/login"
	"go.uber.org/zap"
)

// backends holds the external collaborators built from configuration.
type backends struct {
	cfg       *config.Config
	log       *zap.Logger
	kind      directory.IdentityKind
	directory directory.ReadWriter
	images    imagestore.ReadWriter
	extractor *fingerprint.FaceClient

	// db is nil when DATABASE_URL is unset.
	db          *postgres.Pool
	sessions    *postgres.SessionRepository
	events      *postgres.LoginEventRepository
	descriptors *postgres.DescriptorRepository

	closers []io.Closer
}

// loadBackends validates configuration and connects to the directory, the
// image store and, when configured, PostgreSQL.
func loadBackends(ctx context.Context, withDatabase bool) (*backends, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := logger.New(cfg.Log.Env, cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	kind, err := directory.ParseIdentityKind(cfg.Directory.IdentityKey)
	if err != nil {
		return nil, err
	}

	b := &backends{cfg: cfg, log: log, kind: kind}

	switch cfg.Directory.Backend {
	case "mysql":
		dir, err := directory.OpenSQL(cfg.Directory.MySQLDSN, kind)
		if err != nil {
			return nil, fmt.Errorf("opening mysql directory: %w", err)
		}
		b.directory = dir
		b.closers = append(b.closers, dir)
	default:
		dir, err := directory.NewSheetDB(cfg.Directory.SheetDBURL, cfg.Directory.Sheet, kind)
		if err != nil {
			return nil, fmt.Errorf("creating sheetdb directory: %w", err)
		}
		b.directory = dir
	}

	switch cfg.ImageStore.Backend {
	case "dir":
		store, err := imagestore.NewDir(cfg.ImageStore.Dir)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("opening image directory: %w", err)
		}
		b.images = store
	default:
		store, err := imagestore.NewGitHub(imagestore.GitHubConfig{
			APIURL: cfg.ImageStore.GitHubAPIURL,
			Token:  cfg.ImageStore.GitHubToken,
			Repo:   cfg.ImageStore.GitHubRepo,
			Branch: cfg.ImageStore.GitHubBranch,
			Prefix: cfg.ImageStore.Prefix,
		})
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("creating github image store: %w", err)
		}
		b.images = store
	}

	b.extractor = fingerprint.NewFaceClient(fingerprint.Options{
		URL:          cfg.Embedding.URL,
		Model:        cfg.Embedding.Model,
		Dim:          cfg.Embedding.Dim,
		MinDetScore:  cfg.Match.MinDetScore,
		MaxFrameSize: cfg.Match.MaxFrameSize,
	})

	if withDatabase && cfg.Database.URL != "" {
		pool, applied, err := postgres.Initialize(ctx, &cfg.Database)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
		}
		for _, name := range applied {
			log.Info("applied migration", zap.String("file", name))
		}
		b.db = pool
		b.closers = append(b.closers, pool)
		b.sessions = postgres.NewSessionRepository(pool)
		b.events = postgres.NewLoginEventRepository(pool)
		b.descriptors = postgres.NewDescriptorRepository(pool)
	}

	return b, nil
}

// loginDeps wires the backends into a login engine. recorder may be nil.
func (b *backends) loginDeps(recorder login.SessionRecorder, metrics *login.Metrics) login.Deps {
	deps := login.Deps{
		Directory: b.directory,
		Images:    b.images,
		Extractor: b.extractor,
		Recorder:  recorder,
		Metrics:   metrics,
		Logger:    b.log,
	}
	// Typed nil pointers must not end up in the interfaces.
	if b.descriptors != nil {
		deps.Descriptors = b.descriptors
	}
	if b.events != nil {
		deps.Events = b.events
	}
	return deps
}

func (b *backends) options() (login.Options, error) {
	return login.OptionsFromConfig(b.cfg)
}

func (b *backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i].Close(); err != nil {
			b.log.Warn("closing backend", zap.Error(err))
		}
	}
	_ = b.log.Sync()
}
