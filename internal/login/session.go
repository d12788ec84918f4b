// Package login is the login engine. A Session owns everything one login
// screen needs: the enrolled pool, a directory cache and the trigger lock.
// Sessions are independent; nothing is shared between them.
package login

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kozaktomas/staff-portal/internal/camera"
	"github.com/kozaktomas/staff-portal/internal/config"
	"github.com/kozaktomas/staff-portal/internal/database"
	"github.com/kozaktomas/staff-portal/internal/directory"
	"github.com/kozaktomas/staff-portal/internal/facematch"
	"github.com/kozaktomas/staff-portal/internal/imagestore"
	"go.uber.org/zap"
)

const (
	MethodPassword = database.MethodPassword
	MethodFace     = database.MethodFace
)

var (
	ErrAlreadyInitialized = errors.New("login session already initialized")
	ErrSessionClosed      = errors.New("login session closed")
)

// Deps are the collaborators of a session.
type Deps struct {
	Directory directory.Directory
	Images    imagestore.Store
	Extractor Extractor
	Recorder  SessionRecorder

	// Optional.
	Descriptors database.DescriptorCache
	Events      database.LoginEventWriter
	Metrics     *Metrics
	Logger      *zap.Logger
}

// Options are the matching parameters.
type Options struct {
	Kind           directory.IdentityKind
	Thresholds     facematch.Thresholds
	FinalThreshold float64
	Frames         int
	MinFrames      int
	FrameDelay     time.Duration
	ExcludeBlocked bool
}

// OptionsFromConfig reads the matching parameters from cfg.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	kind, err := directory.ParseIdentityKind(cfg.Directory.IdentityKey)
	if err != nil {
		return Options{}, err
	}
	m := cfg.Match
	return Options{
		Kind: kind,
		Thresholds: facematch.Thresholds{
			Accept:         m.AcceptThreshold,
			AmbiguityDelta: m.AmbiguityDelta,
		},
		FinalThreshold: m.FinalThreshold,
		Frames:         m.Frames,
		MinFrames:      m.MinFrames,
		FrameDelay:     m.FrameDelay,
		ExcludeBlocked: m.ExcludeBlocked,
	}, nil
}

// Session is one login screen: construct, Init, attempt logins, Close.
type Session struct {
	deps  Deps
	opts  Options
	log   *zap.Logger
	cache *directory.Cache
	now   func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	// trigger admits one face capture at a time.
	trigger sync.Mutex

	mu         sync.Mutex
	pool       *facematch.Pool
	stats      LoadStats
	initReason Reason
	started    bool
	source     camera.Source
}

func NewSession(deps Deps, opts Options) *Session {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Recorder == nil {
		deps.Recorder = NewMemoryRecorder(0)
	}
	if opts.Kind == "" {
		opts.Kind = directory.IdentityEmail
	}
	if opts.Frames < 1 {
		opts.Frames = 1
	}
	if opts.MinFrames < 1 {
		opts.MinFrames = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		deps:   deps,
		opts:   opts,
		log:    deps.Logger,
		cache:  directory.NewCache(deps.Directory, opts.Kind),
		now:    time.Now,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Init reads the directory and builds the enrolled pool. Face logins fail
// with service-unavailable until Init has succeeded.
func (s *Session) Init(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyInitialized
	}
	s.started = true
	s.mu.Unlock()

	ctx, release := s.bind(ctx)
	defer release()

	pool, stats, err := s.loadPool(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats = stats
	if err != nil {
		s.initReason = ReasonServiceUnavailable
		if fatalExtractError(err) {
			s.initReason = ReasonModelLoadError
		}
		return err
	}
	s.pool = pool
	s.log.Info("login session ready",
		zap.Int("users", stats.Users),
		zap.Int("enrolled", stats.Enrolled),
		zap.Int("failed", stats.Failed),
		zap.Int("cache_hits", stats.CacheHits))
	return nil
}

func (s *Session) loadPool(ctx context.Context) (*facematch.Pool, LoadStats, error) {
	if s.ctx.Err() != nil {
		return nil, LoadStats{}, ErrSessionClosed
	}
	users, err := s.cache.Users(ctx, directory.Fresh)
	if err != nil {
		return nil, LoadStats{}, fmt.Errorf("read directory: %w", err)
	}
	loader := &PoolLoader{
		Images:      s.deps.Images,
		Extractor:   s.deps.Extractor,
		Descriptors: s.deps.Descriptors,
		Logger:      s.log,
	}
	return loader.Load(ctx, users, LoadOptions{Kind: s.opts.Kind, ExcludeBlocked: s.opts.ExcludeBlocked})
}

// Ready reports whether the pool is loaded.
func (s *Session) Ready() bool {
	return s.enrolledPool().Ready()
}

// Enrolled is the number of identities in the pool.
func (s *Session) Enrolled() int {
	return s.enrolledPool().Len()
}

// Stats describes the pool load.
func (s *Session) Stats() LoadStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Pool returns the sealed pool, nil before Init.
func (s *Session) Pool() *facematch.Pool {
	return s.enrolledPool()
}

func (s *Session) enrolledPool() *facematch.Pool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pool
}

// Cancel aborts any in-flight attempt and closes its camera source. The
// session cannot be used afterwards. Calling Cancel more than once is safe.
func (s *Session) Cancel() {
	s.cancel()

	s.mu.Lock()
	src := s.source
	s.source = nil
	s.mu.Unlock()

	if src != nil {
		if err := src.Close(); err != nil {
			s.log.Warn("closing camera source", zap.Error(err))
		}
	}
}

// Close cancels the session.
func (s *Session) Close() error {
	s.Cancel()
	return nil
}

// Done is closed once the session is cancelled.
func (s *Session) Done() <-chan struct{} {
	return s.ctx.Done()
}

// bind derives a context that is also cancelled when the session is.
func (s *Session) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// cancelled reports whether the attempt was cancelled, either by the caller
// or by Cancel. s.ctx is checked directly because the AfterFunc bound in
// bind runs asynchronously.
func (s *Session) cancelled(ctx context.Context) bool {
	return s.ctx.Err() != nil || ctx.Err() != nil
}

func (s *Session) setSource(src camera.Source) {
	s.mu.Lock()
	s.source = src
	s.mu.Unlock()
}

func (s *Session) clearSource() {
	s.mu.Lock()
	s.source = nil
	s.mu.Unlock()
}
