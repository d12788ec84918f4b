package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	Directory  DirectoryConfig
	ImageStore ImageStoreConfig
	Embedding  EmbeddingConfig
	Match      MatchConfig
	Database   DatabaseConfig
	Web        WebConfig
	Log        LogConfig
}

type DirectoryConfig struct {
	Backend     string // sheetdb (default) or mysql
	SheetDBURL  string // e.g. https://sheetdb.io/api/v1/abc123
	Sheet       string // defaults to Users
	MySQLDSN    string // staff:secret@tcp(mariadb:3306)/portal
	IdentityKey string // email (default) or name
}

type ImageStoreConfig struct {
	Backend      string // github (default) or dir
	GitHubToken  string
	GitHubRepo   string // owner/name
	GitHubBranch string // defaults to main
	GitHubAPIURL string // defaults to https://api.github.com
	Prefix       string // directory inside the repository, defaults to faces
	Dir          string // local directory for the dir backend
}

type EmbeddingConfig struct {
	URL   string // defaults to http://localhost:8000
	Dim   int    // defaults to 128
	Model string // reported by the embedding server, used as descriptor cache key
}

type MatchConfig struct {
	AcceptThreshold float64       `yaml:"accept_threshold"`
	AmbiguityDelta  float64       `yaml:"ambiguity_delta"`
	FinalThreshold  float64       `yaml:"final_threshold"`
	Frames          int           `yaml:"frames"`
	MinFrames       int           `yaml:"min_frames"`
	FrameDelay      time.Duration `yaml:"frame_delay"`
	MinDetScore     float64       `yaml:"min_det_score"`
	MaxFrameSize    int           `yaml:"max_frame_size"` // longest edge in pixels, 0 disables downscaling
	ExcludeBlocked  bool          `yaml:"exclude_blocked"`
	SessionTTL      time.Duration `yaml:"session_ttl"` // lifetime of an idle face-login session
	MaxSessions     int           `yaml:"max_sessions"` // open face-login sessions, each holds a pool
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL, optional
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type WebConfig struct {
	Port           int
	Host           string
	SessionSecret  string
	AllowedOrigins string
	LoginRateLimit float64 // login requests per second per client
}

type LogConfig struct {
	Level string // debug, info, warn, error
	Env   string // production or development
}

type defaultsFile struct {
	Match MatchConfig `yaml:"match"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads a non-negative float. Invalid values fall back to the default.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 0 {
		return f
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d >= 0 {
		return d
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func Load() *Config {
	var defaults defaultsFile
	if err := yaml.Unmarshal(defaultsYAML, &defaults); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}
	m := defaults.Match

	return &Config{
		Directory: DirectoryConfig{
			Backend:     strings.ToLower(envString("DIRECTORY_BACKEND", "sheetdb")),
			SheetDBURL:  os.Getenv("SHEETDB_URL"),
			Sheet:       envString("SHEETDB_SHEET", "Users"),
			MySQLDSN:    os.Getenv("DIRECTORY_MYSQL_DSN"),
			IdentityKey: strings.ToLower(envString("IDENTITY_KEY", "email")),
		},
		ImageStore: ImageStoreConfig{
			Backend:      strings.ToLower(envString("IMAGE_STORE", "github")),
			GitHubToken:  os.Getenv("GITHUB_TOKEN"),
			GitHubRepo:   os.Getenv("GITHUB_REPO"),
			GitHubBranch: envString("GITHUB_BRANCH", "main"),
			GitHubAPIURL: envString("GITHUB_API_URL", "https://api.github.com"),
			Prefix:       envString("FACES_PREFIX", "faces"),
			Dir:          os.Getenv("FACES_DIR"),
		},
		Embedding: EmbeddingConfig{
			URL:   envString("EMBEDDING_URL", "http://localhost:8000"),
			Dim:   envInt("EMBEDDING_DIM", 128),
			Model: envString("EMBEDDING_MODEL", "face-128"),
		},
		Match: MatchConfig{
			AcceptThreshold: envFloat("MATCH_ACCEPT_THRESHOLD", m.AcceptThreshold),
			AmbiguityDelta:  envFloat("MATCH_AMBIGUITY_DELTA", m.AmbiguityDelta),
			FinalThreshold:  envFloat("MATCH_FINAL_THRESHOLD", m.FinalThreshold),
			Frames:          envInt("MATCH_FRAMES", m.Frames),
			MinFrames:       envInt("MATCH_MIN_FRAMES", m.MinFrames),
			FrameDelay:      envDuration("MATCH_FRAME_DELAY", m.FrameDelay),
			MinDetScore:     envFloat("MATCH_MIN_DET_SCORE", m.MinDetScore),
			MaxFrameSize:    envInt("MATCH_MAX_FRAME_SIZE", m.MaxFrameSize),
			ExcludeBlocked:  envBool("POOL_EXCLUDE_BLOCKED", m.ExcludeBlocked),
			SessionTTL:      envDuration("FACE_SESSION_TTL", m.SessionTTL),
			MaxSessions:     envInt("FACE_SESSION_MAX", m.MaxSessions),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Web: WebConfig{
			Port:           envInt("WEB_PORT", 8080),
			Host:           envString("WEB_HOST", "0.0.0.0"),
			SessionSecret:  os.Getenv("WEB_SESSION_SECRET"),
			AllowedOrigins: os.Getenv("WEB_ALLOWED_ORIGINS"),
			LoginRateLimit: envFloat("LOGIN_RATE_LIMIT", 1),
		},
		Log: LogConfig{
			Level: envString("LOG_LEVEL", "info"),
			Env:   envString("APP_ENV", "production"),
		},
	}
}

// Validate reports every configuration problem that would make the
// login engine behave incorrectly.
func (c *Config) Validate() error {
	m := c.Match
	var errs []error
	if m.AcceptThreshold <= 0 {
		errs = append(errs, fmt.Errorf("accept threshold must be positive, got %g", m.AcceptThreshold))
	}
	if m.FinalThreshold <= 0 {
		errs = append(errs, fmt.Errorf("final threshold must be positive, got %g", m.FinalThreshold))
	}
	if m.AmbiguityDelta < 0 {
		errs = append(errs, fmt.Errorf("ambiguity delta must not be negative, got %g", m.AmbiguityDelta))
	}
	if m.MinFrames < 1 || m.MinFrames > m.Frames {
		errs = append(errs, fmt.Errorf("min frames must be between 1 and %d, got %d", m.Frames, m.MinFrames))
	}
	if m.FinalThreshold > m.AcceptThreshold {
		errs = append(errs, fmt.Errorf("final threshold %g must not be looser than accept threshold %g", m.FinalThreshold, m.AcceptThreshold))
	}
	if m.MaxSessions < 1 {
		errs = append(errs, fmt.Errorf("max face sessions must be positive, got %d", m.MaxSessions))
	}
	if c.Web.LoginRateLimit <= 0 {
		errs = append(errs, fmt.Errorf("login rate limit must be positive, got %g", c.Web.LoginRateLimit))
	}
	switch c.Directory.IdentityKey {
	case "email", "name":
	default:
		errs = append(errs, fmt.Errorf("unknown identity key %q", c.Directory.IdentityKey))
	}
	switch c.Directory.Backend {
	case "sheetdb":
		if c.Directory.SheetDBURL == "" {
			errs = append(errs, errors.New("SHEETDB_URL is required for the sheetdb directory"))
		}
	case "mysql":
		if c.Directory.MySQLDSN == "" {
			errs = append(errs, errors.New("DIRECTORY_MYSQL_DSN is required for the mysql directory"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown directory backend %q", c.Directory.Backend))
	}
	switch c.ImageStore.Backend {
	case "github":
		if c.ImageStore.GitHubRepo == "" {
			errs = append(errs, errors.New("GITHUB_REPO is required for the github image store"))
		}
	case "dir":
		if c.ImageStore.Dir == "" {
			errs = append(errs, errors.New("FACES_DIR is required for the dir image store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown image store %q", c.ImageStore.Backend))
	}
	return errors.Join(errs...)
}
