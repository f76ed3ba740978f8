// Package config provides application configuration management with support for environment variables, command-line flags, and .env files.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration.
type Config struct {
	App             AppConfig
	Logger          LoggerConfig
	Data            DataConfig
	Server          ServerConfig
	ListSource      ListSourceConfig
	Library         LibraryConfig
	Dataset         DatasetConfig
	MappingServices MappingServicesConfig
	Sync            SyncConfig
	Progress        ProgressConfig
	Redis           RedisConfig
	Events          EventsConfig
	Classifier      ClassifierConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string
}

// DataConfig holds local storage configuration.
type DataConfig struct {
	BasePath string // SQLite database, search index, badger sessions
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	CORSOrigins  []string
	RateLimit    int // mutating requests per minute per client, zero disables
}

// ListSourceConfig configures the remote list-tracking service client.
type ListSourceConfig struct {
	BaseURL  string
	ClientID string
	Timeout  time.Duration
	RPS      float64
}

// LibraryConfig configures the media-library server client.
type LibraryConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// DatasetConfig configures the bulk cross-reference dataset.
type DatasetConfig struct {
	ID        string // import status key
	URL       string // fetched over HTTP when File is empty
	File      string
	WatchFile bool // re-import when File changes
}

// MappingServicesConfig configures the external id-mapping services, in priority order.
type MappingServicesConfig struct {
	PrimaryURL      string
	FallbackURL     string
	RefreshInterval time.Duration
}

// SyncConfig holds orchestrator tuning.
type SyncConfig struct {
	FreshnessWindow  time.Duration
	UserPause        time.Duration
	ScheduleInterval time.Duration // zero disables scheduled batches
	ScheduledUsers   []string
}

// ProgressConfig selects the progress session backend.
type ProgressConfig struct {
	Backend       string // memory, badger, redis
	IdleTTL       time.Duration
	SweepInterval time.Duration
}

// RedisConfig holds redis connection settings for the shared session table.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// EventsConfig configures lifecycle event publishing.
type EventsConfig struct {
	NATSURL       string // empty disables publishing
	SubjectPrefix string
}

// ClassifierConfig configures the anime scope classifier.
type ClassifierConfig struct {
	RulesFile string // empty uses the built-in rules
}

// Flags carries command-line overrides keyed by environment variable name.
// Empty values are ignored so the next source in the precedence chain applies.
type Flags map[string]string

// flagSpecs lists the flags understood by ParseFlags, keyed by environment variable.
var flagSpecs = []struct {
	name, env, usage string
}{
	{"env", "ENV", "Environment (development, staging, production)"},
	{"log-level", "LOG_LEVEL", "Log level (debug, info, warn, error)"},
	{"data-path", "DATA_PATH", "Base path for local storage"},
	{"port", "SERVER_PORT", "Server port (default: 8080)"},
	{"list-url", "LIST_SOURCE_URL", "List service base URL"},
	{"library-url", "LIBRARY_URL", "Media library base URL"},
	{"dataset-url", "DATASET_URL", "Bulk mapping dataset URL"},
	{"dataset-file", "DATASET_FILE", "Bulk mapping dataset file"},
	{"progress-backend", "PROGRESS_BACKEND", "Progress session backend (memory, badger, redis)"},
	{"nats-url", "NATS_URL", "NATS server URL for sync events"},
}

// ParseFlags parses args into Flags plus the .env path.
func ParseFlags(args []string) (Flags, string, error) {
	fs := flag.NewFlagSet("shirosync", flag.ContinueOnError)
	values := make(map[string]*string, len(flagSpecs))
	for _, f := range flagSpecs {
		values[f.env] = fs.String(f.name, "", f.usage)
	}
	envFile := fs.String("env-file", ".env", "Path to .env file")

	if err := fs.Parse(args); err != nil {
		return nil, "", err
	}

	flags := make(Flags, len(values))
	for env, v := range values {
		flags[env] = *v
	}
	return flags, *envFile, nil
}

// LoadConfig loads configuration with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
func LoadConfig(envFile string, flags Flags) (*Config, error) {
	if envFile != "" {
		// godotenv never overrides variables already present in the environment.
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load env file %q: %w", envFile, err)
		}
	}

	l := loader{flags: flags}

	cfg := &Config{
		App:    AppConfig{Environment: l.str("ENV", "development")},
		Logger: LoggerConfig{Level: l.str("LOG_LEVEL", "info")},
		Data:   DataConfig{BasePath: l.str("DATA_PATH", "")},
		Server: ServerConfig{
			Port:         l.str("SERVER_PORT", "8080"),
			ReadTimeout:  l.duration("SERVER_READ_TIMEOUT", "15s"),
			WriteTimeout: l.duration("SERVER_WRITE_TIMEOUT", "15s"),
			IdleTimeout:  l.duration("SERVER_IDLE_TIMEOUT", "60s"),
			CORSOrigins:  l.list("CORS_ORIGINS", "*"),
			RateLimit:    l.integer("SERVER_RATE_LIMIT", 120),
		},
		ListSource: ListSourceConfig{
			BaseURL:  l.str("LIST_SOURCE_URL", "https://api.myanimelist.net/v2"),
			ClientID: l.str("LIST_SOURCE_CLIENT_ID", ""),
			Timeout:  l.duration("SOURCE_TIMEOUT", "15s"),
			RPS:      l.float("LIST_SOURCE_RPS", 1),
		},
		Library: LibraryConfig{
			BaseURL: l.str("LIBRARY_URL", ""),
			APIKey:  l.str("LIBRARY_API_KEY", ""),
			Timeout: l.duration("SOURCE_TIMEOUT", "15s"),
		},
		Dataset: DatasetConfig{
			ID:        l.str("DATASET_ID", "anime-offline-database"),
			URL:       l.str("DATASET_URL", "https://github.com/manami-project/anime-offline-database/raw/master/anime-offline-database-minified.json"),
			File:      l.str("DATASET_FILE", ""),
			WatchFile: l.boolean("DATASET_WATCH", false),
		},
		MappingServices: MappingServicesConfig{
			PrimaryURL:      l.str("MAPPING_PRIMARY_URL", ""),
			FallbackURL:     l.str("MAPPING_FALLBACK_URL", ""),
			RefreshInterval: l.duration("MAPPING_REFRESH_INTERVAL", "24h"),
		},
		Sync: SyncConfig{
			FreshnessWindow:  l.duration("SYNC_FRESHNESS_WINDOW", "24h"),
			UserPause:        l.duration("SYNC_USER_PAUSE", "2s"),
			ScheduleInterval: l.duration("SYNC_SCHEDULE_INTERVAL", "0s"),
			ScheduledUsers:   l.list("SYNC_SCHEDULED_USERS", ""),
		},
		Progress: ProgressConfig{
			Backend:       l.str("PROGRESS_BACKEND", "memory"),
			IdleTTL:       l.duration("PROGRESS_IDLE_TTL", "1h"),
			SweepInterval: l.duration("PROGRESS_SWEEP_INTERVAL", "10m"),
		},
		Redis: RedisConfig{
			Addr:     l.str("REDIS_ADDR", "localhost:6379"),
			Password: l.str("REDIS_PASSWORD", ""),
			DB:       l.integer("REDIS_DB", 0),
		},
		Events: EventsConfig{
			NATSURL:       l.str("NATS_URL", ""),
			SubjectPrefix: l.str("NATS_SUBJECT_PREFIX", "shirosync"),
		},
		Classifier: ClassifierConfig{RulesFile: l.str("CLASSIFIER_RULES", "")},
	}

	if l.err != nil {
		return nil, l.err
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	validEnvs := map[string]bool{"development": true, "staging": true, "production": true}
	if !validEnvs[c.App.Environment] {
		return fmt.Errorf("invalid environment: %q (must be development, staging, or production)", c.App.Environment)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logger.Level)] {
		return fmt.Errorf("invalid log level: %q (must be debug, info, warn, or error)", c.Logger.Level)
	}

	validBackends := map[string]bool{"memory": true, "badger": true, "redis": true}
	if !validBackends[c.Progress.Backend] {
		return fmt.Errorf("invalid progress backend: %q (must be memory, badger, or redis)", c.Progress.Backend)
	}

	if c.Data.BasePath == "" {
		return errors.New("data base path cannot be empty after expansion")
	}
	if c.Sync.FreshnessWindow <= 0 {
		return errors.New("sync freshness window must be positive")
	}
	if c.Progress.IdleTTL <= 0 {
		return errors.New("progress idle ttl must be positive")
	}
	if c.Dataset.WatchFile && c.Dataset.File == "" {
		return errors.New("DATASET_WATCH requires DATASET_FILE")
	}

	return nil
}

// expandPaths resolves ~ and relative paths.
func (c *Config) expandPaths() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	c.Data.BasePath, err = expandPath(c.Data.BasePath, filepath.Join(homeDir, ".shirosync"))
	if err != nil {
		return fmt.Errorf("invalid data path: %w", err)
	}

	if c.Dataset.File != "" {
		if c.Dataset.File, err = expandPath(c.Dataset.File, ""); err != nil {
			return fmt.Errorf("invalid dataset file: %w", err)
		}
	}
	if c.Classifier.RulesFile != "" {
		if c.Classifier.RulesFile, err = expandPath(c.Classifier.RulesFile, ""); err != nil {
			return fmt.Errorf("invalid classifier rules file: %w", err)
		}
	}
	return nil
}

// expandPath expands ~ and makes the path absolute.
// If path is empty, defaultPath is returned unchanged.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

// loader resolves values through flag > env > default and keeps the first parse error.
type loader struct {
	flags Flags
	err   error
}

func (l *loader) str(envKey, defaultValue string) string {
	if v := l.flags[envKey]; v != "" {
		return v
	}
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	return defaultValue
}

func (l *loader) duration(envKey, defaultValue string) time.Duration {
	raw := l.str(envKey, defaultValue)
	d, err := time.ParseDuration(raw)
	if err != nil {
		l.fail(fmt.Errorf("invalid %s %q: %w", envKey, raw, err))
		return 0
	}
	return d
}

func (l *loader) integer(envKey string, defaultValue int) int {
	raw := l.str(envKey, "")
	if raw == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		l.fail(fmt.Errorf("invalid %s %q: %w", envKey, raw, err))
		return defaultValue
	}
	return n
}

func (l *loader) float(envKey string, defaultValue float64) float64 {
	raw := l.str(envKey, "")
	if raw == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		l.fail(fmt.Errorf("invalid %s %q: %w", envKey, raw, err))
		return defaultValue
	}
	return f
}

// boolean accepts "true", "1", "yes" (case-insensitive) as true.
func (l *loader) boolean(envKey string, defaultValue bool) bool {
	raw := strings.ToLower(l.str(envKey, ""))
	if raw == "" {
		return defaultValue
	}
	return raw == "true" || raw == "1" || raw == "yes"
}

// list splits a comma separated value, dropping empty items.
func (l *loader) list(envKey, defaultValue string) []string {
	raw := l.str(envKey, defaultValue)
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (l *loader) fail(err error) {
	if l.err == nil {
		l.err = err
	}
}
