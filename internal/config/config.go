// Package config holds the environment-variable configuration for the
// hybrid memory engine. Grounded on the teacher's internal/config package:
// a plain Config struct, a context.Context carrier (WithContext/FromContext),
// and small env-parsing helpers (here in envutil.go) used by LoadFromEnv.
package config

import (
	"context"
	"path/filepath"
	"strings"
	"time"
)

type contextKey struct{}

// WithContext returns a new context carrying the given Config.
func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, contextKey{}, cfg)
}

// FromContext retrieves the Config from the context, or nil if absent.
func FromContext(ctx context.Context) *Config {
	cfg, _ := ctx.Value(contextKey{}).(*Config)
	return cfg
}

// Config holds all configuration recognized by the memory service: the
// environment variables enumerated in the specification, plus
// OPENROUTER_MODEL for the summarization model.
type Config struct {
	// DBPath is the root data directory. The relational store lives at
	// <DBPath>/memory.sqlite; the vector store lives under <DBPath>/chroma.
	DBPath string

	// OpenRouterAPIKey authenticates the summarization client. Without it,
	// store/retrieve still work; the default-summary path degrades
	// (summary_generated=false).
	OpenRouterAPIKey string
	// OpenRouterEndpoint is the base URL for the summarization API.
	OpenRouterEndpoint string
	// OpenRouterModel is the chat-completions model used for summarization.
	OpenRouterModel string

	// DefaultMaxResults is the default retrieve() result count.
	DefaultMaxResults int

	// TinyContentThreshold and SmallContentThreshold gate the size-tier
	// policy used to select the default summary strategy.
	TinyContentThreshold  int
	SmallContentThreshold int

	// EnableAutoBackup gates whether the backup manager takes snapshots when
	// Engine.Store/Update/Delete tick it after a successful write.
	EnableAutoBackup bool
	// BackupIntervalHours is the minimum time between automatic snapshots.
	BackupIntervalHours int
	// BackupRetentionCount is the number of newest snapshots retained.
	BackupRetentionCount int
	// BackupPath is the directory snapshots are written to.
	BackupPath string
}

// DefaultConfig returns a Config with the specification's documented defaults.
func DefaultConfig() Config {
	return Config{
		DBPath:                "./memory_db",
		OpenRouterEndpoint:    "https://api.openrouter.ai/v1",
		OpenRouterModel:       "openrouter/auto",
		DefaultMaxResults:     5,
		TinyContentThreshold:  500,
		SmallContentThreshold: 2000,
		EnableAutoBackup:      true,
		BackupIntervalHours:   24,
		BackupRetentionCount:  10,
		BackupPath:            "./backups",
	}
}

// LoadFromEnv builds a Config by layering recognized environment variables
// over DefaultConfig(). Parsing belongs here at the boundary, not in the engine.
func LoadFromEnv() (Config, error) {
	cfg := DefaultConfig()

	applyStringEnv("DB_PATH", &cfg.DBPath)
	applyStringEnv("OPENROUTER_API_KEY", &cfg.OpenRouterAPIKey)
	applyStringEnv("OPENROUTER_ENDPOINT", &cfg.OpenRouterEndpoint)
	applyStringEnv("OPENROUTER_MODEL", &cfg.OpenRouterModel)

	if err := applyIntEnv("DEFAULT_MAX_RESULTS", &cfg.DefaultMaxResults); err != nil {
		return cfg, err
	}
	if err := applyIntEnv("TINY_CONTENT_THRESHOLD", &cfg.TinyContentThreshold); err != nil {
		return cfg, err
	}
	if err := applyIntEnv("SMALL_CONTENT_THRESHOLD", &cfg.SmallContentThreshold); err != nil {
		return cfg, err
	}
	if err := applyBoolEnv("ENABLE_AUTO_BACKUP", &cfg.EnableAutoBackup); err != nil {
		return cfg, err
	}
	if err := applyIntEnv("BACKUP_INTERVAL_HOURS", &cfg.BackupIntervalHours); err != nil {
		return cfg, err
	}
	if err := applyIntEnv("BACKUP_RETENTION_COUNT", &cfg.BackupRetentionCount); err != nil {
		return cfg, err
	}
	applyStringEnv("BACKUP_PATH", &cfg.BackupPath)

	return cfg, nil
}

// RelationalPath returns the path to the relational store file.
func (c *Config) RelationalPath() string {
	return filepath.Join(c.DBPath, "memory.sqlite")
}

// VectorDir returns the directory the vector store keeps its files in.
func (c *Config) VectorDir() string {
	return filepath.Join(c.DBPath, "chroma")
}

// BackupIntervalDuration converts BackupIntervalHours to a time.Duration.
func (c *Config) BackupIntervalDuration() time.Duration {
	return time.Duration(c.BackupIntervalHours) * time.Hour
}

// ResolvedBackupPath returns the configured backup directory or a default
// relative to the current working directory.
func (c *Config) ResolvedBackupPath() string {
	if dir := strings.TrimSpace(c.BackupPath); dir != "" {
		return dir
	}
	return "./backups"
}
