// Package serve wires the engine's dependencies together and runs the
// Hybrid Memory Engine over the Model Context Protocol's stdio transport.
//
// Grounded on the teacher's internal/cmd/serve.Command()/flags() shape (a
// cli.Command with env-backed flags feeding a Config struct, and a
// run(ctx, cfg) body) adapted from an HTTP+gRPC listener to a stdio MCP
// server, since this service has no network listener of its own.
package serve

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/hybridmem/memory-service/internal/backup"
	"github.com/hybridmem/memory-service/internal/config"
	"github.com/hybridmem/memory-service/internal/engine"
	"github.com/hybridmem/memory-service/internal/mcptools"
	"github.com/hybridmem/memory-service/internal/relational"
	"github.com/hybridmem/memory-service/internal/summarize"
	"github.com/hybridmem/memory-service/internal/vectorstore"
	"github.com/mark3labs/mcp-go/server"
	"github.com/urfave/cli/v3"
)

// version is overridden at build time via -ldflags.
var version = "dev"

// Command returns the serve sub-command.
func Command() *cli.Command {
	cfg := config.DefaultConfig()
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the memory service, speaking MCP over stdio",
		Flags: flags(&cfg),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return run(config.WithContext(ctx, &cfg), cfg)
		},
	}
}

func flags(cfg *config.Config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "db-path",
			Category:    "Storage:",
			Sources:     cli.EnvVars("DB_PATH"),
			Destination: &cfg.DBPath,
			Value:       cfg.DBPath,
			Usage:       "Root data directory for the relational and vector stores",
		},
		&cli.StringFlag{
			Name:        "openrouter-api-key",
			Category:    "Summarization:",
			Sources:     cli.EnvVars("OPENROUTER_API_KEY"),
			Destination: &cfg.OpenRouterAPIKey,
			Usage:       "OpenRouter API key; without it, content at or above the tiny threshold is stored without a summary",
		},
		&cli.StringFlag{
			Name:        "openrouter-endpoint",
			Category:    "Summarization:",
			Sources:     cli.EnvVars("OPENROUTER_ENDPOINT"),
			Destination: &cfg.OpenRouterEndpoint,
			Value:       cfg.OpenRouterEndpoint,
			Usage:       "Base URL for the OpenRouter-compatible chat completions API",
		},
		&cli.StringFlag{
			Name:        "openrouter-model",
			Category:    "Summarization:",
			Sources:     cli.EnvVars("OPENROUTER_MODEL"),
			Destination: &cfg.OpenRouterModel,
			Value:       cfg.OpenRouterModel,
			Usage:       "Model identifier used for summarization calls",
		},
		&cli.IntFlag{
			Name:        "default-max-results",
			Category:    "Retrieval:",
			Sources:     cli.EnvVars("DEFAULT_MAX_RESULTS"),
			Destination: &cfg.DefaultMaxResults,
			Value:       cfg.DefaultMaxResults,
			Usage:       "Default number of results returned by memory_retrieve",
		},
		&cli.IntFlag{
			Name:        "tiny-content-threshold",
			Category:    "Summarization:",
			Sources:     cli.EnvVars("TINY_CONTENT_THRESHOLD"),
			Destination: &cfg.TinyContentThreshold,
			Value:       cfg.TinyContentThreshold,
			Usage:       "Content shorter than this (in characters) skips the summarizer entirely",
		},
		&cli.IntFlag{
			Name:        "small-content-threshold",
			Category:    "Summarization:",
			Sources:     cli.EnvVars("SMALL_CONTENT_THRESHOLD"),
			Destination: &cfg.SmallContentThreshold,
			Value:       cfg.SmallContentThreshold,
			Usage:       "Content at or above this length is summarized abstractively instead of extractively",
		},
		&cli.BoolFlag{
			Name:        "enable-auto-backup",
			Category:    "Backup:",
			Sources:     cli.EnvVars("ENABLE_AUTO_BACKUP"),
			Destination: &cfg.EnableAutoBackup,
			Value:       cfg.EnableAutoBackup,
			Usage:       "Take automatic snapshots when writes tick the backup manager",
		},
		&cli.IntFlag{
			Name:        "backup-interval-hours",
			Category:    "Backup:",
			Sources:     cli.EnvVars("BACKUP_INTERVAL_HOURS"),
			Destination: &cfg.BackupIntervalHours,
			Value:       cfg.BackupIntervalHours,
			Usage:       "Minimum time between automatic snapshots",
		},
		&cli.IntFlag{
			Name:        "backup-retention-count",
			Category:    "Backup:",
			Sources:     cli.EnvVars("BACKUP_RETENTION_COUNT"),
			Destination: &cfg.BackupRetentionCount,
			Value:       cfg.BackupRetentionCount,
			Usage:       "Number of newest snapshots retained, oldest pruned",
		},
		&cli.StringFlag{
			Name:        "backup-path",
			Category:    "Backup:",
			Sources:     cli.EnvVars("BACKUP_PATH"),
			Destination: &cfg.BackupPath,
			Value:       cfg.BackupPath,
			Usage:       "Directory snapshots are written to",
		},
	}
}

func run(ctx context.Context, cfg config.Config) error {
	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})

	if err := os.MkdirAll(cfg.DBPath, 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	rel, err := relational.Open(cfg.RelationalPath(), false)
	if err != nil {
		return fmt.Errorf("open relational store: %w", err)
	}
	defer rel.Close()

	if err := os.MkdirAll(cfg.VectorDir(), 0o755); err != nil {
		return fmt.Errorf("create vector directory: %w", err)
	}
	embedder := &vectorstore.LocalEmbedder{}
	vec, err := vectorstore.Open(filepath.Join(cfg.VectorDir(), "vectors.sqlite"), embedder.Dimension())
	if err != nil {
		return fmt.Errorf("open vector store: %w", err)
	}
	defer vec.Close()

	summarizer := summarize.New(cfg.OpenRouterAPIKey, cfg.OpenRouterEndpoint, cfg.OpenRouterModel)

	backupMgr := backup.New(backup.Config{
		DataDir:        cfg.DBPath,
		BackupDir:      cfg.ResolvedBackupPath(),
		Enabled:        cfg.EnableAutoBackup,
		Interval:       cfg.BackupIntervalDuration(),
		RetentionCount: cfg.BackupRetentionCount,
	}, logger)

	eng := engine.New(cfg, rel, vec, embedder, summarizer, backupMgr, logger)

	logger.Info("starting hybrid memory engine",
		"dbPath", cfg.DBPath,
		"autoBackup", cfg.EnableAutoBackup,
		"summarizationConfigured", cfg.OpenRouterAPIKey != "")

	s := mcptools.NewServer(eng, version)
	if err := server.ServeStdio(s, server.WithStdioContextFunc(func(context.Context) context.Context { return ctx })); err != nil {
		return fmt.Errorf("mcp stdio server: %w", err)
	}
	return nil
}
