// Package migrate provides the "migrate" sub-command: it opens the
// relational and vector stores (which create their schema on first open)
// and, with --reset, truncates both, standing in for the C3/C4 init(reset)
// operation from outside a running MCP session.
//
// Grounded on the teacher's internal/cmd/migrate.Command() shape (a small
// cli.Command wrapping a single store-level operation), repointed from an
// external postgres/mongo schema migrator to this service's embedded
// SQLite stores.
package migrate

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/hybridmem/memory-service/internal/config"
	"github.com/hybridmem/memory-service/internal/relational"
	"github.com/hybridmem/memory-service/internal/vectorstore"
	"github.com/urfave/cli/v3"
)

// Command returns the migrate sub-command.
func Command() *cli.Command {
	cfg := config.DefaultConfig()
	return &cli.Command{
		Name:  "migrate",
		Usage: "Initialize or reset the relational and vector stores",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "db-path",
				Sources:     cli.EnvVars("DB_PATH"),
				Destination: &cfg.DBPath,
				Value:       cfg.DBPath,
				Usage:       "Root data directory for the relational and vector stores",
			},
			&cli.BoolFlag{
				Name:  "reset",
				Usage: "Wipe existing data before recreating the schema",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
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
			vec, err := vectorstore.Open(cfg.VectorDir()+"/vectors.sqlite", embedder.Dimension())
			if err != nil {
				return fmt.Errorf("open vector store: %w", err)
			}
			defer vec.Close()

			if cmd.Bool("reset") {
				if err := rel.Reset(ctx); err != nil {
					return fmt.Errorf("reset relational store: %w", err)
				}
				if err := vec.Reset(ctx); err != nil {
					return fmt.Errorf("reset vector store: %w", err)
				}
				log.Info("stores reset", "dbPath", cfg.DBPath)
				return nil
			}

			log.Info("stores initialized", "dbPath", cfg.DBPath)
			return nil
		},
	}
}
