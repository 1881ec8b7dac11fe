// Package backup provides the "backup" sub-command, a thin wrapper over
// the C5 Backup Manager with two children: "list" shows existing
// snapshots, "now" forces one regardless of the configured interval.
//
// Grounded on the teacher's internal/cmd/migrate.Command() shape (a small
// cli.Command reusing config.Config plus a single manager call).
package backup

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/hybridmem/memory-service/internal/backup"
	"github.com/hybridmem/memory-service/internal/config"
	"github.com/urfave/cli/v3"
)

func sharedFlags(cfg *config.Config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "db-path",
			Sources:     cli.EnvVars("DB_PATH"),
			Destination: &cfg.DBPath,
			Value:       cfg.DBPath,
			Usage:       "Root data directory to snapshot",
		},
		&cli.StringFlag{
			Name:        "backup-path",
			Sources:     cli.EnvVars("BACKUP_PATH"),
			Destination: &cfg.BackupPath,
			Value:       cfg.BackupPath,
			Usage:       "Directory snapshots are written to",
		},
		&cli.IntFlag{
			Name:        "backup-retention-count",
			Sources:     cli.EnvVars("BACKUP_RETENTION_COUNT"),
			Destination: &cfg.BackupRetentionCount,
			Value:       cfg.BackupRetentionCount,
			Usage:       "Number of newest snapshots retained, oldest pruned",
		},
	}
}

func newManager(cfg *config.Config) *backup.Manager {
	return backup.New(backup.Config{
		DataDir:        cfg.DBPath,
		BackupDir:      cfg.ResolvedBackupPath(),
		Enabled:        true,
		RetentionCount: cfg.BackupRetentionCount,
	}, log.Default())
}

// Command returns the backup sub-command with its "list" and "now" children.
func Command() *cli.Command {
	cfg := config.DefaultConfig()
	return &cli.Command{
		Name:  "backup",
		Usage: "Inspect or force snapshots of the memory service data directory",
		Commands: []*cli.Command{
			listCommand(&cfg),
			nowCommand(&cfg),
		},
	}
}

func listCommand(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List existing snapshots, newest first",
		Flags: sharedFlags(cfg),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			names, err := newManager(cfg).List()
			if err != nil {
				return err
			}
			if len(names) == 0 {
				fmt.Println("no snapshots found")
				return nil
			}
			for _, n := range names {
				fmt.Println(n)
			}
			return nil
		},
	}
}

func nowCommand(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "now",
		Usage: "Force a snapshot regardless of the configured interval",
		Flags: sharedFlags(cfg),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			mgr := newManager(cfg)
			mgr.InvalidateCache()
			mgr.Tick(ctx)
			names, err := mgr.List()
			if err != nil {
				return err
			}
			if len(names) == 0 {
				return fmt.Errorf("snapshot creation did not produce a file; check logs")
			}
			fmt.Println(names[0])
			return nil
		},
	}
}
