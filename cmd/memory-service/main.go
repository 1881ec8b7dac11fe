package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/hybridmem/memory-service/internal/cmd/backup"
	"github.com/hybridmem/memory-service/internal/cmd/migrate"
	"github.com/hybridmem/memory-service/internal/cmd/serve"
	"github.com/urfave/cli/v3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:  "memory-service",
		Usage: "Hybrid memory engine for AI agents",
		Commands: []*cli.Command{
			serve.Command(),
			migrate.Command(),
			backup.Command(),
		},
	}
	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
