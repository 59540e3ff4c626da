// Command ribamar runs the account and credential backend.
//
// Configuration is read from a YAML file (-config, RIBAMAR_CONFIG,
// ./ribamar.yaml or /etc/ribamar/config.yaml) and environment overrides:
//
//	RIBAMAR_PORT          - Listen port (default: 6776)
//	RIBAMAR_STORAGE       - Storage type: "memory", "postgres" or "mongo" (default: "memory")
//	RIBAMAR_POSTGRES_DSN  - PostgreSQL connection string
//	RIBAMAR_MONGO_URL     - MongoDB connection URL
//	RIBAMAR_LOG_LEVEL     - debug, info, warn or error (default: info)
//	RIBAMAR_LOG_PATH      - Append logs to this file instead of stderr
//	RIBAMAR_SMTP_PASSWORD - SMTP password
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/rhuss/ribamar/pkg/app"
	"github.com/rhuss/ribamar/pkg/config"
)

func main() {
	if err := run(); err != nil {
		slog.Error("ribamar failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	return a.Run(ctx)
}
