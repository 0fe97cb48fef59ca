// Command server runs the course-management API.
//
// Configuration comes from the environment (optionally a .env file); see
// internal/config for the keys.
package main

import (
	"log/slog"
	"os"

	"github.com/josquinlarsen/tarpaulin/internal/config"
	"github.com/josquinlarsen/tarpaulin/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := cfg.Logging.NewLogger(os.Stdout)
	slog.SetDefault(logger)

	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start blocks until SIGINT or SIGTERM
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
