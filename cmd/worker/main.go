package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/kirinyoku/airbook-go/internal/app"
	"github.com/kirinyoku/airbook-go/internal/config"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.New()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	worker, err := app.NewWorker(cfg, logger)
	if err != nil {
		logger.Error("failed to create worker", "error", err)
		os.Exit(1)
	}

	if err := worker.Run(context.Background()); err != nil {
		logger.Error("worker finished with error", "error", err)
		os.Exit(1)
	}
}
