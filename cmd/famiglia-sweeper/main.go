package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"famiglia/internal/cli"
	"famiglia/internal/log"
	"famiglia/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentSweeper)

	logger.Info("Starting famiglia-sweeper")

	cfg := cli.LoadAndValidateConfig(logger)

	repo := cli.InitStorage(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sweeper := services.NewLimitSweeper(repo)

	logger.Info("Sweeping locked limits", "interval", cfg.SweepInterval.String())
	if err := sweeper.Run(ctx, cfg.SweepInterval); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Sweeper stopped with error", "error", err)
		os.Exit(1)
	}

	logger.Info("Sweeper shutdown complete")
}
