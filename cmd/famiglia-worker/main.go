package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"famiglia/internal/amqp"
	"famiglia/internal/cli"
	"famiglia/internal/log"
	"famiglia/internal/services"
	"famiglia/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentWorker)

	logger.Info("Starting famiglia-worker")

	cfg := cli.LoadAndValidateConfig(logger)

	repo := cli.InitStorage(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPFeedQueue, cfg.AMQPNotifyExchange)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	notes := services.NewNotificationService(repo, amqpClient)
	budgets := services.NewBudgetService(repo, notes)
	feedWorker := worker.NewFeedWorker(budgets, repo)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Recover usage state for events missed while the worker was down.
	if err := feedWorker.StartupCheck(ctx); err != nil {
		logger.Error("Failed startup reconcile check", "error", err)
		// Don't exit - continue with normal operation
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return amqpClient.ConsumeTransactionEvents(gctx, feedWorker.HandleTransactionEvent)
	})

	g.Go(func() error {
		feedWorker.RunReconcileLoop(gctx, cfg.ReconcileInterval)
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped with error", "error", err)
		os.Exit(1)
	}

	logger.Info("Worker shutdown complete")
}
