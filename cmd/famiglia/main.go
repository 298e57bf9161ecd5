package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"famiglia/internal/amqp"
	"famiglia/internal/backend"
	"famiglia/internal/cli"
	apphttp "famiglia/internal/http"
	"famiglia/internal/log"
	"famiglia/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	repo := cli.InitStorage(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	accountLedger, err := backend.NewLedger(backend.Type(cfg.LedgerBackend), repo, logger.Logger)
	if err != nil {
		logger.Error("Failed to initialize ledger backend", "error", err, "backend", cfg.LedgerBackend)
		os.Exit(1)
	}

	// AMQP is optional for the API process; notifications still land in
	// storage when the broker is unreachable.
	var publisher services.EventPublisher
	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPFeedQueue, cfg.AMQPNotifyExchange)
	if err != nil {
		logger.Warn("Failed to initialize AMQP client, notification events stay local", "error", err)
	} else {
		publisher = amqpClient
		defer amqpClient.Close()
	}

	notes := services.NewNotificationService(repo, publisher)

	svc := apphttp.Services{
		Membership:    services.NewMembershipService(repo, notes, cfg.JoinAutoActivate),
		Accounts:      services.NewSharedAccountService(repo),
		Budgets:       services.NewBudgetService(repo, notes),
		Goals:         services.NewGoalService(repo, accountLedger, notes),
		Transfers:     services.NewTransferService(repo, accountLedger, notes),
		Notifications: notes,
	}

	srv := apphttp.NewServer(":"+cfg.Port, svc)
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
	})

	logger.Info("Starting famiglia server",
		"port", cfg.Port,
		"ledger_backend", cfg.LedgerBackend,
		"amqp_enabled", publisher != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
