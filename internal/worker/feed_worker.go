package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"famiglia/internal/amqp"
	"famiglia/internal/core"
	"famiglia/internal/log"
)

// TransactionRecorder ingests feed transactions and recomputes spending state.
type TransactionRecorder interface {
	RecordTransaction(ctx context.Context, tx core.Transaction) error
	Reconcile(ctx context.Context, familyID int64) error
}

// FamilyLister enumerates the family groups known to storage.
type FamilyLister interface {
	ListFamilyIDs(ctx context.Context) ([]int64, error)
}

// FeedWorker consumes transaction events from the external feed and keeps
// budget and limit usage up to date.
type FeedWorker struct {
	budgets  TransactionRecorder
	families FamilyLister
}

func NewFeedWorker(budgets TransactionRecorder, families FamilyLister) *FeedWorker {
	return &FeedWorker{
		budgets:  budgets,
		families: families,
	}
}

// HandleTransactionEvent processes a single transaction event from AMQP.
func (w *FeedWorker) HandleTransactionEvent(ctx context.Context, msg *amqp.TransactionEventMessage) error {
	slog.InfoContext(ctx, "Processing transaction event",
		log.FieldTransactionID, msg.TransactionID,
		log.FieldAccountID, msg.AccountID,
		log.FieldAmountCents, msg.AmountCents)

	tx := core.Transaction{
		ID:         msg.TransactionID,
		AccountID:  msg.AccountID,
		Amount:     core.Money{Cents: msg.AmountCents},
		CategoryID: msg.CategoryID,
		OccurredAt: msg.OccurredAt,
	}

	if err := w.budgets.RecordTransaction(ctx, tx); err != nil {
		return fmt.Errorf("record transaction %s: %w", msg.TransactionID, err)
	}

	return nil
}

// ReconcileAll recomputes usage for every family group.
// This is a backup mechanism in case AMQP messages are lost.
func (w *FeedWorker) ReconcileAll(ctx context.Context) error {
	familyIDs, err := w.families.ListFamilyIDs(ctx)
	if err != nil {
		return fmt.Errorf("list family ids: %w", err)
	}

	if len(familyIDs) == 0 {
		return nil
	}

	successCount := 0
	errorCount := 0

	for _, familyID := range familyIDs {
		if err := w.budgets.Reconcile(ctx, familyID); err != nil {
			slog.ErrorContext(ctx, "Failed to reconcile family",
				log.FieldFamilyID, familyID, log.FieldError, err)
			errorCount++
			continue
		}
		successCount++
	}

	slog.InfoContext(ctx, "Reconcile pass completed",
		"total", len(familyIDs),
		"reconciled", successCount,
		"errors", errorCount)

	return nil
}

// StartupCheck reconciles every family at worker startup.
// This is useful to recover from missed AMQP messages or worker downtime.
func (w *FeedWorker) StartupCheck(ctx context.Context) error {
	slog.InfoContext(ctx, "Running startup reconcile check")
	if err := w.ReconcileAll(ctx); err != nil {
		return fmt.Errorf("startup reconcile check: %w", err)
	}
	return nil
}

// RunReconcileLoop reconciles all families on a fixed interval until the
// context is cancelled.
func (w *FeedWorker) RunReconcileLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Reconcile loop stopped")
			return
		case <-ticker.C:
			if err := w.ReconcileAll(ctx); err != nil {
				slog.ErrorContext(ctx, "Periodic reconcile failed", "error", err)
			}
		}
	}
}
