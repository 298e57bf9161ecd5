package services

import (
	"context"
	"log/slog"
	"time"

	"famiglia/internal/core"
	"famiglia/internal/log"
)

// LimitSweeper unlocks auto-unlock member limits whose exceeded period has
// rolled over. Limits without auto-unlock stay locked until an admin clears
// them. The sweep is idempotent and safe to run concurrently with reconciles;
// version guards resolve any race.
type LimitSweeper struct {
	store SweeperStore
	now   func() time.Time
}

func NewLimitSweeper(store SweeperStore) *LimitSweeper {
	return &LimitSweeper{store: store, now: time.Now}
}

// Sweep runs one pass and returns how many limits were unlocked.
func (p *LimitSweeper) Sweep(ctx context.Context) (int, error) {
	limits, err := p.store.ListLockedAutoUnlockLimits(ctx)
	if err != nil {
		return 0, err
	}

	unlocked := 0
	for _, l := range limits {
		window, err := core.WindowFor(l.Period, l.StartDate, p.now())
		if err != nil {
			slog.ErrorContext(ctx, "Failed to compute limit window",
				log.FieldLimitID, l.ID, log.FieldError, err)
			continue
		}
		accountIDs, err := p.store.MemberAccountIDs(ctx, l.FamilyID, l.MemberID)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to resolve member accounts",
				log.FieldLimitID, l.ID, log.FieldError, err)
			continue
		}
		spent, err := p.store.SumTransactions(ctx, accountIDs, l.CategoryID, window)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to sum spending for limit",
				log.FieldLimitID, l.ID, log.FieldError, err)
			continue
		}

		// Still exceeded in the current window, leave it locked.
		if core.ComputeUsage(l.Amount, spent, window).IsExceeded {
			continue
		}

		if err := p.store.SetLimitLocked(ctx, l.ID, false, l.Version); err != nil {
			if core.IsKind(err, core.KindConflict) {
				continue
			}
			slog.ErrorContext(ctx, "Failed to unlock limit",
				log.FieldLimitID, l.ID, log.FieldError, err)
			continue
		}
		unlocked++
		slog.InfoContext(ctx, "Member limit unlocked by sweep",
			log.FieldLimitID, l.ID, log.FieldMemberID, l.MemberID, log.FieldPeriodKey, window.Key)
	}
	return unlocked, nil
}

// Run sweeps on the given interval until the context ends. One pass runs
// immediately on startup.
func (p *LimitSweeper) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.sweepOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.sweepOnce(ctx)
		}
	}
}

func (p *LimitSweeper) sweepOnce(ctx context.Context) {
	n, err := p.Sweep(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "Limit sweep failed", "error", err)
		return
	}
	if n > 0 {
		slog.InfoContext(ctx, "Limit sweep complete", "unlocked", n)
	}
}
