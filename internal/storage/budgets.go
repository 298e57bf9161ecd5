package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"famiglia/internal/core"
)

func (r *Repository) InsertBudget(ctx context.Context, b core.Budget) (core.Budget, error) {
	now := time.Now().UTC()
	b.CreatedAt = now
	b.Version = 1

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO budgets (family_id, category_id, name, amount_cents, period, start_date, version, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, 1, ?)`,
		b.FamilyID, b.CategoryID, b.Name, b.Amount.Cents, b.Period, b.StartDate.UTC(), now)
	if err != nil {
		return core.Budget{}, fmt.Errorf("insert budget: %w", err)
	}
	b.ID, err = res.LastInsertId()
	if err != nil {
		return core.Budget{}, fmt.Errorf("budget id: %w", err)
	}
	slog.InfoContext(ctx, "Budget created", "budget_id", b.ID, "family_id", b.FamilyID)
	return b, nil
}

func (r *Repository) DeleteBudget(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM budgets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete budget: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.NotFound("budget not found")
	}
	return nil
}

func (r *Repository) BudgetByID(ctx context.Context, id int64) (core.Budget, error) {
	var b core.Budget
	err := r.db.QueryRowContext(ctx,
		`SELECT id, family_id, category_id, name, amount_cents, period, start_date, version, created_at
		 FROM budgets WHERE id = ?`, id).
		Scan(&b.ID, &b.FamilyID, &b.CategoryID, &b.Name, &b.Amount.Cents, &b.Period, &b.StartDate, &b.Version, &b.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Budget{}, core.NotFound("budget not found")
	}
	if err != nil {
		return core.Budget{}, fmt.Errorf("scan budget: %w", err)
	}
	return b, nil
}

func (r *Repository) ListBudgets(ctx context.Context, familyID int64) ([]core.Budget, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, family_id, category_id, name, amount_cents, period, start_date, version, created_at
		 FROM budgets WHERE family_id = ? ORDER BY id`, familyID)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	defer rows.Close()

	var budgets []core.Budget
	for rows.Next() {
		var b core.Budget
		if err := rows.Scan(&b.ID, &b.FamilyID, &b.CategoryID, &b.Name, &b.Amount.Cents, &b.Period, &b.StartDate, &b.Version, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan budget: %w", err)
		}
		budgets = append(budgets, b)
	}
	return budgets, rows.Err()
}

func (r *Repository) InsertMemberLimit(ctx context.Context, l core.MemberLimit) (core.MemberLimit, error) {
	now := time.Now().UTC()
	l.CreatedAt = now
	l.Version = 1

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO member_limits (family_id, member_id, category_id, amount_cents, period, start_date, auto_unlock, locked, version, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 0, 1, ?)`,
		l.FamilyID, l.MemberID, l.CategoryID, l.Amount.Cents, l.Period, l.StartDate.UTC(), l.AutoUnlock, now)
	if err != nil {
		return core.MemberLimit{}, fmt.Errorf("insert member limit: %w", err)
	}
	l.ID, err = res.LastInsertId()
	if err != nil {
		return core.MemberLimit{}, fmt.Errorf("limit id: %w", err)
	}
	slog.InfoContext(ctx, "Member limit created", "limit_id", l.ID, "member_id", l.MemberID)
	return l, nil
}

func (r *Repository) DeleteMemberLimit(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM member_limits WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete member limit: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.NotFound("member limit not found")
	}
	return nil
}

func (r *Repository) MemberLimitByID(ctx context.Context, id int64) (core.MemberLimit, error) {
	var l core.MemberLimit
	err := r.db.QueryRowContext(ctx,
		`SELECT id, family_id, member_id, category_id, amount_cents, period, start_date, auto_unlock, locked, version, created_at
		 FROM member_limits WHERE id = ?`, id).
		Scan(&l.ID, &l.FamilyID, &l.MemberID, &l.CategoryID, &l.Amount.Cents, &l.Period, &l.StartDate,
			&l.AutoUnlock, &l.Locked, &l.Version, &l.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.MemberLimit{}, core.NotFound("member limit not found")
	}
	if err != nil {
		return core.MemberLimit{}, fmt.Errorf("scan member limit: %w", err)
	}
	return l, nil
}

func (r *Repository) ListMemberLimits(ctx context.Context, familyID int64) ([]core.MemberLimit, error) {
	return r.queryLimits(ctx,
		`SELECT id, family_id, member_id, category_id, amount_cents, period, start_date, auto_unlock, locked, version, created_at
		 FROM member_limits WHERE family_id = ? ORDER BY id`, familyID)
}

// ListLockedAutoUnlockLimits returns limits the sweeper may unlock once their
// exceeded window has rolled over.
func (r *Repository) ListLockedAutoUnlockLimits(ctx context.Context) ([]core.MemberLimit, error) {
	return r.queryLimits(ctx,
		`SELECT id, family_id, member_id, category_id, amount_cents, period, start_date, auto_unlock, locked, version, created_at
		 FROM member_limits WHERE locked = 1 AND auto_unlock = 1 ORDER BY id`)
}

func (r *Repository) queryLimits(ctx context.Context, query string, args ...any) ([]core.MemberLimit, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list member limits: %w", err)
	}
	defer rows.Close()

	var limits []core.MemberLimit
	for rows.Next() {
		var l core.MemberLimit
		if err := rows.Scan(&l.ID, &l.FamilyID, &l.MemberID, &l.CategoryID, &l.Amount.Cents, &l.Period, &l.StartDate,
			&l.AutoUnlock, &l.Locked, &l.Version, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan member limit: %w", err)
		}
		limits = append(limits, l)
	}
	return limits, rows.Err()
}

// SetLimitLocked flips the locked flag through a version compare-and-swap.
func (r *Repository) SetLimitLocked(ctx context.Context, limitID int64, locked bool, version int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE member_limits SET locked = ?, version = version + 1 WHERE id = ? AND version = ?`,
		locked, limitID, version)
	if err != nil {
		return fmt.Errorf("set limit locked: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		current, err := r.MemberLimitByID(ctx, limitID)
		if err != nil {
			return err
		}
		return core.Conflict("member limit was modified concurrently", fmt.Sprintf("version %d", current.Version))
	}
	return nil
}

// RecordTransaction stores one feed event, reporting whether it was new.
// Replays and duplicates are dropped by the primary key, which keeps the
// spent fold idempotent under at-least-once delivery.
func (r *Repository) RecordTransaction(ctx context.Context, tx core.Transaction) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO transactions (id, account_id, amount_cents, category_id, occurred_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO NOTHING`,
		tx.ID, tx.AccountID, tx.Amount.Cents, tx.CategoryID, tx.OccurredAt.UTC())
	if err != nil {
		return false, fmt.Errorf("record transaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record transaction result: %w", err)
	}
	return n > 0, nil
}

// SumTransactions folds the deduplicated event set over the given account
// scope, optional category and half-open time window.
func (r *Repository) SumTransactions(ctx context.Context, accountIDs []int64, categoryID int64, window core.PeriodWindow) (core.Money, error) {
	if len(accountIDs) == 0 {
		return core.Money{}, nil
	}

	placeholders := strings.Repeat("?,", len(accountIDs))
	placeholders = placeholders[:len(placeholders)-1]
	query := fmt.Sprintf(
		`SELECT COALESCE(SUM(amount_cents), 0) FROM transactions
		 WHERE account_id IN (%s) AND occurred_at >= ? AND occurred_at < ?`, placeholders)

	args := make([]any, 0, len(accountIDs)+3)
	for _, id := range accountIDs {
		args = append(args, id)
	}
	args = append(args, window.Start, window.End)
	if categoryID != 0 {
		query += ` AND category_id = ?`
		args = append(args, categoryID)
	}

	var cents int64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&cents); err != nil {
		return core.Money{}, fmt.Errorf("sum transactions: %w", err)
	}
	return core.Money{Cents: cents}, nil
}

// MarkUsageAlert records a threshold crossing for (kind, target, period) and
// reports whether this was the first one, so each crossing notifies once per
// period no matter how often usage is recomputed.
func (r *Repository) MarkUsageAlert(ctx context.Context, kind string, targetID int64, periodKey string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO usage_alerts (kind, target_id, period_key, created_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (kind, target_id, period_key) DO NOTHING`,
		kind, targetID, periodKey, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("mark usage alert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark usage alert result: %w", err)
	}
	return n > 0, nil
}
