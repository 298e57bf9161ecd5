package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"famiglia/internal/core"
)

func (r *Repository) InsertGoal(ctx context.Context, g core.Goal) (core.Goal, error) {
	now := time.Now().UTC()
	g.Status = core.GoalActive
	g.Version = 1
	g.CreatedAt = now
	g.UpdatedAt = now

	var deadline any
	if !g.Deadline.IsZero() {
		deadline = g.Deadline.UTC()
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO goals (family_id, name, description, target_cents, current_cents, deadline, status, version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 0, ?, 'active', 1, ?, ?)`,
		g.FamilyID, g.Name, g.Description, g.TargetAmount.Cents, deadline, now, now)
	if err != nil {
		return core.Goal{}, fmt.Errorf("insert goal: %w", err)
	}
	g.ID, err = res.LastInsertId()
	if err != nil {
		return core.Goal{}, fmt.Errorf("goal id: %w", err)
	}
	slog.InfoContext(ctx, "Goal created", "goal_id", g.ID, "family_id", g.FamilyID)
	return g, nil
}

func (r *Repository) GoalByID(ctx context.Context, id int64) (core.Goal, error) {
	g, err := scanGoal(r.db.QueryRowContext(ctx,
		`SELECT id, family_id, name, description, target_cents, current_cents, deadline, status, version, created_at, updated_at
		 FROM goals WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Goal{}, core.NotFound("goal not found")
	}
	return g, err
}

func (r *Repository) ListGoals(ctx context.Context, familyID int64) ([]core.Goal, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, family_id, name, description, target_cents, current_cents, deadline, status, version, created_at, updated_at
		 FROM goals WHERE family_id = ? ORDER BY id`, familyID)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	defer rows.Close()

	var goals []core.Goal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, err
		}
		goals = append(goals, g)
	}
	return goals, rows.Err()
}

// DeleteGoal removes a goal only when it has no contributions, reporting
// whether a row was deleted. Goals with history must be archived instead.
func (r *Repository) DeleteGoal(ctx context.Context, goalID int64) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM goals WHERE id = ?
		 AND NOT EXISTS (SELECT 1 FROM goal_contributions WHERE goal_id = ?)`,
		goalID, goalID)
	if err != nil {
		return false, fmt.Errorf("delete goal: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete goal result: %w", err)
	}
	return n > 0, nil
}

// ArchiveGoal retires a goal without deleting its contribution history.
func (r *Repository) ArchiveGoal(ctx context.Context, goalID int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE goals SET status = 'archived', version = version + 1, updated_at = ?
		 WHERE id = ? AND status != 'archived'`,
		time.Now().UTC(), goalID)
	if err != nil {
		return fmt.Errorf("archive goal: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := r.GoalByID(ctx, goalID); err != nil {
			return err
		}
		return core.Conflict("goal is already archived", string(core.GoalArchived))
	}
	return nil
}

// AppendContribution records a contribution and advances the goal total in a
// single transaction, guarded by the goal version the caller read. It reports
// whether this contribution pushed the goal to completed, so exactly one
// caller sees the flip. A version mismatch returns Conflict and writes
// nothing; the caller owns the compensating credit.
func (r *Repository) AppendContribution(ctx context.Context, c core.GoalContribution, goalVersion int64) (core.Goal, bool, error) {
	var (
		updated   core.Goal
		completed bool
	)
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		now := time.Now().UTC()
		res, err := tx.ExecContext(ctx,
			`UPDATE goals SET
			   current_cents = current_cents + ?,
			   status = CASE WHEN current_cents + ? >= target_cents THEN 'completed' ELSE status END,
			   version = version + 1,
			   updated_at = ?
			 WHERE id = ? AND version = ? AND status = 'active'`,
			c.Amount.Cents, c.Amount.Cents, now, c.GoalID, goalVersion)
		if err != nil {
			return fmt.Errorf("advance goal: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			current, err := scanGoal(tx.QueryRowContext(ctx,
				`SELECT id, family_id, name, description, target_cents, current_cents, deadline, status, version, created_at, updated_at
				 FROM goals WHERE id = ?`, c.GoalID))
			if errors.Is(err, sql.ErrNoRows) {
				return core.NotFound("goal not found")
			}
			if err != nil {
				return err
			}
			if current.Status != core.GoalActive {
				return core.Conflict("goal is not active", string(current.Status))
			}
			return core.Conflict("goal was modified concurrently", string(current.Status))
		}

		cres, err := tx.ExecContext(ctx,
			`INSERT INTO goal_contributions (goal_id, member_id, amount_cents, source_account_id, created_at)
			 VALUES (?, ?, ?, ?, ?)`,
			c.GoalID, c.MemberID, c.Amount.Cents, c.SourceAccountID, now)
		if err != nil {
			return fmt.Errorf("insert contribution: %w", err)
		}
		if c.ID, err = cres.LastInsertId(); err != nil {
			return fmt.Errorf("contribution id: %w", err)
		}

		updated, err = scanGoal(tx.QueryRowContext(ctx,
			`SELECT id, family_id, name, description, target_cents, current_cents, deadline, status, version, created_at, updated_at
			 FROM goals WHERE id = ?`, c.GoalID))
		if err != nil {
			return err
		}
		completed = updated.Status == core.GoalCompleted
		return nil
	})
	if err != nil {
		return core.Goal{}, false, err
	}
	slog.InfoContext(ctx, "Contribution recorded",
		"goal_id", c.GoalID, "member_id", c.MemberID, "amount_cents", c.Amount.Cents, "completed", completed)
	return updated, completed, nil
}

func (r *Repository) ListContributions(ctx context.Context, goalID int64) ([]core.GoalContribution, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, goal_id, member_id, amount_cents, source_account_id, created_at
		 FROM goal_contributions WHERE goal_id = ? ORDER BY id`, goalID)
	if err != nil {
		return nil, fmt.Errorf("list contributions: %w", err)
	}
	defer rows.Close()

	var contribs []core.GoalContribution
	for rows.Next() {
		var c core.GoalContribution
		if err := rows.Scan(&c.ID, &c.GoalID, &c.MemberID, &c.Amount.Cents, &c.SourceAccountID, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan contribution: %w", err)
		}
		contribs = append(contribs, c)
	}
	return contribs, rows.Err()
}

func scanGoal(row interface{ Scan(...any) error }) (core.Goal, error) {
	var (
		g        core.Goal
		deadline sql.NullTime
	)
	err := row.Scan(&g.ID, &g.FamilyID, &g.Name, &g.Description, &g.TargetAmount.Cents, &g.CurrentAmount.Cents,
		&deadline, &g.Status, &g.Version, &g.CreatedAt, &g.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Goal{}, err
	}
	if err != nil {
		return core.Goal{}, fmt.Errorf("scan goal: %w", err)
	}
	if deadline.Valid {
		g.Deadline = deadline.Time
	}
	return g, nil
}
