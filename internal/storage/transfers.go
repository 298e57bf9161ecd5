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

func (r *Repository) InsertTransfer(ctx context.Context, t core.Transfer) (core.Transfer, error) {
	t.Status = core.TransferPending
	t.Version = 1
	t.CreatedAt = time.Now().UTC()

	var toMember, toAccount any
	switch t.Recipient.Kind {
	case core.RecipientMember:
		toMember = t.Recipient.MemberID
	case core.RecipientAccount:
		toAccount = t.Recipient.AccountID
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO transfers (family_id, from_member_id, to_member_id, to_account_id, from_account_id, amount_cents, description, status, version, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 'pending', 1, ?)`,
		t.FamilyID, t.FromMemberID, toMember, toAccount, t.FromAccountID, t.Amount.Cents, t.Description, t.CreatedAt)
	if err != nil {
		return core.Transfer{}, fmt.Errorf("insert transfer: %w", err)
	}
	t.ID, err = res.LastInsertId()
	if err != nil {
		return core.Transfer{}, fmt.Errorf("transfer id: %w", err)
	}
	slog.InfoContext(ctx, "Transfer requested",
		"transfer_id", t.ID, "family_id", t.FamilyID, "amount_cents", t.Amount.Cents)
	return t, nil
}

func (r *Repository) TransferByID(ctx context.Context, id int64) (core.Transfer, error) {
	t, err := scanTransfer(r.db.QueryRowContext(ctx,
		`SELECT id, family_id, from_member_id, to_member_id, to_account_id, from_account_id, amount_cents, description, status, approved_by, executed_at, version, created_at
		 FROM transfers WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transfer{}, core.NotFound("transfer not found")
	}
	return t, err
}

func (r *Repository) ListTransfers(ctx context.Context, familyID int64, status core.TransferStatus) ([]core.Transfer, error) {
	query := `SELECT id, family_id, from_member_id, to_member_id, to_account_id, from_account_id, amount_cents, description, status, approved_by, executed_at, version, created_at
		 FROM transfers WHERE family_id = ?`
	args := []any{familyID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY id DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transfers: %w", err)
	}
	defer rows.Close()

	var transfers []core.Transfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		transfers = append(transfers, t)
	}
	return transfers, rows.Err()
}

// TransitionTransfer advances a transfer from one status to another with a
// guarded update. Losing the race returns Conflict carrying the status the
// row actually has, so concurrent approvals resolve to exactly one winner.
func (r *Repository) TransitionTransfer(ctx context.Context, id int64, from, to core.TransferStatus, approvedBy int64) error {
	set := `status = ?, version = version + 1`
	args := []any{to}
	if approvedBy != 0 {
		set += `, approved_by = ?`
		args = append(args, approvedBy)
	}
	if to == core.TransferExecuted {
		set += `, executed_at = ?`
		args = append(args, time.Now().UTC())
	}
	args = append(args, id, from)

	res, err := r.db.ExecContext(ctx,
		`UPDATE transfers SET `+set+` WHERE id = ? AND status = ?`, args...)
	if err != nil {
		return fmt.Errorf("transition transfer: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		current, err := r.TransferByID(ctx, id)
		if err != nil {
			return err
		}
		return core.Conflict(
			fmt.Sprintf("transfer is not %s", from), string(current.Status))
	}
	slog.InfoContext(ctx, "Transfer transitioned", "transfer_id", id, "from", from, "to", to)
	return nil
}

func scanTransfer(row interface{ Scan(...any) error }) (core.Transfer, error) {
	var (
		t          core.Transfer
		toMember   sql.NullInt64
		toAccount  sql.NullInt64
		approvedBy sql.NullInt64
		executedAt sql.NullTime
	)
	err := row.Scan(&t.ID, &t.FamilyID, &t.FromMemberID, &toMember, &toAccount, &t.FromAccountID,
		&t.Amount.Cents, &t.Description, &t.Status, &approvedBy, &executedAt, &t.Version, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transfer{}, err
	}
	if err != nil {
		return core.Transfer{}, fmt.Errorf("scan transfer: %w", err)
	}
	switch {
	case toMember.Valid:
		t.Recipient = core.MemberRecipient(toMember.Int64)
	case toAccount.Valid:
		t.Recipient = core.AccountRecipient(toAccount.Int64)
	}
	if approvedBy.Valid {
		t.ApprovedBy = approvedBy.Int64
	}
	if executedAt.Valid {
		t.ExecutedAt = executedAt.Time
	}
	return t, nil
}
