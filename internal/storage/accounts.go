package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"famiglia/internal/core"
	"famiglia/internal/ledger"
)

// ReplaceSharedAccounts swaps the member's shared set for accountIDs in one
// transaction (full replacement, idempotent).
func (r *Repository) ReplaceSharedAccounts(ctx context.Context, familyID, memberID int64, accountIDs []int64) error {
	now := time.Now().UTC()
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM shared_accounts WHERE family_id = ? AND member_id = ?`,
			familyID, memberID); err != nil {
			return fmt.Errorf("clear shared accounts: %w", err)
		}
		for _, accountID := range accountIDs {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO shared_accounts (family_id, member_id, account_id, visibility, created_at)
				 VALUES (?, ?, ?, ?, ?)`,
				familyID, memberID, accountID, core.VisibilityFamily, now); err != nil {
				if isUniqueViolation(err) {
					return core.Conflict(fmt.Sprintf("account %d is already shared by another member", accountID), "")
				}
				return fmt.Errorf("insert shared account: %w", err)
			}
		}
		return nil
	})
}

// AddSharedAccounts adds accountIDs to the member's shared set (union).
// Accounts already shared by the same member are skipped.
func (r *Repository) AddSharedAccounts(ctx context.Context, familyID, memberID int64, accountIDs []int64) error {
	now := time.Now().UTC()
	return r.withTx(ctx, func(tx *sql.Tx) error {
		for _, accountID := range accountIDs {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO shared_accounts (family_id, member_id, account_id, visibility, created_at)
				 VALUES (?, ?, ?, ?, ?)
				 ON CONFLICT (family_id, account_id) DO NOTHING`,
				familyID, memberID, accountID, core.VisibilityFamily, now)
			if err != nil {
				return fmt.Errorf("add shared account: %w", err)
			}
		}
		return nil
	})
}

// RemoveSharedAccount revokes group visibility of one account. Historical
// transfer and contribution rows keep referencing the account id.
func (r *Repository) RemoveSharedAccount(ctx context.Context, familyID, memberID, accountID int64) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM shared_accounts WHERE family_id = ? AND member_id = ? AND account_id = ?`,
		familyID, memberID, accountID)
	if err != nil {
		return fmt.Errorf("remove shared account: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.NotFound("shared account not found")
	}
	return nil
}

func (r *Repository) ListSharedAccounts(ctx context.Context, familyID int64) ([]core.SharedAccount, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT family_id, member_id, account_id, visibility, created_at
		 FROM shared_accounts WHERE family_id = ? ORDER BY member_id, account_id`, familyID)
	if err != nil {
		return nil, fmt.Errorf("list shared accounts: %w", err)
	}
	defer rows.Close()

	var accounts []core.SharedAccount
	for rows.Next() {
		var a core.SharedAccount
		if err := rows.Scan(&a.FamilyID, &a.MemberID, &a.AccountID, &a.Visibility, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan shared account: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// MemberAccountIDs returns the account ids a member has shared with the group.
func (r *Repository) MemberAccountIDs(ctx context.Context, familyID, memberID int64) ([]int64, error) {
	return r.accountIDs(ctx,
		`SELECT account_id FROM shared_accounts WHERE family_id = ? AND member_id = ? ORDER BY account_id`,
		familyID, memberID)
}

// FamilyAccountIDs returns the account ids visible to the whole group.
func (r *Repository) FamilyAccountIDs(ctx context.Context, familyID int64) ([]int64, error) {
	return r.accountIDs(ctx,
		`SELECT account_id FROM shared_accounts WHERE family_id = ? AND visibility = ?`,
		familyID, core.VisibilityFamily)
}

// FamiliesSharingAccount returns the family ids an account is shared with,
// used to scope feed-driven reconciliation.
func (r *Repository) FamiliesSharingAccount(ctx context.Context, accountID int64) ([]int64, error) {
	return r.accountIDs(ctx,
		`SELECT family_id FROM shared_accounts WHERE account_id = ?`, accountID)
}

func (r *Repository) accountIDs(ctx context.Context, query string, args ...any) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// --- ledger.AccountLedger backed by the accounts table ---

// CreateAccount registers an account with an opening balance.
func (r *Repository) CreateAccount(ctx context.Context, accountID, openingCents int64) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (id, balance_cents, created_at) VALUES (?, ?, ?)
		 ON CONFLICT (id) DO NOTHING`,
		accountID, openingCents, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

// Debit implements ledger.AccountLedger. The balance-sufficiency check and
// the decrement happen in a single statement, so concurrent debits cannot
// overdraw the account.
func (r *Repository) Debit(ctx context.Context, accountID int64, amount core.Money) error {
	if err := amount.Validate(); err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET balance_cents = balance_cents - ? WHERE id = ? AND balance_cents >= ?`,
		amount.Cents, accountID, amount.Cents)
	if err != nil {
		return fmt.Errorf("debit account: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := r.Balance(ctx, accountID); err != nil {
			return err
		}
		return ledger.ErrInsufficientFunds
	}
	slog.InfoContext(ctx, "Account debited", "account_id", accountID, "amount_cents", amount.Cents)
	return nil
}

// Credit implements ledger.AccountLedger.
func (r *Repository) Credit(ctx context.Context, accountID int64, amount core.Money) error {
	if err := amount.Validate(); err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET balance_cents = balance_cents + ? WHERE id = ?`,
		amount.Cents, accountID)
	if err != nil {
		return fmt.Errorf("credit account: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ledger.ErrAccountNotFound
	}
	slog.InfoContext(ctx, "Account credited", "account_id", accountID, "amount_cents", amount.Cents)
	return nil
}

// Balance implements ledger.AccountLedger.
func (r *Repository) Balance(ctx context.Context, accountID int64) (core.Money, error) {
	var cents int64
	err := r.db.QueryRowContext(ctx,
		`SELECT balance_cents FROM accounts WHERE id = ?`, accountID).Scan(&cents)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Money{}, ledger.ErrAccountNotFound
	}
	if err != nil {
		return core.Money{}, fmt.Errorf("account balance: %w", err)
	}
	return core.Money{Cents: cents}, nil
}
