package ledger

import (
	"context"

	"famiglia/internal/core"
)

// Errors surfaced by AccountLedger implementations. Services translate them
// into the dependency-failure taxonomy; money-moving operations are never
// retried blindly on them.
var (
	ErrAccountNotFound   = &core.Error{Kind: core.KindNotFound, Message: "account not found"}
	ErrInsufficientFunds = &core.Error{Kind: core.KindDependency, Message: "insufficient funds"}
)

// AccountLedger is the port to the external account ledger. Debit and Credit
// are atomic all-or-nothing operations with balance-sufficiency checks.
type AccountLedger interface {
	// Debit removes amount from the account, failing with
	// ErrInsufficientFunds when the balance does not cover it.
	Debit(ctx context.Context, accountID int64, amount core.Money) error

	// Credit adds amount to the account.
	Credit(ctx context.Context, accountID int64, amount core.Money) error

	// Balance returns the current account balance.
	Balance(ctx context.Context, accountID int64) (core.Money, error)
}
