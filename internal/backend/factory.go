package backend

import (
	"fmt"
	"log/slog"

	"famiglia/internal/ledger"
	"famiglia/internal/ledger/memory"
	"famiglia/internal/storage"
)

// NewLedger returns the account ledger for the configured backend.
//
// The sqlite ledger shares the coordination repository's database, so a
// debit and the coordination write that follows it contend on the same
// file lock rather than racing across stores.
func NewLedger(t Type, repo *storage.Repository, logger *slog.Logger) (ledger.AccountLedger, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if !t.IsValid() {
		return nil, fmt.Errorf("invalid ledger backend: %q (valid: %v)", t, Types())
	}

	switch t {
	case SQLiteLedger:
		if repo == nil {
			return nil, fmt.Errorf("sqlite ledger requires a storage repository")
		}
		logger.Info("Initialized SQLite ledger backend")
		return repo, nil
	case MemoryLedger:
		logger.Info("Initialized in-memory ledger backend")
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unsupported ledger backend: %s", t)
	}
}
