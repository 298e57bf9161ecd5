// Package backend selects the account ledger implementation behind the
// money-moving operations.
package backend

// Type identifies a ledger backend.
type Type string

const (
	// SQLiteLedger keeps account balances in the coordination database.
	SQLiteLedger Type = "sqlite"
	// MemoryLedger keeps balances in process memory, for tests and demos.
	MemoryLedger Type = "memory"
)

// String implements fmt.Stringer
func (t Type) String() string {
	return string(t)
}

// IsValid returns true if the backend type is valid
func (t Type) IsValid() bool {
	switch t {
	case SQLiteLedger, MemoryLedger:
		return true
	default:
		return false
	}
}

// Types returns all valid backend types
func Types() []Type {
	return []Type{SQLiteLedger, MemoryLedger}
}
