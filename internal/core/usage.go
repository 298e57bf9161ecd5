package core

// Threshold percentages for usage notifications.
const (
	WarningThreshold  = 80.0
	ExceededThreshold = 100.0
)

// UsageSnapshot is the derived view of a budget or member limit against its
// current period window. Percentage is uncapped so over-spend keeps signaling.
type UsageSnapshot struct {
	Limit      Money
	Spent      Money
	Remaining  Money
	Percentage float64
	IsWarning  bool
	IsExceeded bool
	Window     PeriodWindow
}

// ComputeUsage derives the snapshot from a limit and the spent sum. A zero
// limit yields percentage 0 rather than a division error.
func ComputeUsage(limit, spent Money, window PeriodWindow) UsageSnapshot {
	s := UsageSnapshot{
		Limit:     limit,
		Spent:     spent,
		Remaining: Money{Cents: limit.Cents - spent.Cents},
		Window:    window,
	}
	if limit.Cents > 0 {
		s.Percentage = float64(spent.Cents) / float64(limit.Cents) * 100
	}
	s.IsExceeded = s.Percentage >= ExceededThreshold
	s.IsWarning = s.Percentage >= WarningThreshold && !s.IsExceeded
	return s
}

// FoldSpent sums qualifying transaction amounts: matching category when
// categoryID is set, account in scope when accounts is non-nil, timestamp in
// the window. Duplicate transaction ids are counted once, so the fold is
// invariant under reordering and at-least-once redelivery.
func FoldSpent(txns []Transaction, categoryID int64, accounts map[int64]bool, window PeriodWindow) Money {
	seen := make(map[string]bool, len(txns))
	var total int64
	for _, tx := range txns {
		if seen[tx.ID] {
			continue
		}
		seen[tx.ID] = true
		if categoryID != 0 && tx.CategoryID != categoryID {
			continue
		}
		if accounts != nil && !accounts[tx.AccountID] {
			continue
		}
		if !window.Contains(tx.OccurredAt) {
			continue
		}
		total += tx.Amount.Cents
	}
	return Money{Cents: total}
}
