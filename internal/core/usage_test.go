package core

import (
	"math/rand"
	"testing"
	"time"
)

func TestComputeUsage(t *testing.T) {
	w, _ := WindowFor(Monthly, date(2026, 8, 1), date(2026, 8, 15))

	cases := []struct {
		limit, spent   int64
		wantPercentage float64
		warning        bool
		exceeded       bool
	}{
		{10000, 0, 0, false, false},
		{10000, 7900, 79, false, false},
		{10000, 8000, 80, true, false},
		{10000, 9999, 99.99, true, false},
		{10000, 10000, 100, false, true},
		{10000, 15000, 150, false, true},
		{0, 5000, 0, false, false}, // zero limit: no division error
	}
	for i, tc := range cases {
		s := ComputeUsage(Money{Cents: tc.limit}, Money{Cents: tc.spent}, w)
		if s.Percentage != tc.wantPercentage {
			t.Fatalf("case %d: percentage = %v, want %v", i, s.Percentage, tc.wantPercentage)
		}
		if s.IsWarning != tc.warning || s.IsExceeded != tc.exceeded {
			t.Fatalf("case %d: warning=%v exceeded=%v, want %v/%v",
				i, s.IsWarning, s.IsExceeded, tc.warning, tc.exceeded)
		}
		if s.Remaining.Cents != tc.limit-tc.spent {
			t.Fatalf("case %d: remaining = %d", i, s.Remaining.Cents)
		}
	}
}

func feedEvents() []Transaction {
	w := date(2026, 8, 1)
	return []Transaction{
		{ID: "tx-1", AccountID: 1, Amount: Money{Cents: 3000}, CategoryID: 9, OccurredAt: w.AddDate(0, 0, 2)},
		{ID: "tx-2", AccountID: 1, Amount: Money{Cents: 3200}, CategoryID: 9, OccurredAt: w.AddDate(0, 0, 5)},
		{ID: "tx-3", AccountID: 2, Amount: Money{Cents: 2000}, CategoryID: 9, OccurredAt: w.AddDate(0, 0, 9)},
		{ID: "tx-4", AccountID: 3, Amount: Money{Cents: 9000}, CategoryID: 9, OccurredAt: w.AddDate(0, 0, 9)},  // account out of scope
		{ID: "tx-5", AccountID: 1, Amount: Money{Cents: 4000}, CategoryID: 4, OccurredAt: w.AddDate(0, 0, 9)},  // other category
		{ID: "tx-6", AccountID: 1, Amount: Money{Cents: 1000}, CategoryID: 9, OccurredAt: w.AddDate(0, 2, 0)},  // outside window
		{ID: "tx-7", AccountID: 2, Amount: Money{Cents: 500}, CategoryID: 9, OccurredAt: w.AddDate(0, 0, -1)}, // before window
	}
}

func TestFoldSpentScoping(t *testing.T) {
	w, _ := WindowFor(Monthly, date(2026, 8, 1), date(2026, 8, 15))
	scope := map[int64]bool{1: true, 2: true}

	got := FoldSpent(feedEvents(), 9, scope, w)
	if got.Cents != 8200 {
		t.Fatalf("spent = %d, want 8200", got.Cents)
	}

	// No category filter: tx-5 now qualifies.
	got = FoldSpent(feedEvents(), 0, scope, w)
	if got.Cents != 12200 {
		t.Fatalf("spent = %d, want 12200", got.Cents)
	}

	// No account scope: tx-4 now qualifies.
	got = FoldSpent(feedEvents(), 9, nil, w)
	if got.Cents != 17200 {
		t.Fatalf("spent = %d, want 17200", got.Cents)
	}
}

// The fold must be invariant under reordering and duplication, matching the
// feed's at-least-once delivery.
func TestFoldSpentIdempotent(t *testing.T) {
	w, _ := WindowFor(Monthly, date(2026, 8, 1), date(2026, 8, 15))
	scope := map[int64]bool{1: true, 2: true}
	want := FoldSpent(feedEvents(), 9, scope, w).Cents

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	for trial := 0; trial < 20; trial++ {
		events := feedEvents()
		// Duplicate a random prefix, then shuffle.
		events = append(events, events[:rng.Intn(len(events))]...)
		rng.Shuffle(len(events), func(i, j int) {
			events[i], events[j] = events[j], events[i]
		})
		if got := FoldSpent(events, 9, scope, w).Cents; got != want {
			t.Fatalf("trial %d: spent = %d, want %d", trial, got, want)
		}
	}
}
