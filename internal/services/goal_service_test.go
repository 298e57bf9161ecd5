package services

import (
	"context"
	"testing"

	"famiglia/internal/core"
	ledgermem "famiglia/internal/ledger/memory"
)

func seedGoalFixture(t *testing.T) (*fakeStore, *ledgermem.Ledger, *GoalService, *noteRecorder, core.FamilyGroup, core.Member, core.Member) {
	t.Helper()
	store := newFakeStore()
	group, admin, member := seedFamily(t, store)
	ctx := context.Background()

	if err := store.AddSharedAccounts(ctx, group.ID, admin.ID, []int64{10}); err != nil {
		t.Fatalf("share admin account: %v", err)
	}
	if err := store.AddSharedAccounts(ctx, group.ID, member.ID, []int64{20}); err != nil {
		t.Fatalf("share member account: %v", err)
	}

	bank := ledgermem.NewWithBalances(map[int64]int64{10: 1000_00, 20: 1000_00})
	notes := &noteRecorder{}
	svc := NewGoalService(store, bank, notes)
	return store, bank, svc, notes, group, admin, member
}

func mustBalance(t *testing.T, bank *ledgermem.Ledger, accountID int64) int64 {
	t.Helper()
	b, err := bank.Balance(context.Background(), accountID)
	if err != nil {
		t.Fatalf("balance of %d: %v", accountID, err)
	}
	return b.Cents
}

func TestContribute_RoundTrip(t *testing.T) {
	_, bank, svc, notes, group, admin, member := seedGoalFixture(t)
	ctx := context.Background()

	goal, err := svc.CreateGoal(ctx, admin.UserID, core.Goal{
		FamilyID:     group.ID,
		Name:         "Vacation",
		TargetAmount: core.Money{Cents: 500_00},
	})
	if err != nil {
		t.Fatalf("CreateGoal: %v", err)
	}

	if _, err := svc.Contribute(ctx, admin.UserID, group.ID, goal.ID, core.Money{Cents: 300_00}, 10); err != nil {
		t.Fatalf("first contribution: %v", err)
	}
	updated, err := svc.Contribute(ctx, member.UserID, group.ID, goal.ID, core.Money{Cents: 250_00}, 20)
	if err != nil {
		t.Fatalf("second contribution: %v", err)
	}

	if updated.CurrentAmount.Cents != 550_00 {
		t.Errorf("expected current 55000, got %d", updated.CurrentAmount.Cents)
	}
	if updated.Status != core.GoalCompleted {
		t.Errorf("expected completed goal, got %s", updated.Status)
	}

	// current_amount equals the contribution sum equals the debited total.
	contribs, err := svc.ListContributions(ctx, admin.UserID, group.ID, goal.ID)
	if err != nil {
		t.Fatalf("ListContributions: %v", err)
	}
	var sum int64
	for _, c := range contribs {
		sum += c.Amount.Cents
	}
	if sum != updated.CurrentAmount.Cents {
		t.Errorf("contribution sum %d != current amount %d", sum, updated.CurrentAmount.Cents)
	}
	if got := mustBalance(t, bank, 10); got != 700_00 {
		t.Errorf("expected account 10 debited to 70000, got %d", got)
	}
	if got := mustBalance(t, bank, 20); got != 750_00 {
		t.Errorf("expected account 20 debited to 75000, got %d", got)
	}

	if got := notes.countType(core.NoteGoalCompleted); got != 1 {
		t.Errorf("expected exactly 1 goal_completed notification, got %d", got)
	}

	// The goal is no longer active: further contributions conflict and move
	// no money.
	_, err = svc.Contribute(ctx, admin.UserID, group.ID, goal.ID, core.Money{Cents: 10_00}, 10)
	assertKind(t, err, core.KindConflict)
	if got := mustBalance(t, bank, 10); got != 700_00 {
		t.Errorf("conflicting contribution moved money: balance %d", got)
	}
	if got := notes.countType(core.NoteGoalCompleted); got != 1 {
		t.Errorf("completion notified more than once: %d", got)
	}
}

func TestContribute_InsufficientFunds(t *testing.T) {
	_, bank, svc, _, group, admin, _ := seedGoalFixture(t)
	ctx := context.Background()

	goal, err := svc.CreateGoal(ctx, admin.UserID, core.Goal{
		FamilyID:     group.ID,
		Name:         "Car",
		TargetAmount: core.Money{Cents: 5000_00},
	})
	if err != nil {
		t.Fatalf("CreateGoal: %v", err)
	}

	_, err = svc.Contribute(ctx, admin.UserID, group.ID, goal.ID, core.Money{Cents: 2000_00}, 10)
	assertKind(t, err, core.KindDependency)

	// Nothing was recorded and no money moved.
	got, err := svc.GetGoal(ctx, admin.UserID, group.ID, goal.ID)
	if err != nil {
		t.Fatalf("GetGoal: %v", err)
	}
	if got.CurrentAmount.Cents != 0 {
		t.Errorf("expected untouched goal, got current %d", got.CurrentAmount.Cents)
	}
	if balance := mustBalance(t, bank, 10); balance != 1000_00 {
		t.Errorf("expected untouched balance, got %d", balance)
	}
}

func TestContribute_VersionRaceCompensatesDebit(t *testing.T) {
	store, bank, svc, _, group, admin, member := seedGoalFixture(t)
	ctx := context.Background()

	goal, err := svc.CreateGoal(ctx, admin.UserID, core.Goal{
		FamilyID:     group.ID,
		Name:         "Vacation",
		TargetAmount: core.Money{Cents: 500_00},
	})
	if err != nil {
		t.Fatalf("CreateGoal: %v", err)
	}

	// Interleave a concurrent contribution between the read and the append,
	// bumping the goal version so the outer append loses the race.
	store.contributionHook = func() {
		store.contributionHook = nil
		if _, _, err := store.AppendContribution(ctx, core.GoalContribution{
			GoalID:          goal.ID,
			MemberID:        member.ID,
			Amount:          core.Money{Cents: 50_00},
			SourceAccountID: 20,
		}, goal.Version); err != nil {
			t.Errorf("interleaved contribution: %v", err)
		}
	}

	_, err = svc.Contribute(ctx, admin.UserID, group.ID, goal.ID, core.Money{Cents: 100_00}, 10)
	assertKind(t, err, core.KindConflict)

	// The loser's debit was credited back.
	if balance := mustBalance(t, bank, 10); balance != 1000_00 {
		t.Errorf("expected compensated balance 100000, got %d", balance)
	}

	// Only the interleaved contribution exists, and the goal total matches it.
	contribs, err := store.ListContributions(ctx, goal.ID)
	if err != nil {
		t.Fatalf("ListContributions: %v", err)
	}
	if len(contribs) != 1 {
		t.Fatalf("expected 1 contribution, got %d", len(contribs))
	}
	got, err := store.GoalByID(ctx, goal.ID)
	if err != nil {
		t.Fatalf("GoalByID: %v", err)
	}
	if got.CurrentAmount.Cents != 50_00 {
		t.Errorf("expected current 5000, got %d", got.CurrentAmount.Cents)
	}
}

func TestContribute_SourceMustBeShared(t *testing.T) {
	_, bank, svc, _, group, admin, _ := seedGoalFixture(t)
	ctx := context.Background()

	goal, err := svc.CreateGoal(ctx, admin.UserID, core.Goal{
		FamilyID:     group.ID,
		Name:         "Vacation",
		TargetAmount: core.Money{Cents: 500_00},
	})
	if err != nil {
		t.Fatalf("CreateGoal: %v", err)
	}

	// Account 20 belongs to the other member.
	_, err = svc.Contribute(ctx, admin.UserID, group.ID, goal.ID, core.Money{Cents: 100_00}, 20)
	assertKind(t, err, core.KindValidation)
	if balance := mustBalance(t, bank, 20); balance != 1000_00 {
		t.Errorf("expected untouched balance, got %d", balance)
	}
}

func TestDeleteGoal(t *testing.T) {
	store, _, svc, _, group, admin, _ := seedGoalFixture(t)
	ctx := context.Background()

	// A goal without contributions is removed outright.
	empty, err := svc.CreateGoal(ctx, admin.UserID, core.Goal{
		FamilyID:     group.ID,
		Name:         "Empty",
		TargetAmount: core.Money{Cents: 100_00},
	})
	if err != nil {
		t.Fatalf("CreateGoal: %v", err)
	}
	if err := svc.DeleteGoal(ctx, admin.UserID, group.ID, empty.ID); err != nil {
		t.Fatalf("DeleteGoal: %v", err)
	}
	_, err = store.GoalByID(ctx, empty.ID)
	assertKind(t, err, core.KindNotFound)

	// A goal with history is archived, keeping the audit trail.
	funded, err := svc.CreateGoal(ctx, admin.UserID, core.Goal{
		FamilyID:     group.ID,
		Name:         "Funded",
		TargetAmount: core.Money{Cents: 500_00},
	})
	if err != nil {
		t.Fatalf("CreateGoal: %v", err)
	}
	if _, err := svc.Contribute(ctx, admin.UserID, group.ID, funded.ID, core.Money{Cents: 50_00}, 10); err != nil {
		t.Fatalf("Contribute: %v", err)
	}
	if err := svc.DeleteGoal(ctx, admin.UserID, group.ID, funded.ID); err != nil {
		t.Fatalf("DeleteGoal: %v", err)
	}
	got, err := store.GoalByID(ctx, funded.ID)
	if err != nil {
		t.Fatalf("GoalByID: %v", err)
	}
	if got.Status != core.GoalArchived {
		t.Errorf("expected archived goal, got %s", got.Status)
	}
	contribs, err := store.ListContributions(ctx, funded.ID)
	if err != nil {
		t.Fatalf("ListContributions: %v", err)
	}
	if len(contribs) != 1 {
		t.Errorf("contribution history should survive archiving, got %d rows", len(contribs))
	}
}
