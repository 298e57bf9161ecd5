package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"famiglia/internal/core"
	"famiglia/internal/ledger"
	ledgermem "famiglia/internal/ledger/memory"
)

func seedTransferFixture(t *testing.T) (*fakeStore, *ledgermem.Ledger, *TransferService, *noteRecorder, core.FamilyGroup, core.Member, core.Member) {
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

	bank := ledgermem.NewWithBalances(map[int64]int64{10: 500_00, 20: 500_00})
	notes := &noteRecorder{}
	svc := NewTransferService(store, bank, notes)
	return store, bank, svc, notes, group, admin, member
}

func TestTransferLifecycle(t *testing.T) {
	_, bank, svc, notes, group, admin, member := seedTransferFixture(t)
	ctx := context.Background()

	req, err := svc.RequestTransfer(ctx, member.UserID, group.ID,
		core.MemberRecipient(admin.ID), 20, core.Money{Cents: 150_00}, "rent share")
	if err != nil {
		t.Fatalf("RequestTransfer: %v", err)
	}
	if req.Status != core.TransferPending {
		t.Fatalf("expected pending, got %s", req.Status)
	}
	if got := notes.countType(core.NoteTransferRequest); got != 1 {
		t.Errorf("expected 1 transfer_requested notification for the admin, got %d", got)
	}

	// No money moves before approval.
	if got := mustBalance(t, bank, 20); got != 500_00 {
		t.Fatalf("balance moved before approval: %d", got)
	}

	executed, err := svc.ApproveTransfer(ctx, admin.UserID, group.ID, req.ID, true)
	if err != nil {
		t.Fatalf("ApproveTransfer: %v", err)
	}
	if executed.Status != core.TransferExecuted {
		t.Errorf("expected executed, got %s", executed.Status)
	}
	if executed.ApprovedBy != admin.ID {
		t.Errorf("expected approver %d, got %d", admin.ID, executed.ApprovedBy)
	}
	if executed.ExecutedAt.IsZero() {
		t.Error("expected executed_at to be set")
	}
	if got := mustBalance(t, bank, 20); got != 350_00 {
		t.Errorf("expected source balance 35000, got %d", got)
	}
	if got := mustBalance(t, bank, 10); got != 650_00 {
		t.Errorf("expected destination balance 65000, got %d", got)
	}
	if got := notes.countType(core.NoteTransferExecuted); got != 1 {
		t.Errorf("expected 1 transfer_executed notification, got %d", got)
	}
}

func TestApproveTransfer_DoubleApproval(t *testing.T) {
	_, bank, svc, _, group, admin, member := seedTransferFixture(t)
	ctx := context.Background()

	req, err := svc.RequestTransfer(ctx, member.UserID, group.ID,
		core.MemberRecipient(admin.ID), 20, core.Money{Cents: 100_00}, "")
	if err != nil {
		t.Fatalf("RequestTransfer: %v", err)
	}
	if _, err := svc.ApproveTransfer(ctx, admin.UserID, group.ID, req.ID, true); err != nil {
		t.Fatalf("first approval: %v", err)
	}

	// The second approver gets a conflict naming the real status, and the
	// transfer is not executed twice.
	_, err = svc.ApproveTransfer(ctx, admin.UserID, group.ID, req.ID, true)
	assertKind(t, err, core.KindConflict)
	var derr *core.Error
	if !errors.As(err, &derr) || derr.State != string(core.TransferExecuted) {
		t.Errorf("conflict should carry current status executed, got %+v", err)
	}
	if got := mustBalance(t, bank, 20); got != 400_00 {
		t.Errorf("double execution detected: source balance %d", got)
	}
}

func TestApproveTransfer_Reject(t *testing.T) {
	_, bank, svc, notes, group, admin, member := seedTransferFixture(t)
	ctx := context.Background()

	req, err := svc.RequestTransfer(ctx, member.UserID, group.ID,
		core.AccountRecipient(10), 20, core.Money{Cents: 100_00}, "")
	if err != nil {
		t.Fatalf("RequestTransfer: %v", err)
	}

	rejected, err := svc.ApproveTransfer(ctx, admin.UserID, group.ID, req.ID, false)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rejected.Status != core.TransferRejected {
		t.Errorf("expected rejected, got %s", rejected.Status)
	}
	if got := mustBalance(t, bank, 20); got != 500_00 {
		t.Errorf("rejection must not move money, balance %d", got)
	}
	if got := notes.countType(core.NoteTransferRejected); got != 1 {
		t.Errorf("expected 1 transfer_rejected notification, got %d", got)
	}

	// Rejected is terminal: a later approval conflicts.
	_, err = svc.ApproveTransfer(ctx, admin.UserID, group.ID, req.ID, true)
	assertKind(t, err, core.KindConflict)
}

func TestApproveTransfer_CreditFailureParksApproved(t *testing.T) {
	store, _, _, _, group, admin, member := seedTransferFixture(t)
	ctx := context.Background()

	base := ledgermem.NewWithBalances(map[int64]int64{10: 500_00, 20: 500_00})
	flaky := &flakyLedger{
		AccountLedger: base,
		failCredit:    map[int64]error{10: fmt.Errorf("ledger unavailable")},
	}
	notes := &noteRecorder{}
	svc := NewTransferService(store, flaky, notes)

	req, err := svc.RequestTransfer(ctx, member.UserID, group.ID,
		core.AccountRecipient(10), 20, core.Money{Cents: 100_00}, "")
	if err != nil {
		t.Fatalf("RequestTransfer: %v", err)
	}

	_, err = svc.ApproveTransfer(ctx, admin.UserID, group.ID, req.ID, true)
	assertKind(t, err, core.KindDependency)

	// The debit was compensated and the transfer is parked approved, not
	// rewound to pending.
	if got := mustBalance(t, base, 20); got != 500_00 {
		t.Errorf("expected compensated source balance, got %d", got)
	}
	parked, err := store.TransferByID(ctx, req.ID)
	if err != nil {
		t.Fatalf("TransferByID: %v", err)
	}
	if parked.Status != core.TransferApproved {
		t.Errorf("expected approved, got %s", parked.Status)
	}
	if got := notes.countType(core.NoteTransferFailed); got != 1 {
		t.Errorf("expected 1 transfer_failed notification, got %d", got)
	}

	// Once the ledger recovers an admin retries the execution.
	delete(flaky.failCredit, 10)
	executed, err := svc.RetryExecution(ctx, admin.UserID, group.ID, req.ID)
	if err != nil {
		t.Fatalf("RetryExecution: %v", err)
	}
	if executed.Status != core.TransferExecuted {
		t.Errorf("expected executed after retry, got %s", executed.Status)
	}
	if got := mustBalance(t, base, 10); got != 600_00 {
		t.Errorf("expected destination credited once, got %d", got)
	}
	if got := mustBalance(t, base, 20); got != 400_00 {
		t.Errorf("expected source debited once, got %d", got)
	}
}

func TestRequestTransfer_Validation(t *testing.T) {
	_, _, svc, _, group, admin, member := seedTransferFixture(t)
	ctx := context.Background()

	// Source account not shared by the requester.
	_, err := svc.RequestTransfer(ctx, member.UserID, group.ID,
		core.MemberRecipient(admin.ID), 10, core.Money{Cents: 100_00}, "")
	assertKind(t, err, core.KindValidation)

	// Recipient account not shared in the group.
	_, err = svc.RequestTransfer(ctx, member.UserID, group.ID,
		core.AccountRecipient(999), 20, core.Money{Cents: 100_00}, "")
	assertKind(t, err, core.KindNotFound)

	// Zero amount.
	_, err = svc.RequestTransfer(ctx, member.UserID, group.ID,
		core.MemberRecipient(admin.ID), 20, core.Money{}, "")
	assertKind(t, err, core.KindValidation)

	// Recipient must be exactly one of member or account.
	_, err = svc.RequestTransfer(ctx, member.UserID, group.ID,
		core.Recipient{}, 20, core.Money{Cents: 100_00}, "")
	assertKind(t, err, core.KindValidation)
}

func TestApproveTransfer_RequiresAdmin(t *testing.T) {
	_, _, svc, _, group, admin, member := seedTransferFixture(t)
	ctx := context.Background()

	req, err := svc.RequestTransfer(ctx, member.UserID, group.ID,
		core.MemberRecipient(admin.ID), 20, core.Money{Cents: 100_00}, "")
	if err != nil {
		t.Fatalf("RequestTransfer: %v", err)
	}

	_, err = svc.ApproveTransfer(ctx, member.UserID, group.ID, req.ID, true)
	assertKind(t, err, core.KindPermission)
}

func TestApproveTransfer_InsufficientFunds(t *testing.T) {
	store, _, _, _, group, admin, member := seedTransferFixture(t)
	ctx := context.Background()

	bank := ledgermem.NewWithBalances(map[int64]int64{10: 500_00, 20: 50_00})
	notes := &noteRecorder{}
	svc := NewTransferService(store, bank, notes)

	req, err := svc.RequestTransfer(ctx, member.UserID, group.ID,
		core.MemberRecipient(admin.ID), 20, core.Money{Cents: 100_00}, "")
	if err != nil {
		t.Fatalf("RequestTransfer: %v", err)
	}

	_, err = svc.ApproveTransfer(ctx, admin.UserID, group.ID, req.ID, true)
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds error, got %v", err)
	}

	parked, err := store.TransferByID(ctx, req.ID)
	if err != nil {
		t.Fatalf("TransferByID: %v", err)
	}
	if parked.Status != core.TransferApproved {
		t.Errorf("expected approved, got %s", parked.Status)
	}
	if got := mustBalance(t, bank, 20); got != 50_00 {
		t.Errorf("failed debit must not change balance, got %d", got)
	}
}
