package core

import (
	"testing"
	"time"
)

func TestBudgetValidate(t *testing.T) {
	good := Budget{
		Name:      "Groceries",
		Amount:    Money{Cents: 50000},
		Period:    Monthly,
		StartDate: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []Budget{
		{Name: "", Amount: Money{Cents: 100}, Period: Monthly, StartDate: good.StartDate},
		{Name: "x", Amount: Money{Cents: 0}, Period: Monthly, StartDate: good.StartDate},
		{Name: "x", Amount: Money{Cents: 100}, Period: "daily", StartDate: good.StartDate},
		{Name: "x", Amount: Money{Cents: 100}, Period: Weekly},
	}
	for i, b := range bads {
		if err := b.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
		if !IsKind(bads[i].Validate(), KindValidation) {
			t.Fatalf("case %d expected validation kind", i)
		}
	}
}

func TestMemberLimitValidate(t *testing.T) {
	good := MemberLimit{
		MemberID:  3,
		Amount:    Money{Cents: 10000},
		Period:    Weekly,
		StartDate: time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC),
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	bad := good
	bad.MemberID = 0
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected error for zero member")
	}
}

func TestGoalValidate(t *testing.T) {
	good := Goal{Name: "Vacation", TargetAmount: Money{Cents: 500000}}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	bads := []Goal{
		{Name: "", TargetAmount: Money{Cents: 100}},
		{Name: "x", TargetAmount: Money{Cents: 0}},
		{Name: "x", TargetAmount: Money{Cents: MaxAmountCents + 1}},
	}
	for i, g := range bads {
		if err := g.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestRecipientValidate(t *testing.T) {
	cases := []struct {
		r  Recipient
		ok bool
	}{
		{MemberRecipient(5), true},
		{AccountRecipient(7), true},
		{Recipient{}, false},
		{Recipient{Kind: RecipientMember}, false},
		{Recipient{Kind: RecipientAccount}, false},
		{Recipient{Kind: RecipientMember, MemberID: 5, AccountID: 7}, false},
		{Recipient{Kind: "other", MemberID: 5}, false},
	}
	for i, tc := range cases {
		err := tc.r.Validate()
		if tc.ok && err != nil {
			t.Fatalf("case %d expected ok, got %v", i, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestTransferValidate(t *testing.T) {
	good := Transfer{
		FromMemberID: 1,
		Recipient:    AccountRecipient(7),
		Amount:       Money{Cents: 100000},
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bad := good
	bad.Recipient = Recipient{Kind: RecipientMember, MemberID: 2, AccountID: 7}
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected error for double recipient")
	}

	bad = good
	bad.Amount = Money{Cents: -1}
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected error for negative amount")
	}
}

func TestTransferStatusTerminal(t *testing.T) {
	if TransferPending.Terminal() || TransferApproved.Terminal() {
		t.Fatalf("pending/approved must not be terminal")
	}
	if !TransferExecuted.Terminal() || !TransferRejected.Terminal() {
		t.Fatalf("executed/rejected must be terminal")
	}
}

func TestErrorKinds(t *testing.T) {
	conflict := Conflict("transfer already resolved", string(TransferExecuted))
	if !IsKind(conflict, KindConflict) {
		t.Fatalf("expected conflict kind")
	}
	if KindOf(conflict) != KindConflict {
		t.Fatalf("KindOf mismatch")
	}
	var de *Error
	if !asError(conflict, &de) || de.State != string(TransferExecuted) {
		t.Fatalf("conflict must carry current state")
	}
	if KindOf(nil) != KindUnknown {
		t.Fatalf("nil error should be unknown kind")
	}
}

func asError(err error, target **Error) bool {
	e, ok := err.(*Error)
	if ok {
		*target = e
	}
	return ok
}
