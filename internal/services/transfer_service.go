package services

import (
	"context"
	"log/slog"

	"famiglia/internal/core"
	"famiglia/internal/ledger"
)

// TransferService runs the request/approve/execute workflow for moving money
// between family members. Status moves one way only; a concurrency or ledger
// failure can park a transfer, never rewind it.
type TransferService struct {
	store  TransferStore
	ledger ledger.AccountLedger
	notes  Notifier
}

func NewTransferService(store TransferStore, l ledger.AccountLedger, notes Notifier) *TransferService {
	return &TransferService{store: store, ledger: l, notes: notes}
}

// RequestTransfer records a pending transfer and notifies the group's admins.
// No money moves until approval.
func (s *TransferService) RequestTransfer(ctx context.Context, userID, familyID int64, recipient core.Recipient, fromAccountID int64, amount core.Money, description string) (core.Transfer, error) {
	member, err := activeMember(ctx, s.store, familyID, userID)
	if err != nil {
		return core.Transfer{}, err
	}

	t := core.Transfer{
		FamilyID:      familyID,
		FromMemberID:  member.ID,
		Recipient:     recipient,
		FromAccountID: fromAccountID,
		Amount:        amount,
		Description:   description,
	}
	if err := t.Validate(); err != nil {
		return core.Transfer{}, err
	}
	if fromAccountID == 0 {
		return core.Transfer{}, core.Validation("source account id is required")
	}

	shared, err := s.store.MemberAccountIDs(ctx, familyID, member.ID)
	if err != nil {
		return core.Transfer{}, err
	}
	if !containsID(shared, fromAccountID) {
		return core.Transfer{}, core.Validation("source account is not shared by the requesting member")
	}
	if _, err := s.destinationAccount(ctx, familyID, recipient); err != nil {
		return core.Transfer{}, err
	}

	t, err = s.store.InsertTransfer(ctx, t)
	if err != nil {
		return core.Transfer{}, err
	}

	s.notifyAdmins(ctx, familyID, core.Notification{
		FamilyID: familyID,
		Type:     core.NoteTransferRequest,
		Payload: map[string]any{
			"transfer_id":  t.ID,
			"from_member":  t.FromMemberID,
			"amount_cents": t.Amount.Cents,
		},
	})
	return t, nil
}

// ApproveTransfer decides a pending transfer. Rejection is a pure status
// change. Approval claims the transfer with a guarded pending-to-approved
// update, so of two concurrent approvers exactly one executes and the other
// gets a conflict carrying the real status. Execution debits the source and
// credits the destination; a credit failure after the debit compensates the
// debit and parks the transfer approved for a later retry by an admin.
func (s *TransferService) ApproveTransfer(ctx context.Context, userID, familyID, transferID int64, approve bool) (core.Transfer, error) {
	admin, err := activeAdmin(ctx, s.store, familyID, userID)
	if err != nil {
		return core.Transfer{}, err
	}
	t, err := s.transferInGroup(ctx, familyID, transferID)
	if err != nil {
		return core.Transfer{}, err
	}

	if !approve {
		if err := s.store.TransitionTransfer(ctx, transferID, core.TransferPending, core.TransferRejected, admin.ID); err != nil {
			return core.Transfer{}, err
		}
		s.notes.Emit(ctx, core.Notification{
			FamilyID: familyID,
			MemberID: t.FromMemberID,
			Type:     core.NoteTransferRejected,
			Payload:  map[string]any{"transfer_id": transferID},
		})
		return s.store.TransferByID(ctx, transferID)
	}

	if err := s.store.TransitionTransfer(ctx, transferID, core.TransferPending, core.TransferApproved, admin.ID); err != nil {
		return core.Transfer{}, err
	}
	return s.execute(ctx, familyID, transferID, admin.ID)
}

// RetryExecution re-runs the execution step for a transfer parked in the
// approved state by an earlier ledger failure.
func (s *TransferService) RetryExecution(ctx context.Context, userID, familyID, transferID int64) (core.Transfer, error) {
	admin, err := activeAdmin(ctx, s.store, familyID, userID)
	if err != nil {
		return core.Transfer{}, err
	}
	t, err := s.transferInGroup(ctx, familyID, transferID)
	if err != nil {
		return core.Transfer{}, err
	}
	if t.Status != core.TransferApproved {
		return core.Transfer{}, core.Conflict("transfer is not approved", string(t.Status))
	}
	return s.execute(ctx, familyID, transferID, admin.ID)
}

func (s *TransferService) GetTransfer(ctx context.Context, userID, familyID, transferID int64) (core.Transfer, error) {
	if _, err := activeMember(ctx, s.store, familyID, userID); err != nil {
		return core.Transfer{}, err
	}
	return s.transferInGroup(ctx, familyID, transferID)
}

func (s *TransferService) ListTransfers(ctx context.Context, userID, familyID int64, status core.TransferStatus) ([]core.Transfer, error) {
	if _, err := activeMember(ctx, s.store, familyID, userID); err != nil {
		return nil, err
	}
	if status != "" && !validTransferStatus(status) {
		return nil, core.Validationf("unknown transfer status %q", status)
	}
	return s.store.ListTransfers(ctx, familyID, status)
}

func (s *TransferService) execute(ctx context.Context, familyID, transferID, executorID int64) (core.Transfer, error) {
	t, err := s.store.TransferByID(ctx, transferID)
	if err != nil {
		return core.Transfer{}, err
	}

	destAccount, err := s.destinationAccount(ctx, familyID, t.Recipient)
	if err != nil {
		s.failExecution(ctx, t, err)
		return core.Transfer{}, err
	}

	if err := s.ledger.Debit(ctx, t.FromAccountID, t.Amount); err != nil {
		err = dependencyErr("account ledger debit failed", err)
		s.failExecution(ctx, t, err)
		return core.Transfer{}, err
	}

	if err := s.ledger.Credit(ctx, destAccount, t.Amount); err != nil {
		if cerr := s.ledger.Credit(ctx, t.FromAccountID, t.Amount); cerr != nil {
			slog.ErrorContext(ctx, "Compensating credit failed, account balance needs manual repair",
				"account_id", t.FromAccountID, "amount_cents", t.Amount.Cents,
				"transfer_id", t.ID, "error", cerr)
		}
		err = dependencyErr("account ledger credit failed", err)
		s.failExecution(ctx, t, err)
		return core.Transfer{}, err
	}

	if err := s.store.TransitionTransfer(ctx, transferID, core.TransferApproved, core.TransferExecuted, executorID); err != nil {
		// A concurrent executor claimed the transfer first; this movement is
		// a duplicate and gets reversed.
		if core.IsKind(err, core.KindConflict) {
			s.reverseMovement(ctx, t, destAccount)
		}
		return core.Transfer{}, err
	}

	s.notes.Emit(ctx, core.Notification{
		FamilyID: familyID,
		MemberID: t.FromMemberID,
		Type:     core.NoteTransferExecuted,
		Payload: map[string]any{
			"transfer_id":  t.ID,
			"amount_cents": t.Amount.Cents,
		},
	})
	return s.store.TransferByID(ctx, transferID)
}

// reverseMovement undoes one debit+credit pair after a lost execution race.
func (s *TransferService) reverseMovement(ctx context.Context, t core.Transfer, destAccount int64) {
	if err := s.ledger.Debit(ctx, destAccount, t.Amount); err != nil {
		slog.ErrorContext(ctx, "Reversal debit failed, account balance needs manual repair",
			"account_id", destAccount, "amount_cents", t.Amount.Cents,
			"transfer_id", t.ID, "error", err)
		return
	}
	if err := s.ledger.Credit(ctx, t.FromAccountID, t.Amount); err != nil {
		slog.ErrorContext(ctx, "Reversal credit failed, account balance needs manual repair",
			"account_id", t.FromAccountID, "amount_cents", t.Amount.Cents,
			"transfer_id", t.ID, "error", err)
	}
}

// failExecution leaves the transfer approved and tells the requester. The
// transfer never returns to pending once claimed.
func (s *TransferService) failExecution(ctx context.Context, t core.Transfer, cause error) {
	slog.WarnContext(ctx, "Transfer execution failed, transfer stays approved",
		"transfer_id", t.ID, "error", cause)
	s.notes.Emit(ctx, core.Notification{
		FamilyID: t.FamilyID,
		MemberID: t.FromMemberID,
		Type:     core.NoteTransferFailed,
		Payload: map[string]any{
			"transfer_id": t.ID,
			"reason":      cause.Error(),
		},
	})
}

// destinationAccount resolves where the money lands. A member recipient must
// have at least one shared account; the lowest-numbered one receives the
// credit. An account recipient must be shared within the group.
func (s *TransferService) destinationAccount(ctx context.Context, familyID int64, recipient core.Recipient) (int64, error) {
	switch recipient.Kind {
	case core.RecipientMember:
		m, err := s.store.MemberByID(ctx, recipient.MemberID)
		if err != nil {
			return 0, err
		}
		if m.FamilyID != familyID || m.Status != core.MemberActive {
			return 0, core.NotFound("recipient member not found")
		}
		accounts, err := s.store.MemberAccountIDs(ctx, familyID, m.ID)
		if err != nil {
			return 0, err
		}
		if len(accounts) == 0 {
			return 0, core.Validation("recipient member has no shared account")
		}
		return accounts[0], nil
	case core.RecipientAccount:
		family, err := s.store.FamilyAccountIDs(ctx, familyID)
		if err != nil {
			return 0, err
		}
		if !containsID(family, recipient.AccountID) {
			return 0, core.NotFound("recipient account is not shared in this group")
		}
		return recipient.AccountID, nil
	default:
		return 0, core.Validation("transfer recipient is required")
	}
}

func (s *TransferService) transferInGroup(ctx context.Context, familyID, transferID int64) (core.Transfer, error) {
	t, err := s.store.TransferByID(ctx, transferID)
	if err != nil {
		return core.Transfer{}, err
	}
	if t.FamilyID != familyID {
		return core.Transfer{}, core.NotFound("transfer not found")
	}
	return t, nil
}

// notifyAdmins targets the admins only; transfer review is their duty and a
// broadcast would ping everyone.
func (s *TransferService) notifyAdmins(ctx context.Context, familyID int64, n core.Notification) {
	admins, err := s.store.ActiveAdmins(ctx, familyID)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to resolve admins for notification",
			"family_id", familyID, "type", n.Type, "error", err)
		return
	}
	for _, admin := range admins {
		targeted := n
		targeted.MemberID = admin.ID
		s.notes.Emit(ctx, targeted)
	}
}

func validTransferStatus(s core.TransferStatus) bool {
	switch s {
	case core.TransferPending, core.TransferApproved, core.TransferRejected, core.TransferExecuted:
		return true
	}
	return false
}

func dependencyErr(msg string, err error) error {
	if core.KindOf(err) != core.KindUnknown {
		return err
	}
	return core.Dependency(msg, err)
}
