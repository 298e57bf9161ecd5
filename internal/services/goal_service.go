package services

import (
	"context"
	"log/slog"

	"famiglia/internal/core"
	"famiglia/internal/ledger"
)

// GoalService runs the collective savings goals. Contributions move real
// money: the source account is debited on the external ledger first, then
// the contribution and the goal total commit together locally. When the
// local commit loses a version race the debit is compensated, so the
// invariant current_amount == sum(contributions) == total debits holds.
type GoalService struct {
	store  GoalStore
	ledger ledger.AccountLedger
	notes  Notifier
}

func NewGoalService(store GoalStore, l ledger.AccountLedger, notes Notifier) *GoalService {
	return &GoalService{store: store, ledger: l, notes: notes}
}

func (s *GoalService) CreateGoal(ctx context.Context, userID int64, g core.Goal) (core.Goal, error) {
	if _, err := activeMember(ctx, s.store, g.FamilyID, userID); err != nil {
		return core.Goal{}, err
	}
	if err := g.Validate(); err != nil {
		return core.Goal{}, err
	}
	return s.store.InsertGoal(ctx, g)
}

func (s *GoalService) GetGoal(ctx context.Context, userID, familyID, goalID int64) (core.Goal, error) {
	if _, err := activeMember(ctx, s.store, familyID, userID); err != nil {
		return core.Goal{}, err
	}
	return s.goalInGroup(ctx, familyID, goalID)
}

func (s *GoalService) ListGoals(ctx context.Context, userID, familyID int64) ([]core.Goal, error) {
	if _, err := activeMember(ctx, s.store, familyID, userID); err != nil {
		return nil, err
	}
	return s.store.ListGoals(ctx, familyID)
}

func (s *GoalService) ListContributions(ctx context.Context, userID, familyID, goalID int64) ([]core.GoalContribution, error) {
	if _, err := activeMember(ctx, s.store, familyID, userID); err != nil {
		return nil, err
	}
	if _, err := s.goalInGroup(ctx, familyID, goalID); err != nil {
		return nil, err
	}
	return s.store.ListContributions(ctx, goalID)
}

// DeleteGoal removes a goal without contributions outright; a goal that
// already collected money is archived instead so the audit trail survives.
func (s *GoalService) DeleteGoal(ctx context.Context, userID, familyID, goalID int64) error {
	if _, err := activeAdmin(ctx, s.store, familyID, userID); err != nil {
		return err
	}
	if _, err := s.goalInGroup(ctx, familyID, goalID); err != nil {
		return err
	}
	deleted, err := s.store.DeleteGoal(ctx, goalID)
	if err != nil {
		return err
	}
	if deleted {
		return nil
	}
	return s.store.ArchiveGoal(ctx, goalID)
}

// Contribute debits the source account and appends the contribution. The
// local append is guarded by the goal version read here; losing that race
// credits the debit back and returns a retryable conflict with nothing
// recorded. The completion flip happens inside the guarded update, so
// exactly one contribution observes it and emits the notification.
func (s *GoalService) Contribute(ctx context.Context, userID, familyID, goalID int64, amount core.Money, sourceAccountID int64) (core.Goal, error) {
	member, err := activeMember(ctx, s.store, familyID, userID)
	if err != nil {
		return core.Goal{}, err
	}
	if err := amount.Validate(); err != nil {
		return core.Goal{}, err
	}

	goal, err := s.goalInGroup(ctx, familyID, goalID)
	if err != nil {
		return core.Goal{}, err
	}
	if goal.Status != core.GoalActive {
		return core.Goal{}, core.Conflict("goal is not active", string(goal.Status))
	}

	shared, err := s.store.MemberAccountIDs(ctx, familyID, member.ID)
	if err != nil {
		return core.Goal{}, err
	}
	if !containsID(shared, sourceAccountID) {
		return core.Goal{}, core.Validation("source account is not shared by the contributing member")
	}

	if err := s.ledger.Debit(ctx, sourceAccountID, amount); err != nil {
		if core.KindOf(err) != core.KindUnknown {
			return core.Goal{}, err
		}
		return core.Goal{}, core.Dependency("account ledger debit failed", err)
	}

	updated, completed, err := s.store.AppendContribution(ctx, core.GoalContribution{
		GoalID:          goalID,
		MemberID:        member.ID,
		Amount:          amount,
		SourceAccountID: sourceAccountID,
	}, goal.Version)
	if err != nil {
		s.compensateDebit(ctx, sourceAccountID, amount, goalID)
		return core.Goal{}, err
	}

	if completed {
		s.notes.Emit(ctx, core.Notification{
			FamilyID: familyID,
			Type:     core.NoteGoalCompleted,
			Payload: map[string]any{
				"goal_id":       updated.ID,
				"name":          updated.Name,
				"current_cents": updated.CurrentAmount.Cents,
				"target_cents":  updated.TargetAmount.Cents,
			},
		})
	}
	return updated, nil
}

// compensateDebit returns money taken for a contribution that did not commit.
// A failed compensation is the one state needing manual repair, so it is
// logged at error level with everything an operator needs.
func (s *GoalService) compensateDebit(ctx context.Context, accountID int64, amount core.Money, goalID int64) {
	if err := s.ledger.Credit(ctx, accountID, amount); err != nil {
		slog.ErrorContext(ctx, "Compensating credit failed, account balance needs manual repair",
			"account_id", accountID, "amount_cents", amount.Cents, "goal_id", goalID, "error", err)
	}
}

func (s *GoalService) goalInGroup(ctx context.Context, familyID, goalID int64) (core.Goal, error) {
	g, err := s.store.GoalByID(ctx, goalID)
	if err != nil {
		return core.Goal{}, err
	}
	if g.FamilyID != familyID {
		return core.Goal{}, core.NotFound("goal not found")
	}
	return g, nil
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
