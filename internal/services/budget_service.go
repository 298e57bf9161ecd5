package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"famiglia/internal/core"
)

// Alert kinds recorded per (target, period) for exactly-once notifications.
const (
	alertBudgetApproach = "budget_approach"
	alertBudgetExceeded = "budget_exceeded"
	alertLimitApproach  = "limit_approach"
	alertLimitExceeded  = "limit_exceeded"
)

// BudgetStatus pairs a budget with its derived usage for the current window.
type BudgetStatus struct {
	Budget core.Budget
	Usage  core.UsageSnapshot
}

// LimitStatus pairs a member limit with its derived usage.
type LimitStatus struct {
	Limit core.MemberLimit
	Usage core.UsageSnapshot
}

// BudgetService owns group budgets and per-member spending limits. Spending
// is never stored on either aggregate: it is folded on demand from the
// deduplicated transaction feed, so recomputing is always safe.
type BudgetService struct {
	store BudgetStore
	notes Notifier
	now   func() time.Time
}

func NewBudgetService(store BudgetStore, notes Notifier) *BudgetService {
	return &BudgetService{store: store, notes: notes, now: time.Now}
}

func (s *BudgetService) CreateBudget(ctx context.Context, userID int64, b core.Budget) (core.Budget, error) {
	if _, err := activeAdmin(ctx, s.store, b.FamilyID, userID); err != nil {
		return core.Budget{}, err
	}
	if err := b.Validate(); err != nil {
		return core.Budget{}, err
	}
	return s.store.InsertBudget(ctx, b)
}

func (s *BudgetService) DeleteBudget(ctx context.Context, userID, familyID, budgetID int64) error {
	if _, err := activeAdmin(ctx, s.store, familyID, userID); err != nil {
		return err
	}
	b, err := s.store.BudgetByID(ctx, budgetID)
	if err != nil {
		return err
	}
	if b.FamilyID != familyID {
		return core.NotFound("budget not found")
	}
	return s.store.DeleteBudget(ctx, budgetID)
}

// GetBudgetStatus derives the budget's usage for the window containing now.
// The spent sum covers all family-visible shared accounts.
func (s *BudgetService) GetBudgetStatus(ctx context.Context, userID, familyID, budgetID int64) (BudgetStatus, error) {
	if _, err := activeMember(ctx, s.store, familyID, userID); err != nil {
		return BudgetStatus{}, err
	}
	b, err := s.store.BudgetByID(ctx, budgetID)
	if err != nil {
		return BudgetStatus{}, err
	}
	if b.FamilyID != familyID {
		return BudgetStatus{}, core.NotFound("budget not found")
	}
	return s.budgetStatus(ctx, b)
}

func (s *BudgetService) ListBudgetStatuses(ctx context.Context, userID, familyID int64) ([]BudgetStatus, error) {
	if _, err := activeMember(ctx, s.store, familyID, userID); err != nil {
		return nil, err
	}
	budgets, err := s.store.ListBudgets(ctx, familyID)
	if err != nil {
		return nil, err
	}
	statuses := make([]BudgetStatus, 0, len(budgets))
	for _, b := range budgets {
		st, err := s.budgetStatus(ctx, b)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, st)
	}
	return statuses, nil
}

func (s *BudgetService) CreateMemberLimit(ctx context.Context, userID int64, l core.MemberLimit) (core.MemberLimit, error) {
	if _, err := activeAdmin(ctx, s.store, l.FamilyID, userID); err != nil {
		return core.MemberLimit{}, err
	}
	if err := l.Validate(); err != nil {
		return core.MemberLimit{}, err
	}
	return s.store.InsertMemberLimit(ctx, l)
}

func (s *BudgetService) DeleteMemberLimit(ctx context.Context, userID, familyID, limitID int64) error {
	if _, err := activeAdmin(ctx, s.store, familyID, userID); err != nil {
		return err
	}
	l, err := s.store.MemberLimitByID(ctx, limitID)
	if err != nil {
		return err
	}
	if l.FamilyID != familyID {
		return core.NotFound("member limit not found")
	}
	return s.store.DeleteMemberLimit(ctx, limitID)
}

// GetLimitStatus derives a limit's usage over the member's shared accounts.
// The member themselves and admins may read it.
func (s *BudgetService) GetLimitStatus(ctx context.Context, userID, familyID, limitID int64) (LimitStatus, error) {
	caller, err := activeMember(ctx, s.store, familyID, userID)
	if err != nil {
		return LimitStatus{}, err
	}
	l, err := s.store.MemberLimitByID(ctx, limitID)
	if err != nil {
		return LimitStatus{}, err
	}
	if l.FamilyID != familyID {
		return LimitStatus{}, core.NotFound("member limit not found")
	}
	if caller.ID != l.MemberID && caller.Role != core.RoleAdmin {
		return LimitStatus{}, core.Permission("can only read your own limit")
	}
	return s.limitStatus(ctx, l)
}

// UnlockLimit clears the locked flag. It exists for auto_unlock=false limits,
// which stay locked across period boundaries until an admin intervenes.
func (s *BudgetService) UnlockLimit(ctx context.Context, userID, familyID, limitID int64) error {
	if _, err := activeAdmin(ctx, s.store, familyID, userID); err != nil {
		return err
	}
	l, err := s.store.MemberLimitByID(ctx, limitID)
	if err != nil {
		return err
	}
	if l.FamilyID != familyID {
		return core.NotFound("member limit not found")
	}
	if !l.Locked {
		return core.Conflict("member limit is not locked", "unlocked")
	}
	if err := s.store.SetLimitLocked(ctx, limitID, false, l.Version); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Member limit unlocked", "limit_id", limitID, "family_id", familyID)
	return nil
}

// RecordTransaction ingests one feed event and reconciles every family that
// can see the account. Redelivered events are dropped by the id dedupe, so
// the whole path is idempotent.
func (s *BudgetService) RecordTransaction(ctx context.Context, tx core.Transaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}
	inserted, err := s.store.RecordTransaction(ctx, tx)
	if err != nil {
		return err
	}
	if !inserted {
		slog.DebugContext(ctx, "Duplicate transaction ignored", "transaction_id", tx.ID)
		return nil
	}

	familyIDs, err := s.store.FamiliesSharingAccount(ctx, tx.AccountID)
	if err != nil {
		return fmt.Errorf("resolve families for account %d: %w", tx.AccountID, err)
	}
	for _, familyID := range familyIDs {
		if err := s.Reconcile(ctx, familyID); err != nil {
			slog.ErrorContext(ctx, "Reconcile after transaction failed",
				"family_id", familyID, "transaction_id", tx.ID, "error", err)
		}
	}
	return nil
}

// Reconcile recomputes every budget and limit of the group from the deduped
// transaction set and emits first-crossing threshold notifications. Running
// it any number of times, in any order relative to feed events, converges on
// the same state.
func (s *BudgetService) Reconcile(ctx context.Context, familyID int64) error {
	budgets, err := s.store.ListBudgets(ctx, familyID)
	if err != nil {
		return err
	}
	for _, b := range budgets {
		st, err := s.budgetStatus(ctx, b)
		if err != nil {
			return err
		}
		s.alertBudget(ctx, b, st.Usage)
	}

	limits, err := s.store.ListMemberLimits(ctx, familyID)
	if err != nil {
		return err
	}
	for _, l := range limits {
		st, err := s.limitStatus(ctx, l)
		if err != nil {
			return err
		}
		s.alertLimit(ctx, l, st.Usage)
		if st.Usage.IsExceeded && !l.Locked {
			if err := s.store.SetLimitLocked(ctx, l.ID, true, l.Version); err != nil {
				// A concurrent reconcile already locked it.
				if !core.IsKind(err, core.KindConflict) {
					return err
				}
			}
		}
	}
	return nil
}

func (s *BudgetService) budgetStatus(ctx context.Context, b core.Budget) (BudgetStatus, error) {
	window, err := core.WindowFor(b.Period, b.StartDate, s.now())
	if err != nil {
		return BudgetStatus{}, err
	}
	accountIDs, err := s.store.FamilyAccountIDs(ctx, b.FamilyID)
	if err != nil {
		return BudgetStatus{}, err
	}
	spent, err := s.store.SumTransactions(ctx, accountIDs, b.CategoryID, window)
	if err != nil {
		return BudgetStatus{}, err
	}
	return BudgetStatus{Budget: b, Usage: core.ComputeUsage(b.Amount, spent, window)}, nil
}

func (s *BudgetService) limitStatus(ctx context.Context, l core.MemberLimit) (LimitStatus, error) {
	window, err := core.WindowFor(l.Period, l.StartDate, s.now())
	if err != nil {
		return LimitStatus{}, err
	}
	accountIDs, err := s.store.MemberAccountIDs(ctx, l.FamilyID, l.MemberID)
	if err != nil {
		return LimitStatus{}, err
	}
	spent, err := s.store.SumTransactions(ctx, accountIDs, l.CategoryID, window)
	if err != nil {
		return LimitStatus{}, err
	}
	return LimitStatus{Limit: l, Usage: core.ComputeUsage(l.Amount, spent, window)}, nil
}

// alertBudget emits at most one approach and one exceeded notification per
// budget per period window, whichever reconcile observes the crossing first.
func (s *BudgetService) alertBudget(ctx context.Context, b core.Budget, u core.UsageSnapshot) {
	if u.IsExceeded {
		s.alertOnce(ctx, alertBudgetExceeded, b.ID, u.Window.Key, core.Notification{
			FamilyID: b.FamilyID,
			Type:     core.NoteBudgetExceeded,
			Payload:  budgetPayload(b, u),
		})
		return
	}
	if u.IsWarning {
		s.alertOnce(ctx, alertBudgetApproach, b.ID, u.Window.Key, core.Notification{
			FamilyID: b.FamilyID,
			Type:     core.NoteBudgetApproach,
			Payload:  budgetPayload(b, u),
		})
	}
}

func (s *BudgetService) alertLimit(ctx context.Context, l core.MemberLimit, u core.UsageSnapshot) {
	if u.IsExceeded {
		s.alertOnce(ctx, alertLimitExceeded, l.ID, u.Window.Key, core.Notification{
			FamilyID: l.FamilyID,
			MemberID: l.MemberID,
			Type:     core.NoteLimitExceeded,
			Payload:  limitPayload(l, u),
		})
		return
	}
	if u.IsWarning {
		s.alertOnce(ctx, alertLimitApproach, l.ID, u.Window.Key, core.Notification{
			FamilyID: l.FamilyID,
			MemberID: l.MemberID,
			Type:     core.NoteLimitApproach,
			Payload:  limitPayload(l, u),
		})
	}
}

func (s *BudgetService) alertOnce(ctx context.Context, kind string, targetID int64, periodKey string, n core.Notification) {
	first, err := s.store.MarkUsageAlert(ctx, kind, targetID, periodKey)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to mark usage alert",
			"kind", kind, "target_id", targetID, "period_key", periodKey, "error", err)
		return
	}
	if first {
		s.notes.Emit(ctx, n)
	}
}

func budgetPayload(b core.Budget, u core.UsageSnapshot) map[string]any {
	return map[string]any{
		"budget_id":   b.ID,
		"name":        b.Name,
		"spent_cents": u.Spent.Cents,
		"spent_euros": u.Spent.Euros(),
		"limit_cents": u.Limit.Cents,
		"percentage":  u.Percentage,
		"period_key":  u.Window.Key,
	}
}

func limitPayload(l core.MemberLimit, u core.UsageSnapshot) map[string]any {
	return map[string]any{
		"limit_id":    l.ID,
		"member_id":   l.MemberID,
		"spent_cents": u.Spent.Cents,
		"spent_euros": u.Spent.Euros(),
		"limit_cents": u.Limit.Cents,
		"percentage":  u.Percentage,
		"period_key":  u.Window.Key,
	}
}
