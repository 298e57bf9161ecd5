package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"famiglia/internal/core"
	"famiglia/internal/services"
)

// Wire representations. Core types stay free of serialization concerns; the
// boundary owns the field names clients see.
type (
	groupJSON struct {
		ID          int64     `json:"id"`
		Name        string    `json:"name"`
		Description string    `json:"description,omitempty"`
		InviteCode  string    `json:"invite_code"`
		CreatedBy   int64     `json:"created_by_user_id"`
		CreatedAt   time.Time `json:"created_at"`
		UpdatedAt   time.Time `json:"updated_at"`
	}

	memberJSON struct {
		ID        int64     `json:"id"`
		FamilyID  int64     `json:"family_id"`
		UserID    int64     `json:"user_id"`
		Role      string    `json:"role"`
		Status    string    `json:"status"`
		CreatedAt time.Time `json:"created_at"`
		UpdatedAt time.Time `json:"updated_at"`
	}

	sharedAccountJSON struct {
		FamilyID   int64     `json:"family_id"`
		MemberID   int64     `json:"member_id"`
		AccountID  int64     `json:"account_id"`
		Visibility string    `json:"visibility"`
		CreatedAt  time.Time `json:"created_at"`
	}

	usageJSON struct {
		LimitCents     int64     `json:"limit_cents"`
		SpentCents     int64     `json:"spent_cents"`
		RemainingCents int64     `json:"remaining_cents"`
		Percentage     float64   `json:"percentage"`
		IsWarning      bool      `json:"is_warning"`
		IsExceeded     bool      `json:"is_exceeded"`
		PeriodStart    time.Time `json:"period_start"`
		PeriodEnd      time.Time `json:"period_end"`
		PeriodKey      string    `json:"period_key"`
	}

	budgetJSON struct {
		ID          int64     `json:"id"`
		FamilyID    int64     `json:"family_id"`
		CategoryID  int64     `json:"category_id,omitempty"`
		Name        string    `json:"name"`
		AmountCents int64     `json:"amount_cents"`
		Period      string    `json:"period"`
		StartDate   time.Time `json:"start_date"`
		Version     int64     `json:"version"`
		CreatedAt   time.Time `json:"created_at"`
	}

	budgetStatusJSON struct {
		Budget budgetJSON `json:"budget"`
		Usage  usageJSON  `json:"usage"`
	}

	limitJSON struct {
		ID          int64     `json:"id"`
		FamilyID    int64     `json:"family_id"`
		MemberID    int64     `json:"member_id"`
		CategoryID  int64     `json:"category_id,omitempty"`
		AmountCents int64     `json:"amount_cents"`
		Period      string    `json:"period"`
		StartDate   time.Time `json:"start_date"`
		AutoUnlock  bool      `json:"auto_unlock"`
		Locked      bool      `json:"locked"`
		Version     int64     `json:"version"`
		CreatedAt   time.Time `json:"created_at"`
	}

	limitStatusJSON struct {
		Limit limitJSON `json:"limit"`
		Usage usageJSON `json:"usage"`
	}

	goalJSON struct {
		ID           int64      `json:"id"`
		FamilyID     int64      `json:"family_id"`
		Name         string     `json:"name"`
		Description  string     `json:"description,omitempty"`
		TargetCents  int64      `json:"target_cents"`
		CurrentCents int64      `json:"current_cents"`
		Deadline     *time.Time `json:"deadline,omitempty"`
		Status       string     `json:"status"`
		Version      int64      `json:"version"`
		CreatedAt    time.Time  `json:"created_at"`
		UpdatedAt    time.Time  `json:"updated_at"`
	}

	contributionJSON struct {
		ID              int64     `json:"id"`
		GoalID          int64     `json:"goal_id"`
		MemberID        int64     `json:"member_id"`
		AmountCents     int64     `json:"amount_cents"`
		SourceAccountID int64     `json:"source_account_id"`
		CreatedAt       time.Time `json:"created_at"`
	}

	recipientJSON struct {
		Kind      string `json:"kind"`
		MemberID  int64  `json:"member_id,omitempty"`
		AccountID int64  `json:"account_id,omitempty"`
	}

	transferJSON struct {
		ID            int64         `json:"id"`
		FamilyID      int64         `json:"family_id"`
		FromMemberID  int64         `json:"from_member_id"`
		Recipient     recipientJSON `json:"recipient"`
		FromAccountID int64         `json:"from_account_id"`
		AmountCents   int64         `json:"amount_cents"`
		Description   string        `json:"description,omitempty"`
		Status        string        `json:"status"`
		ApprovedBy    int64         `json:"approved_by,omitempty"`
		ExecutedAt    *time.Time    `json:"executed_at,omitempty"`
		Version       int64         `json:"version"`
		CreatedAt     time.Time     `json:"created_at"`
	}

	notificationJSON struct {
		ID        int64          `json:"id"`
		FamilyID  int64          `json:"family_id"`
		MemberID  int64          `json:"member_id,omitempty"`
		Type      string         `json:"type"`
		Payload   map[string]any `json:"payload,omitempty"`
		Read      bool           `json:"read"`
		CreatedAt time.Time      `json:"created_at"`
	}

	errorJSON struct {
		Error string `json:"error"`
		State string `json:"state,omitempty"`
	}
)

func toGroupJSON(g core.FamilyGroup) groupJSON {
	return groupJSON{
		ID:          g.ID,
		Name:        g.Name,
		Description: g.Description,
		InviteCode:  g.InviteCode,
		CreatedBy:   g.CreatedByUserID,
		CreatedAt:   g.CreatedAt,
		UpdatedAt:   g.UpdatedAt,
	}
}

func toMemberJSON(m core.Member) memberJSON {
	return memberJSON{
		ID:        m.ID,
		FamilyID:  m.FamilyID,
		UserID:    m.UserID,
		Role:      string(m.Role),
		Status:    string(m.Status),
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func toMemberListJSON(members []core.Member) []memberJSON {
	out := make([]memberJSON, 0, len(members))
	for _, m := range members {
		out = append(out, toMemberJSON(m))
	}
	return out
}

func toSharedAccountJSON(a core.SharedAccount) sharedAccountJSON {
	return sharedAccountJSON{
		FamilyID:   a.FamilyID,
		MemberID:   a.MemberID,
		AccountID:  a.AccountID,
		Visibility: string(a.Visibility),
		CreatedAt:  a.CreatedAt,
	}
}

func toUsageJSON(u core.UsageSnapshot) usageJSON {
	return usageJSON{
		LimitCents:     u.Limit.Cents,
		SpentCents:     u.Spent.Cents,
		RemainingCents: u.Remaining.Cents,
		Percentage:     u.Percentage,
		IsWarning:      u.IsWarning,
		IsExceeded:     u.IsExceeded,
		PeriodStart:    u.Window.Start,
		PeriodEnd:      u.Window.End,
		PeriodKey:      u.Window.Key,
	}
}

func toBudgetJSON(b core.Budget) budgetJSON {
	return budgetJSON{
		ID:          b.ID,
		FamilyID:    b.FamilyID,
		CategoryID:  b.CategoryID,
		Name:        b.Name,
		AmountCents: b.Amount.Cents,
		Period:      string(b.Period),
		StartDate:   b.StartDate,
		Version:     b.Version,
		CreatedAt:   b.CreatedAt,
	}
}

func toBudgetStatusJSON(s services.BudgetStatus) budgetStatusJSON {
	return budgetStatusJSON{Budget: toBudgetJSON(s.Budget), Usage: toUsageJSON(s.Usage)}
}

func toBudgetStatusListJSON(statuses []services.BudgetStatus) []budgetStatusJSON {
	out := make([]budgetStatusJSON, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, toBudgetStatusJSON(s))
	}
	return out
}

func toLimitJSON(l core.MemberLimit) limitJSON {
	return limitJSON{
		ID:          l.ID,
		FamilyID:    l.FamilyID,
		MemberID:    l.MemberID,
		CategoryID:  l.CategoryID,
		AmountCents: l.Amount.Cents,
		Period:      string(l.Period),
		StartDate:   l.StartDate,
		AutoUnlock:  l.AutoUnlock,
		Locked:      l.Locked,
		Version:     l.Version,
		CreatedAt:   l.CreatedAt,
	}
}

func toLimitStatusJSON(s services.LimitStatus) limitStatusJSON {
	return limitStatusJSON{Limit: toLimitJSON(s.Limit), Usage: toUsageJSON(s.Usage)}
}

func toGoalJSON(g core.Goal) goalJSON {
	out := goalJSON{
		ID:           g.ID,
		FamilyID:     g.FamilyID,
		Name:         g.Name,
		Description:  g.Description,
		TargetCents:  g.TargetAmount.Cents,
		CurrentCents: g.CurrentAmount.Cents,
		Status:       string(g.Status),
		Version:      g.Version,
		CreatedAt:    g.CreatedAt,
		UpdatedAt:    g.UpdatedAt,
	}
	if !g.Deadline.IsZero() {
		deadline := g.Deadline
		out.Deadline = &deadline
	}
	return out
}

func toContributionJSON(c core.GoalContribution) contributionJSON {
	return contributionJSON{
		ID:              c.ID,
		GoalID:          c.GoalID,
		MemberID:        c.MemberID,
		AmountCents:     c.Amount.Cents,
		SourceAccountID: c.SourceAccountID,
		CreatedAt:       c.CreatedAt,
	}
}

func toTransferJSON(t core.Transfer) transferJSON {
	out := transferJSON{
		ID:           t.ID,
		FamilyID:     t.FamilyID,
		FromMemberID: t.FromMemberID,
		Recipient: recipientJSON{
			Kind:      string(t.Recipient.Kind),
			MemberID:  t.Recipient.MemberID,
			AccountID: t.Recipient.AccountID,
		},
		FromAccountID: t.FromAccountID,
		AmountCents:   t.Amount.Cents,
		Description:   t.Description,
		Status:        string(t.Status),
		ApprovedBy:    t.ApprovedBy,
		Version:       t.Version,
		CreatedAt:     t.CreatedAt,
	}
	if !t.ExecutedAt.IsZero() {
		executedAt := t.ExecutedAt
		out.ExecutedAt = &executedAt
	}
	return out
}

func toNotificationJSON(n core.Notification) notificationJSON {
	return notificationJSON{
		ID:        n.ID,
		FamilyID:  n.FamilyID,
		MemberID:  n.MemberID,
		Type:      n.Type,
		Payload:   n.Payload,
		Read:      n.Read,
		CreatedAt: n.CreatedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeError maps a domain error to an HTTP status. Conflict responses carry
// the aggregate's current state so the client can resynchronize.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch core.KindOf(err) {
	case core.KindValidation:
		status = http.StatusUnprocessableEntity
	case core.KindPermission:
		status = http.StatusForbidden
	case core.KindNotFound:
		status = http.StatusNotFound
	case core.KindConflict:
		status = http.StatusConflict
	case core.KindDependency:
		status = http.StatusBadGateway
	}

	body := errorJSON{Error: "internal error"}
	var derr *core.Error
	if errors.As(err, &derr) {
		body.Error = derr.Message
		body.State = derr.State
	}

	if status >= 500 {
		slog.ErrorContext(r.Context(), "Request failed", "error", err, "path", r.URL.Path, "status", status)
	}

	writeJSON(w, status, body)
}
