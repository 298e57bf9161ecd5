package core

import (
	"strings"
	"time"
)

const (
	Weekly  Period = "weekly"
	Monthly Period = "monthly"
)

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

const (
	MemberPending MemberStatus = "pending"
	MemberActive  MemberStatus = "active"
	MemberBlocked MemberStatus = "blocked"
)

const (
	VisibilityFamily  Visibility = "FAMILY"
	VisibilityPrivate Visibility = "PRIVATE"
)

const (
	GoalActive    GoalStatus = "active"
	GoalCompleted GoalStatus = "completed"
	GoalArchived  GoalStatus = "archived"
)

const (
	TransferPending  TransferStatus = "pending"
	TransferApproved TransferStatus = "approved"
	TransferRejected TransferStatus = "rejected"
	TransferExecuted TransferStatus = "executed"
)

type (
	Period         string
	Role           string
	MemberStatus   string
	Visibility     string
	GoalStatus     string
	TransferStatus string

	Money struct {
		Cents int64
	}

	// FamilyGroup is the tenant boundary for all coordination state.
	// Exactly one invite code is valid at any time; rotation replaces it atomically.
	FamilyGroup struct {
		ID              int64
		Name            string
		Description     string
		InviteCode      string
		CreatedByUserID int64
		CreatedAt       time.Time
		UpdatedAt       time.Time
	}

	// Member ties a user to a family group. A user has at most one member row
	// per group; blocked members keep their financial history.
	Member struct {
		ID        int64
		FamilyID  int64
		UserID    int64
		Role      Role
		Status    MemberStatus
		CreatedAt time.Time
		UpdatedAt time.Time
	}

	// SharedAccount exposes a member's personal account to the group without
	// transferring ownership. Removing it only revokes visibility.
	SharedAccount struct {
		FamilyID   int64
		MemberID   int64
		AccountID  int64
		Visibility Visibility
		CreatedAt  time.Time
	}

	// Budget is a group-level spending envelope over a rolling period,
	// optionally restricted to a category (CategoryID 0 = all categories).
	Budget struct {
		ID         int64
		FamilyID   int64
		CategoryID int64
		Name       string
		Amount     Money
		Period     Period
		StartDate  time.Time
		Version    int64
		CreatedAt  time.Time
	}

	// MemberLimit caps a single member's spending per period. When AutoUnlock
	// is false an exceeded limit latches Locked until an admin clears it.
	MemberLimit struct {
		ID         int64
		FamilyID   int64
		MemberID   int64
		CategoryID int64
		Amount     Money
		Period     Period
		StartDate  time.Time
		AutoUnlock bool
		Locked     bool
		Version    int64
		CreatedAt  time.Time
	}

	// Goal is a collective savings target. CurrentAmount only grows through
	// recorded contributions and the status flips to completed exactly once.
	Goal struct {
		ID            int64
		FamilyID      int64
		Name          string
		Description   string
		TargetAmount  Money
		CurrentAmount Money
		Deadline      time.Time
		Status        GoalStatus
		Version       int64
		CreatedAt     time.Time
		UpdatedAt     time.Time
	}

	// GoalContribution is an append-only audit record. The source account id
	// stays valid even if the account is later unshared.
	GoalContribution struct {
		ID              int64
		GoalID          int64
		MemberID        int64
		Amount          Money
		SourceAccountID int64
		CreatedAt       time.Time
	}

	// Transfer is a money movement request subject to admin approval.
	// Status moves one way: pending -> approved -> executed, or pending -> rejected.
	Transfer struct {
		ID            int64
		FamilyID      int64
		FromMemberID  int64
		Recipient     Recipient
		FromAccountID int64
		Amount        Money
		Description   string
		Status        TransferStatus
		ApprovedBy    int64
		ExecutedAt    time.Time
		Version       int64
		CreatedAt     time.Time
	}

	// Notification is an append-only event for member-facing delivery.
	// MemberID 0 means broadcast to all active members of the group.
	Notification struct {
		ID        int64
		FamilyID  int64
		MemberID  int64
		Type      string
		Payload   map[string]any
		Read      bool
		CreatedAt time.Time
	}

	// Transaction is one deduplicated event from the external transaction feed.
	// Expenses carry positive amounts.
	Transaction struct {
		ID         string
		AccountID  int64
		Amount     Money
		CategoryID int64
		OccurredAt time.Time
	}
)

// Notification types emitted by the coordination core.
const (
	NoteMemberJoined     = "member_joined"
	NoteMemberApproved   = "member_approved"
	NoteMemberBlocked    = "member_blocked"
	NoteBudgetApproach   = "budget_approach"
	NoteBudgetExceeded   = "budget_exceeded"
	NoteLimitApproach    = "limit_approach"
	NoteLimitExceeded    = "limit_exceeded"
	NoteGoalCompleted    = "goal_completed"
	NoteTransferRequest  = "transfer_requested"
	NoteTransferExecuted = "transfer_executed"
	NoteTransferRejected = "transfer_rejected"
	NoteTransferFailed   = "transfer_failed"
)

func (p Period) Valid() bool {
	return p == Weekly || p == Monthly
}

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleMember
}

func (v Visibility) Valid() bool {
	return v == VisibilityFamily || v == VisibilityPrivate
}

// Terminal reports whether a transfer status admits no further transitions.
func (s TransferStatus) Terminal() bool {
	return s == TransferExecuted || s == TransferRejected
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return Validation("amount must be positive")
	}
	if m.Cents > MaxAmountCents {
		return Validation("amount exceeds maximum")
	}
	return nil
}

func (g FamilyGroup) Validate() error {
	if strings.TrimSpace(g.Name) == "" {
		return Validation("group name is required")
	}
	if len(g.Name) > 100 {
		return Validation("group name too long (max 100 characters)")
	}
	if len(g.Description) > 500 {
		return Validation("group description too long (max 500 characters)")
	}
	return nil
}

func (b Budget) Validate() error {
	if strings.TrimSpace(b.Name) == "" {
		return Validation("budget name is required")
	}
	if len(b.Name) > 100 {
		return Validation("budget name too long (max 100 characters)")
	}
	if err := b.Amount.Validate(); err != nil {
		return err
	}
	if !b.Period.Valid() {
		return Validation("period must be weekly or monthly")
	}
	if b.StartDate.IsZero() {
		return Validation("start date is required")
	}
	return nil
}

func (l MemberLimit) Validate() error {
	if l.MemberID == 0 {
		return Validation("member id is required")
	}
	if err := l.Amount.Validate(); err != nil {
		return err
	}
	if !l.Period.Valid() {
		return Validation("period must be weekly or monthly")
	}
	if l.StartDate.IsZero() {
		return Validation("start date is required")
	}
	return nil
}

func (g Goal) Validate() error {
	if strings.TrimSpace(g.Name) == "" {
		return Validation("goal name is required")
	}
	if len(g.Name) > 100 {
		return Validation("goal name too long (max 100 characters)")
	}
	if len(g.Description) > 500 {
		return Validation("goal description too long (max 500 characters)")
	}
	return g.TargetAmount.Validate()
}

func (t Transfer) Validate() error {
	if t.FromMemberID == 0 {
		return Validation("sender member id is required")
	}
	if err := t.Recipient.Validate(); err != nil {
		return err
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if len(t.Description) > 200 {
		return Validation("description too long (max 200 characters)")
	}
	return nil
}

func (tx Transaction) Validate() error {
	if strings.TrimSpace(tx.ID) == "" {
		return Validation("transaction id is required")
	}
	if tx.AccountID == 0 {
		return Validation("account id is required")
	}
	if tx.OccurredAt.IsZero() {
		return Validation("transaction timestamp is required")
	}
	return nil
}
