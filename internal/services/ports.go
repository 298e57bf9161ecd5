package services

import (
	"context"

	"famiglia/internal/core"
)

// MemberResolver maps a calling user to their membership in a group. Every
// service authorizes through it at the operation boundary.
type MemberResolver interface {
	MemberByUser(ctx context.Context, familyID, userID int64) (core.Member, error)
}

// MembershipStore is the persistence surface of the membership registry.
type MembershipStore interface {
	MemberResolver
	CreateGroup(ctx context.Context, g core.FamilyGroup) (core.FamilyGroup, core.Member, error)
	GroupByID(ctx context.Context, id int64) (core.FamilyGroup, error)
	GroupByInviteCode(ctx context.Context, code string) (core.FamilyGroup, error)
	UpdateInviteCode(ctx context.Context, groupID int64, newCode string) error
	InsertMemberByInvite(ctx context.Context, code string, m core.Member) (core.Member, error)
	MemberByID(ctx context.Context, id int64) (core.Member, error)
	UpdateMemberStatus(ctx context.Context, memberID int64, from, to core.MemberStatus) (core.Member, error)
	BlockAdmin(ctx context.Context, familyID, memberID int64) (core.Member, error)
	DeleteMember(ctx context.Context, memberID int64, status core.MemberStatus) error
	ListMembers(ctx context.Context, familyID int64) ([]core.Member, error)
	ActiveAdmins(ctx context.Context, familyID int64) ([]core.Member, error)
}

// SharedAccountStore is the persistence surface of the shared-account registry.
type SharedAccountStore interface {
	MemberResolver
	MemberByID(ctx context.Context, id int64) (core.Member, error)
	ReplaceSharedAccounts(ctx context.Context, familyID, memberID int64, accountIDs []int64) error
	AddSharedAccounts(ctx context.Context, familyID, memberID int64, accountIDs []int64) error
	RemoveSharedAccount(ctx context.Context, familyID, memberID, accountID int64) error
	ListSharedAccounts(ctx context.Context, familyID int64) ([]core.SharedAccount, error)
}

// BudgetStore is the persistence surface of the budget and limit engine,
// including the deduplicated transaction fold.
type BudgetStore interface {
	MemberResolver
	InsertBudget(ctx context.Context, b core.Budget) (core.Budget, error)
	DeleteBudget(ctx context.Context, id int64) error
	BudgetByID(ctx context.Context, id int64) (core.Budget, error)
	ListBudgets(ctx context.Context, familyID int64) ([]core.Budget, error)
	InsertMemberLimit(ctx context.Context, l core.MemberLimit) (core.MemberLimit, error)
	DeleteMemberLimit(ctx context.Context, id int64) error
	MemberLimitByID(ctx context.Context, id int64) (core.MemberLimit, error)
	ListMemberLimits(ctx context.Context, familyID int64) ([]core.MemberLimit, error)
	SetLimitLocked(ctx context.Context, limitID int64, locked bool, version int64) error
	RecordTransaction(ctx context.Context, tx core.Transaction) (bool, error)
	SumTransactions(ctx context.Context, accountIDs []int64, categoryID int64, window core.PeriodWindow) (core.Money, error)
	MarkUsageAlert(ctx context.Context, kind string, targetID int64, periodKey string) (bool, error)
	MemberAccountIDs(ctx context.Context, familyID, memberID int64) ([]int64, error)
	FamilyAccountIDs(ctx context.Context, familyID int64) ([]int64, error)
	FamiliesSharingAccount(ctx context.Context, accountID int64) ([]int64, error)
}

// SweeperStore is what the period-boundary sweep needs to unlock limits.
type SweeperStore interface {
	ListLockedAutoUnlockLimits(ctx context.Context) ([]core.MemberLimit, error)
	SetLimitLocked(ctx context.Context, limitID int64, locked bool, version int64) error
	SumTransactions(ctx context.Context, accountIDs []int64, categoryID int64, window core.PeriodWindow) (core.Money, error)
	MemberAccountIDs(ctx context.Context, familyID, memberID int64) ([]int64, error)
}

// GoalStore is the persistence surface of the goal ledger.
type GoalStore interface {
	MemberResolver
	InsertGoal(ctx context.Context, g core.Goal) (core.Goal, error)
	GoalByID(ctx context.Context, id int64) (core.Goal, error)
	ListGoals(ctx context.Context, familyID int64) ([]core.Goal, error)
	DeleteGoal(ctx context.Context, goalID int64) (bool, error)
	ArchiveGoal(ctx context.Context, goalID int64) error
	AppendContribution(ctx context.Context, c core.GoalContribution, goalVersion int64) (core.Goal, bool, error)
	ListContributions(ctx context.Context, goalID int64) ([]core.GoalContribution, error)
	MemberAccountIDs(ctx context.Context, familyID, memberID int64) ([]int64, error)
}

// TransferStore is the persistence surface of the transfer workflow.
type TransferStore interface {
	MemberResolver
	MemberByID(ctx context.Context, id int64) (core.Member, error)
	ActiveAdmins(ctx context.Context, familyID int64) ([]core.Member, error)
	InsertTransfer(ctx context.Context, t core.Transfer) (core.Transfer, error)
	TransferByID(ctx context.Context, id int64) (core.Transfer, error)
	ListTransfers(ctx context.Context, familyID int64, status core.TransferStatus) ([]core.Transfer, error)
	TransitionTransfer(ctx context.Context, id int64, from, to core.TransferStatus, approvedBy int64) error
	MemberAccountIDs(ctx context.Context, familyID, memberID int64) ([]int64, error)
	FamilyAccountIDs(ctx context.Context, familyID int64) ([]int64, error)
}

// NotificationStore is the append-only notification log.
type NotificationStore interface {
	MemberResolver
	InsertNotification(ctx context.Context, n core.Notification) (core.Notification, error)
	ListNotifications(ctx context.Context, familyID, memberID int64, limit int) ([]core.Notification, error)
	MarkNotificationRead(ctx context.Context, id, memberID int64) error
}

// Notifier delivers domain events to members. Implementations must never let
// delivery problems surface into the operation that emitted the event.
type Notifier interface {
	Emit(ctx context.Context, n core.Notification)
}

// EventPublisher pushes notification events to the message broker for
// external delivery channels.
type EventPublisher interface {
	PublishNotification(ctx context.Context, n core.Notification) error
}
