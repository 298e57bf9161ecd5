package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"famiglia/internal/core"
	"famiglia/internal/ledger"
)

// seedFamily creates a group with an active admin (user 1) and an active
// regular member (user 2).
func seedFamily(t *testing.T, store *fakeStore) (core.FamilyGroup, core.Member, core.Member) {
	t.Helper()
	ctx := context.Background()

	group, admin, err := store.CreateGroup(ctx, core.FamilyGroup{
		Name:            "Rossi",
		InviteCode:      "ABCD1234",
		CreatedByUserID: 1,
	})
	if err != nil {
		t.Fatalf("seed group: %v", err)
	}
	member, err := store.InsertMember(ctx, core.Member{
		FamilyID: group.ID,
		UserID:   2,
		Role:     core.RoleMember,
		Status:   core.MemberActive,
	})
	if err != nil {
		t.Fatalf("seed member: %v", err)
	}
	return group, admin, member
}

func assertKind(t *testing.T, err error, want core.Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error of kind %v, got nil", want)
	}
	if got := core.KindOf(err); got != want {
		t.Fatalf("expected error kind %v, got %v (%v)", want, got, err)
	}
}

// fakeStore is an in-memory implementation of the storage ports with the
// same guarded-update semantics as the SQLite repository.
type fakeStore struct {
	mu        sync.Mutex
	groups    map[int64]core.FamilyGroup
	members   map[int64]core.Member
	shared    map[string]core.SharedAccount
	budgets   map[int64]core.Budget
	limits    map[int64]core.MemberLimit
	goals     map[int64]core.Goal
	contribs  []core.GoalContribution
	transfers map[int64]core.Transfer
	notes     []core.Notification
	txns      map[string]core.Transaction
	alerts    map[string]bool
	nextID    int64

	// contributionHook runs inside AppendContribution before the version
	// check, letting tests interleave a concurrent writer.
	contributionHook func()

	// joinHook runs inside InsertMemberByInvite before the code
	// revalidation, letting tests interleave an invite rotation.
	joinHook func()

	// blockHook runs inside BlockAdmin before the last-admin guard,
	// letting tests interleave a concurrent block.
	blockHook func()
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		groups:    make(map[int64]core.FamilyGroup),
		members:   make(map[int64]core.Member),
		shared:    make(map[string]core.SharedAccount),
		budgets:   make(map[int64]core.Budget),
		limits:    make(map[int64]core.MemberLimit),
		goals:     make(map[int64]core.Goal),
		transfers: make(map[int64]core.Transfer),
		txns:      make(map[string]core.Transaction),
		alerts:    make(map[string]bool),
	}
}

func (f *fakeStore) id() int64 {
	f.nextID++
	return f.nextID
}

func sharedKey(familyID, accountID int64) string {
	return fmt.Sprintf("%d/%d", familyID, accountID)
}

func (f *fakeStore) CreateGroup(_ context.Context, g core.FamilyGroup) (core.FamilyGroup, core.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, other := range f.groups {
		if other.InviteCode == g.InviteCode {
			return core.FamilyGroup{}, core.Member{}, core.Conflict("invite code already in use", "")
		}
	}
	g.ID = f.id()
	f.groups[g.ID] = g
	m := core.Member{
		ID:       f.id(),
		FamilyID: g.ID,
		UserID:   g.CreatedByUserID,
		Role:     core.RoleAdmin,
		Status:   core.MemberActive,
	}
	f.members[m.ID] = m
	return g, m, nil
}

func (f *fakeStore) GroupByID(_ context.Context, id int64) (core.FamilyGroup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.groups[id]
	if !ok {
		return core.FamilyGroup{}, core.NotFound("family group not found")
	}
	return g, nil
}

func (f *fakeStore) GroupByInviteCode(_ context.Context, code string) (core.FamilyGroup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, g := range f.groups {
		if g.InviteCode == code {
			return g, nil
		}
	}
	return core.FamilyGroup{}, core.NotFound("family group not found")
}

func (f *fakeStore) UpdateInviteCode(_ context.Context, groupID int64, newCode string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.groups[groupID]
	if !ok {
		return core.NotFound("family group not found")
	}
	g.InviteCode = newCode
	f.groups[groupID] = g
	return nil
}

// InsertMember seeds a membership row directly, without an invite code.
func (f *fakeStore) InsertMember(_ context.Context, m core.Member) (core.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.insertMemberLocked(m)
}

func (f *fakeStore) InsertMemberByInvite(_ context.Context, code string, m core.Member) (core.Member, error) {
	if f.joinHook != nil {
		f.joinHook()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.groups[m.FamilyID]
	if !ok || g.InviteCode != code {
		return core.Member{}, core.NotFound("invalid invite code")
	}
	return f.insertMemberLocked(m)
}

func (f *fakeStore) insertMemberLocked(m core.Member) (core.Member, error) {
	for _, other := range f.members {
		if other.FamilyID == m.FamilyID && other.UserID == m.UserID {
			return core.Member{}, core.Conflict("user already has a membership in this group", "")
		}
	}
	m.ID = f.id()
	f.members[m.ID] = m
	return m, nil
}

func (f *fakeStore) MemberByID(_ context.Context, id int64) (core.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.members[id]
	if !ok {
		return core.Member{}, core.NotFound("member not found")
	}
	return m, nil
}

func (f *fakeStore) MemberByUser(_ context.Context, familyID, userID int64) (core.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.members {
		if m.FamilyID == familyID && m.UserID == userID {
			return m, nil
		}
	}
	return core.Member{}, core.NotFound("member not found")
}

func (f *fakeStore) UpdateMemberStatus(_ context.Context, memberID int64, from, to core.MemberStatus) (core.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.members[memberID]
	if !ok {
		return core.Member{}, core.NotFound("member not found")
	}
	if m.Status != from {
		return core.Member{}, core.Conflict(fmt.Sprintf("member is not %s", from), string(m.Status))
	}
	m.Status = to
	f.members[memberID] = m
	return m, nil
}

func (f *fakeStore) BlockAdmin(_ context.Context, familyID, memberID int64) (core.Member, error) {
	if f.blockHook != nil {
		f.blockHook()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.members[memberID]
	if !ok {
		return core.Member{}, core.NotFound("member not found")
	}
	if m.Status != core.MemberActive {
		return core.Member{}, core.Conflict(fmt.Sprintf("member is not %s", core.MemberActive), string(m.Status))
	}
	remaining := false
	for _, other := range f.members {
		if other.ID != memberID && other.FamilyID == familyID &&
			other.Role == core.RoleAdmin && other.Status == core.MemberActive {
			remaining = true
			break
		}
	}
	if !remaining {
		return core.Member{}, core.Conflict("cannot block the only active admin", string(m.Status))
	}
	m.Status = core.MemberBlocked
	f.members[memberID] = m
	return m, nil
}

func (f *fakeStore) DeleteMember(_ context.Context, memberID int64, status core.MemberStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.members[memberID]
	if !ok {
		return core.NotFound("member not found")
	}
	if m.Status != status {
		return core.Conflict(fmt.Sprintf("member is not %s", status), string(m.Status))
	}
	delete(f.members, memberID)
	return nil
}

func (f *fakeStore) ListMembers(_ context.Context, familyID int64) ([]core.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []core.Member
	for _, m := range f.members {
		if m.FamilyID == familyID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) ActiveAdmins(_ context.Context, familyID int64) ([]core.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []core.Member
	for _, m := range f.members {
		if m.FamilyID == familyID && m.Role == core.RoleAdmin && m.Status == core.MemberActive {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) ReplaceSharedAccounts(_ context.Context, familyID, memberID int64, accountIDs []int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k, sa := range f.shared {
		if sa.FamilyID == familyID && sa.MemberID == memberID {
			delete(f.shared, k)
		}
	}
	return f.addSharedLocked(familyID, memberID, accountIDs)
}

func (f *fakeStore) AddSharedAccounts(_ context.Context, familyID, memberID int64, accountIDs []int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addSharedLocked(familyID, memberID, accountIDs)
}

func (f *fakeStore) addSharedLocked(familyID, memberID int64, accountIDs []int64) error {
	for _, id := range accountIDs {
		if sa, ok := f.shared[sharedKey(familyID, id)]; ok {
			if sa.MemberID != memberID {
				return core.Conflict("account already shared by another member", "")
			}
			continue
		}
		f.shared[sharedKey(familyID, id)] = core.SharedAccount{
			FamilyID:   familyID,
			MemberID:   memberID,
			AccountID:  id,
			Visibility: core.VisibilityFamily,
		}
	}
	return nil
}

func (f *fakeStore) RemoveSharedAccount(_ context.Context, familyID, memberID, accountID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	sa, ok := f.shared[sharedKey(familyID, accountID)]
	if !ok || sa.MemberID != memberID {
		return core.NotFound("shared account not found")
	}
	delete(f.shared, sharedKey(familyID, accountID))
	return nil
}

func (f *fakeStore) ListSharedAccounts(_ context.Context, familyID int64) ([]core.SharedAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []core.SharedAccount
	for _, sa := range f.shared {
		if sa.FamilyID == familyID {
			out = append(out, sa)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out, nil
}

func (f *fakeStore) MemberAccountIDs(_ context.Context, familyID, memberID int64) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []int64
	for _, sa := range f.shared {
		if sa.FamilyID == familyID && sa.MemberID == memberID {
			out = append(out, sa.AccountID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (f *fakeStore) FamilyAccountIDs(_ context.Context, familyID int64) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []int64
	for _, sa := range f.shared {
		if sa.FamilyID == familyID && sa.Visibility == core.VisibilityFamily {
			out = append(out, sa.AccountID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (f *fakeStore) FamiliesSharingAccount(_ context.Context, accountID int64) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []int64
	for _, sa := range f.shared {
		if sa.AccountID == accountID {
			out = append(out, sa.FamilyID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (f *fakeStore) InsertBudget(_ context.Context, b core.Budget) (core.Budget, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b.ID = f.id()
	b.Version = 1
	f.budgets[b.ID] = b
	return b, nil
}

func (f *fakeStore) DeleteBudget(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.budgets[id]; !ok {
		return core.NotFound("budget not found")
	}
	delete(f.budgets, id)
	return nil
}

func (f *fakeStore) BudgetByID(_ context.Context, id int64) (core.Budget, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.budgets[id]
	if !ok {
		return core.Budget{}, core.NotFound("budget not found")
	}
	return b, nil
}

func (f *fakeStore) ListBudgets(_ context.Context, familyID int64) ([]core.Budget, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []core.Budget
	for _, b := range f.budgets {
		if b.FamilyID == familyID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) InsertMemberLimit(_ context.Context, l core.MemberLimit) (core.MemberLimit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l.ID = f.id()
	l.Version = 1
	f.limits[l.ID] = l
	return l, nil
}

func (f *fakeStore) DeleteMemberLimit(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.limits[id]; !ok {
		return core.NotFound("member limit not found")
	}
	delete(f.limits, id)
	return nil
}

func (f *fakeStore) MemberLimitByID(_ context.Context, id int64) (core.MemberLimit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.limits[id]
	if !ok {
		return core.MemberLimit{}, core.NotFound("member limit not found")
	}
	return l, nil
}

func (f *fakeStore) ListMemberLimits(_ context.Context, familyID int64) ([]core.MemberLimit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []core.MemberLimit
	for _, l := range f.limits {
		if l.FamilyID == familyID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) ListLockedAutoUnlockLimits(_ context.Context) ([]core.MemberLimit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []core.MemberLimit
	for _, l := range f.limits {
		if l.Locked && l.AutoUnlock {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) SetLimitLocked(_ context.Context, limitID int64, locked bool, version int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.limits[limitID]
	if !ok {
		return core.NotFound("member limit not found")
	}
	if l.Version != version {
		return core.Conflict("member limit was modified concurrently", fmt.Sprintf("version %d", l.Version))
	}
	l.Locked = locked
	l.Version++
	f.limits[limitID] = l
	return nil
}

func (f *fakeStore) RecordTransaction(_ context.Context, tx core.Transaction) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.txns[tx.ID]; ok {
		return false, nil
	}
	f.txns[tx.ID] = tx
	return true, nil
}

func (f *fakeStore) SumTransactions(_ context.Context, accountIDs []int64, categoryID int64, window core.PeriodWindow) (core.Money, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	scope := make(map[int64]bool, len(accountIDs))
	for _, id := range accountIDs {
		scope[id] = true
	}
	var txns []core.Transaction
	for _, tx := range f.txns {
		txns = append(txns, tx)
	}
	return core.FoldSpent(txns, categoryID, scope, window), nil
}

func (f *fakeStore) MarkUsageAlert(_ context.Context, kind string, targetID int64, periodKey string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := fmt.Sprintf("%s/%d/%s", kind, targetID, periodKey)
	if f.alerts[key] {
		return false, nil
	}
	f.alerts[key] = true
	return true, nil
}

func (f *fakeStore) InsertGoal(_ context.Context, g core.Goal) (core.Goal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g.ID = f.id()
	g.Status = core.GoalActive
	g.Version = 1
	f.goals[g.ID] = g
	return g, nil
}

func (f *fakeStore) GoalByID(_ context.Context, id int64) (core.Goal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.goals[id]
	if !ok {
		return core.Goal{}, core.NotFound("goal not found")
	}
	return g, nil
}

func (f *fakeStore) ListGoals(_ context.Context, familyID int64) ([]core.Goal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []core.Goal
	for _, g := range f.goals {
		if g.FamilyID == familyID {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) DeleteGoal(_ context.Context, goalID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.contribs {
		if c.GoalID == goalID {
			return false, nil
		}
	}
	if _, ok := f.goals[goalID]; !ok {
		return false, nil
	}
	delete(f.goals, goalID)
	return true, nil
}

func (f *fakeStore) ArchiveGoal(_ context.Context, goalID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.goals[goalID]
	if !ok {
		return core.NotFound("goal not found")
	}
	g.Status = core.GoalArchived
	g.Version++
	f.goals[goalID] = g
	return nil
}

func (f *fakeStore) AppendContribution(_ context.Context, c core.GoalContribution, goalVersion int64) (core.Goal, bool, error) {
	if f.contributionHook != nil {
		f.contributionHook()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.goals[c.GoalID]
	if !ok {
		return core.Goal{}, false, core.NotFound("goal not found")
	}
	if g.Status != core.GoalActive {
		return core.Goal{}, false, core.Conflict("goal is not active", string(g.Status))
	}
	if g.Version != goalVersion {
		return core.Goal{}, false, core.Conflict("goal was modified concurrently", string(g.Status))
	}
	g.CurrentAmount.Cents += c.Amount.Cents
	g.Version++
	completed := false
	if g.CurrentAmount.Cents >= g.TargetAmount.Cents {
		g.Status = core.GoalCompleted
		completed = true
	}
	f.goals[c.GoalID] = g
	c.ID = f.id()
	c.CreatedAt = time.Now()
	f.contribs = append(f.contribs, c)
	return g, completed, nil
}

func (f *fakeStore) ListContributions(_ context.Context, goalID int64) ([]core.GoalContribution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []core.GoalContribution
	for _, c := range f.contribs {
		if c.GoalID == goalID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeStore) InsertTransfer(_ context.Context, t core.Transfer) (core.Transfer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t.ID = f.id()
	t.Status = core.TransferPending
	t.Version = 1
	f.transfers[t.ID] = t
	return t, nil
}

func (f *fakeStore) TransferByID(_ context.Context, id int64) (core.Transfer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.transfers[id]
	if !ok {
		return core.Transfer{}, core.NotFound("transfer not found")
	}
	return t, nil
}

func (f *fakeStore) ListTransfers(_ context.Context, familyID int64, status core.TransferStatus) ([]core.Transfer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []core.Transfer
	for _, t := range f.transfers {
		if t.FamilyID != familyID {
			continue
		}
		if status != "" && t.Status != status {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (f *fakeStore) TransitionTransfer(_ context.Context, id int64, from, to core.TransferStatus, approvedBy int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.transfers[id]
	if !ok {
		return core.NotFound("transfer not found")
	}
	if t.Status != from {
		return core.Conflict(fmt.Sprintf("transfer is not %s", from), string(t.Status))
	}
	t.Status = to
	t.Version++
	if approvedBy != 0 {
		t.ApprovedBy = approvedBy
	}
	if to == core.TransferExecuted {
		t.ExecutedAt = time.Now()
	}
	f.transfers[id] = t
	return nil
}

func (f *fakeStore) InsertNotification(_ context.Context, n core.Notification) (core.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n.ID = f.id()
	n.CreatedAt = time.Now()
	f.notes = append(f.notes, n)
	return n, nil
}

func (f *fakeStore) ListNotifications(_ context.Context, familyID, memberID int64, limit int) ([]core.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []core.Notification
	for i := len(f.notes) - 1; i >= 0; i-- {
		n := f.notes[i]
		if n.FamilyID != familyID {
			continue
		}
		if n.MemberID != 0 && n.MemberID != memberID {
			continue
		}
		out = append(out, n)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) MarkNotificationRead(_ context.Context, id, memberID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, n := range f.notes {
		if n.ID == id && (n.MemberID == 0 || n.MemberID == memberID) {
			f.notes[i].Read = true
			return nil
		}
	}
	return core.NotFound("notification not found")
}

// noteRecorder collects emitted notifications for assertions.
type noteRecorder struct {
	mu    sync.Mutex
	notes []core.Notification
}

func (r *noteRecorder) Emit(_ context.Context, n core.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
}

func (r *noteRecorder) countType(noteType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, n := range r.notes {
		if n.Type == noteType {
			count++
		}
	}
	return count
}

// flakyLedger wraps a real ledger and fails credits to chosen accounts.
type flakyLedger struct {
	ledger.AccountLedger
	failCredit map[int64]error
}

func (l *flakyLedger) Credit(ctx context.Context, accountID int64, amount core.Money) error {
	if err, ok := l.failCredit[accountID]; ok {
		return err
	}
	return l.AccountLedger.Credit(ctx, accountID, amount)
}
