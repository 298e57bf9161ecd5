package services

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"

	"famiglia/internal/core"
)

const (
	inviteCodeLength   = 8
	inviteCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	inviteCodeRetries  = 5
)

// MembershipService manages family groups and the member lifecycle.
type MembershipService struct {
	store MembershipStore
	notes Notifier

	// autoActivate makes joiners active immediately instead of pending.
	autoActivate bool
}

func NewMembershipService(store MembershipStore, notes Notifier, autoActivate bool) *MembershipService {
	return &MembershipService{store: store, notes: notes, autoActivate: autoActivate}
}

// CreateGroup creates a family group with a fresh invite code and enrolls the
// creator as an active admin, all in one transaction.
func (s *MembershipService) CreateGroup(ctx context.Context, userID int64, name, description string) (core.FamilyGroup, core.Member, error) {
	g := core.FamilyGroup{
		Name:            name,
		Description:     description,
		CreatedByUserID: userID,
	}
	if err := g.Validate(); err != nil {
		return core.FamilyGroup{}, core.Member{}, err
	}

	// Invite codes are unique across groups. On the rare collision the
	// insert fails the unique constraint and we try a fresh code.
	var lastErr error
	for i := 0; i < inviteCodeRetries; i++ {
		code, err := newInviteCode()
		if err != nil {
			return core.FamilyGroup{}, core.Member{}, err
		}
		g.InviteCode = code

		group, admin, err := s.store.CreateGroup(ctx, g)
		if err == nil {
			return group, admin, nil
		}
		if !core.IsKind(err, core.KindConflict) {
			return core.FamilyGroup{}, core.Member{}, err
		}
		lastErr = err
	}
	return core.FamilyGroup{}, core.Member{}, fmt.Errorf("create group: %w", lastErr)
}

func (s *MembershipService) GetGroup(ctx context.Context, userID, familyID int64) (core.FamilyGroup, error) {
	if _, err := activeMember(ctx, s.store, familyID, userID); err != nil {
		return core.FamilyGroup{}, err
	}
	return s.store.GroupByID(ctx, familyID)
}

// RotateInvite replaces the group's invite code. The old code stops working
// the moment the update commits; a join still in flight with the old code
// fails its guarded insert.
func (s *MembershipService) RotateInvite(ctx context.Context, userID, familyID int64) (core.FamilyGroup, error) {
	if _, err := activeAdmin(ctx, s.store, familyID, userID); err != nil {
		return core.FamilyGroup{}, err
	}

	var lastErr error
	for i := 0; i < inviteCodeRetries; i++ {
		code, err := newInviteCode()
		if err != nil {
			return core.FamilyGroup{}, err
		}
		err = s.store.UpdateInviteCode(ctx, familyID, code)
		if err == nil {
			slog.InfoContext(ctx, "Invite code rotated", "family_id", familyID)
			return s.store.GroupByID(ctx, familyID)
		}
		if !core.IsKind(err, core.KindConflict) {
			return core.FamilyGroup{}, err
		}
		lastErr = err
	}
	return core.FamilyGroup{}, fmt.Errorf("rotate invite: %w", lastErr)
}

// JoinByInvite enrolls the user in the group behind the invite code. The new
// member starts pending unless the service is configured to auto-activate.
// A user already holding a membership in the group, whatever its status,
// gets a conflict.
func (s *MembershipService) JoinByInvite(ctx context.Context, userID int64, code string) (core.Member, error) {
	if code == "" {
		return core.Member{}, core.Validation("invite code is required")
	}
	group, err := s.store.GroupByInviteCode(ctx, code)
	if err != nil {
		if core.IsKind(err, core.KindNotFound) {
			return core.Member{}, core.NotFound("invalid invite code")
		}
		return core.Member{}, err
	}

	status := core.MemberPending
	if s.autoActivate {
		status = core.MemberActive
	}
	// The insert revalidates the code. A rotation committing after the
	// lookup above fails the join instead of enrolling under the old code.
	member, err := s.store.InsertMemberByInvite(ctx, code, core.Member{
		FamilyID: group.ID,
		UserID:   userID,
		Role:     core.RoleMember,
		Status:   status,
	})
	if err != nil {
		return core.Member{}, err
	}

	s.notifyAdmins(ctx, group.ID, core.NoteMemberJoined, map[string]any{
		"member_id": member.ID,
		"user_id":   userID,
		"status":    string(status),
	})
	return member, nil
}

// ApproveMember activates a pending member.
func (s *MembershipService) ApproveMember(ctx context.Context, userID, familyID, memberID int64) (core.Member, error) {
	if _, err := activeAdmin(ctx, s.store, familyID, userID); err != nil {
		return core.Member{}, err
	}
	if _, err := s.memberInGroup(ctx, familyID, memberID); err != nil {
		return core.Member{}, err
	}

	member, err := s.store.UpdateMemberStatus(ctx, memberID, core.MemberPending, core.MemberActive)
	if err != nil {
		return core.Member{}, err
	}

	s.notes.Emit(ctx, core.Notification{
		FamilyID: familyID,
		MemberID: member.ID,
		Type:     core.NoteMemberApproved,
		Payload:  map[string]any{"member_id": member.ID},
	})
	return member, nil
}

// RejectMember removes a pending member. The user may join again later with
// a valid invite code.
func (s *MembershipService) RejectMember(ctx context.Context, userID, familyID, memberID int64) error {
	if _, err := activeAdmin(ctx, s.store, familyID, userID); err != nil {
		return err
	}
	if _, err := s.memberInGroup(ctx, familyID, memberID); err != nil {
		return err
	}
	return s.store.DeleteMember(ctx, memberID, core.MemberPending)
}

// BlockMember marks an active member blocked. Their financial history stays
// intact; they lose access. The last active admin cannot be blocked.
func (s *MembershipService) BlockMember(ctx context.Context, userID, familyID, memberID int64) (core.Member, error) {
	if _, err := activeAdmin(ctx, s.store, familyID, userID); err != nil {
		return core.Member{}, err
	}
	target, err := s.memberInGroup(ctx, familyID, memberID)
	if err != nil {
		return core.Member{}, err
	}

	// For admins the last-active-admin guard lives in the update itself,
	// so concurrent blocks cannot both get past a count they each saw.
	var member core.Member
	if target.Role == core.RoleAdmin {
		member, err = s.store.BlockAdmin(ctx, familyID, memberID)
	} else {
		member, err = s.store.UpdateMemberStatus(ctx, memberID, core.MemberActive, core.MemberBlocked)
	}
	if err != nil {
		return core.Member{}, err
	}
	s.notes.Emit(ctx, core.Notification{
		FamilyID: familyID,
		MemberID: member.ID,
		Type:     core.NoteMemberBlocked,
		Payload:  map[string]any{"member_id": member.ID},
	})
	return member, nil
}

func (s *MembershipService) ListMembers(ctx context.Context, userID, familyID int64) ([]core.Member, error) {
	if _, err := activeMember(ctx, s.store, familyID, userID); err != nil {
		return nil, err
	}
	return s.store.ListMembers(ctx, familyID)
}

func (s *MembershipService) memberInGroup(ctx context.Context, familyID, memberID int64) (core.Member, error) {
	m, err := s.store.MemberByID(ctx, memberID)
	if err != nil {
		return core.Member{}, err
	}
	if m.FamilyID != familyID {
		return core.Member{}, core.NotFound("member not found")
	}
	return m, nil
}

func (s *MembershipService) notifyAdmins(ctx context.Context, familyID int64, noteType string, payload map[string]any) {
	admins, err := s.store.ActiveAdmins(ctx, familyID)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to resolve admins for notification",
			"family_id", familyID, "type", noteType, "error", err)
		return
	}
	for _, admin := range admins {
		s.notes.Emit(ctx, core.Notification{
			FamilyID: familyID,
			MemberID: admin.ID,
			Type:     noteType,
			Payload:  payload,
		})
	}
}

func newInviteCode() (string, error) {
	buf := make([]byte, inviteCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate invite code: %w", err)
	}
	for i, b := range buf {
		buf[i] = inviteCodeAlphabet[int(b)%len(inviteCodeAlphabet)]
	}
	return string(buf), nil
}
