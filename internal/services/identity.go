package services

import (
	"context"

	"famiglia/internal/core"
)

// activeMember resolves the calling user to their active membership in the
// group. Pending and blocked members are refused without revealing anything
// beyond the lack of access.
func activeMember(ctx context.Context, store MemberResolver, familyID, userID int64) (core.Member, error) {
	m, err := store.MemberByUser(ctx, familyID, userID)
	if err != nil {
		if core.IsKind(err, core.KindNotFound) {
			return core.Member{}, core.Permission("not an active member of this group")
		}
		return core.Member{}, err
	}
	if m.Status != core.MemberActive {
		return core.Member{}, core.Permission("not an active member of this group")
	}
	return m, nil
}

// activeAdmin is activeMember plus the admin role requirement.
func activeAdmin(ctx context.Context, store MemberResolver, familyID, userID int64) (core.Member, error) {
	m, err := activeMember(ctx, store, familyID, userID)
	if err != nil {
		return core.Member{}, err
	}
	if m.Role != core.RoleAdmin {
		return core.Member{}, core.Permission("admin role required")
	}
	return m, nil
}
