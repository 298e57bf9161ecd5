package services

import (
	"context"

	"famiglia/internal/core"
)

// SharedAccountService maintains which personal accounts each member exposes
// to the group. Sharing grants visibility only; ownership never moves, and
// unsharing leaves historical transfer and contribution references intact.
type SharedAccountService struct {
	store SharedAccountStore
}

func NewSharedAccountService(store SharedAccountStore) *SharedAccountService {
	return &SharedAccountService{store: store}
}

// SetSharedAccounts replaces the member's shared set with exactly the given
// accounts. Calling it twice with the same set is a no-op.
func (s *SharedAccountService) SetSharedAccounts(ctx context.Context, userID, familyID, memberID int64, accountIDs []int64) error {
	if err := s.authorizeOwnerOrAdmin(ctx, userID, familyID, memberID); err != nil {
		return err
	}
	if err := validateAccountIDs(accountIDs); err != nil {
		return err
	}
	return s.store.ReplaceSharedAccounts(ctx, familyID, memberID, accountIDs)
}

// AddSharedAccounts unions the given accounts into the member's shared set.
func (s *SharedAccountService) AddSharedAccounts(ctx context.Context, userID, familyID, memberID int64, accountIDs []int64) error {
	if err := s.authorizeOwnerOrAdmin(ctx, userID, familyID, memberID); err != nil {
		return err
	}
	if len(accountIDs) == 0 {
		return core.Validation("at least one account id is required")
	}
	if err := validateAccountIDs(accountIDs); err != nil {
		return err
	}
	return s.store.AddSharedAccounts(ctx, familyID, memberID, accountIDs)
}

func (s *SharedAccountService) RemoveSharedAccount(ctx context.Context, userID, familyID, memberID, accountID int64) error {
	if err := s.authorizeOwnerOrAdmin(ctx, userID, familyID, memberID); err != nil {
		return err
	}
	return s.store.RemoveSharedAccount(ctx, familyID, memberID, accountID)
}

func (s *SharedAccountService) ListSharedAccounts(ctx context.Context, userID, familyID int64) ([]core.SharedAccount, error) {
	if _, err := activeMember(ctx, s.store, familyID, userID); err != nil {
		return nil, err
	}
	return s.store.ListSharedAccounts(ctx, familyID)
}

// authorizeOwnerOrAdmin lets a member manage their own shared set and admins
// manage anyone's.
func (s *SharedAccountService) authorizeOwnerOrAdmin(ctx context.Context, userID, familyID, memberID int64) error {
	caller, err := activeMember(ctx, s.store, familyID, userID)
	if err != nil {
		return err
	}
	target, err := s.store.MemberByID(ctx, memberID)
	if err != nil {
		return err
	}
	if target.FamilyID != familyID {
		return core.NotFound("member not found")
	}
	if caller.ID != target.ID && caller.Role != core.RoleAdmin {
		return core.Permission("can only manage your own shared accounts")
	}
	return nil
}

func validateAccountIDs(accountIDs []int64) error {
	seen := make(map[int64]bool, len(accountIDs))
	for _, id := range accountIDs {
		if id <= 0 {
			return core.Validation("account id must be positive")
		}
		if seen[id] {
			return core.Validationf("duplicate account id %d", id)
		}
		seen[id] = true
	}
	return nil
}
