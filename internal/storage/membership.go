package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"famiglia/internal/core"
)

// CreateGroup inserts the group together with its creator as an active admin
// member, in one transaction.
func (r *Repository) CreateGroup(ctx context.Context, g core.FamilyGroup) (core.FamilyGroup, core.Member, error) {
	now := time.Now().UTC()
	g.CreatedAt, g.UpdatedAt = now, now

	var m core.Member
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO family_groups (name, description, invite_code, created_by_user_id, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			g.Name, g.Description, g.InviteCode, g.CreatedByUserID, now, now)
		if err != nil {
			if isUniqueViolation(err) {
				return core.Conflict("invite code already in use", "")
			}
			return fmt.Errorf("insert group: %w", err)
		}
		g.ID, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("group id: %w", err)
		}

		res, err = tx.ExecContext(ctx,
			`INSERT INTO members (family_id, user_id, role, status, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			g.ID, g.CreatedByUserID, core.RoleAdmin, core.MemberActive, now, now)
		if err != nil {
			return fmt.Errorf("insert creator member: %w", err)
		}
		memberID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("member id: %w", err)
		}
		m = core.Member{
			ID:        memberID,
			FamilyID:  g.ID,
			UserID:    g.CreatedByUserID,
			Role:      core.RoleAdmin,
			Status:    core.MemberActive,
			CreatedAt: now,
			UpdatedAt: now,
		}
		return nil
	})
	if err != nil {
		return core.FamilyGroup{}, core.Member{}, err
	}

	slog.InfoContext(ctx, "Family group created",
		"family_id", g.ID, "user_id", g.CreatedByUserID)
	return g, m, nil
}

func (r *Repository) GroupByID(ctx context.Context, id int64) (core.FamilyGroup, error) {
	return r.scanGroup(r.db.QueryRowContext(ctx,
		`SELECT id, name, description, invite_code, created_by_user_id, created_at, updated_at
		 FROM family_groups WHERE id = ?`, id))
}

// GroupByInviteCode resolves the currently valid code. The result is only a
// point-in-time read; InsertMemberByInvite revalidates the code on enrollment.
func (r *Repository) GroupByInviteCode(ctx context.Context, code string) (core.FamilyGroup, error) {
	return r.scanGroup(r.db.QueryRowContext(ctx,
		`SELECT id, name, description, invite_code, created_by_user_id, created_at, updated_at
		 FROM family_groups WHERE invite_code = ?`, code))
}

func (r *Repository) scanGroup(row *sql.Row) (core.FamilyGroup, error) {
	var g core.FamilyGroup
	err := row.Scan(&g.ID, &g.Name, &g.Description, &g.InviteCode,
		&g.CreatedByUserID, &g.CreatedAt, &g.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.FamilyGroup{}, core.NotFound("family group not found")
	}
	if err != nil {
		return core.FamilyGroup{}, fmt.Errorf("scan group: %w", err)
	}
	return g, nil
}

// UpdateInviteCode atomically replaces the group's invite code.
func (r *Repository) UpdateInviteCode(ctx context.Context, groupID int64, newCode string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE family_groups SET invite_code = ?, updated_at = ? WHERE id = ?`,
		newCode, time.Now().UTC(), groupID)
	if err != nil {
		if isUniqueViolation(err) {
			return core.Conflict("invite code already in use", "")
		}
		return fmt.Errorf("update invite code: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.NotFound("family group not found")
	}
	return nil
}

// InsertMemberByInvite enrolls a user in the group only while the invite
// code still matches. The code check and the insert run in one statement, so
// a rotation committing after the caller resolved the code fails the join
// instead of enrolling under the retired code.
func (r *Repository) InsertMemberByInvite(ctx context.Context, code string, m core.Member) (core.Member, error) {
	now := time.Now().UTC()
	m.CreatedAt, m.UpdatedAt = now, now

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO members (family_id, user_id, role, status, created_at, updated_at)
		 SELECT id, ?, ?, ?, ?, ?
		 FROM family_groups WHERE id = ? AND invite_code = ?`,
		m.UserID, m.Role, m.Status, now, now, m.FamilyID, code)
	if err != nil {
		if isUniqueViolation(err) {
			return core.Member{}, core.Conflict("user already has a membership in this group", "")
		}
		return core.Member{}, fmt.Errorf("insert member: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.Member{}, core.NotFound("invalid invite code")
	}
	m.ID, err = res.LastInsertId()
	if err != nil {
		return core.Member{}, fmt.Errorf("member id: %w", err)
	}
	return m, nil
}

func (r *Repository) MemberByID(ctx context.Context, id int64) (core.Member, error) {
	return r.scanMember(r.db.QueryRowContext(ctx,
		`SELECT id, family_id, user_id, role, status, created_at, updated_at
		 FROM members WHERE id = ?`, id))
}

func (r *Repository) MemberByUser(ctx context.Context, familyID, userID int64) (core.Member, error) {
	return r.scanMember(r.db.QueryRowContext(ctx,
		`SELECT id, family_id, user_id, role, status, created_at, updated_at
		 FROM members WHERE family_id = ? AND user_id = ?`, familyID, userID))
}

func (r *Repository) scanMember(row *sql.Row) (core.Member, error) {
	var m core.Member
	err := row.Scan(&m.ID, &m.FamilyID, &m.UserID, &m.Role, &m.Status, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Member{}, core.NotFound("member not found")
	}
	if err != nil {
		return core.Member{}, fmt.Errorf("scan member: %w", err)
	}
	return m, nil
}

// UpdateMemberStatus transitions a member from one status to another. A lost
// race or an already-transitioned member yields a conflict carrying the
// current status.
func (r *Repository) UpdateMemberStatus(ctx context.Context, memberID int64, from, to core.MemberStatus) (core.Member, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE members SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		to, time.Now().UTC(), memberID, from)
	if err != nil {
		return core.Member{}, fmt.Errorf("update member status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		current, err := r.MemberByID(ctx, memberID)
		if err != nil {
			return core.Member{}, err
		}
		return core.Member{}, core.Conflict("member is not "+string(from), string(current.Status))
	}
	return r.MemberByID(ctx, memberID)
}

// BlockAdmin blocks an active admin only while another active admin remains
// in the group. The guard and the status change run in one statement, so two
// admins blocking each other concurrently cannot leave the group without an
// active admin.
func (r *Repository) BlockAdmin(ctx context.Context, familyID, memberID int64) (core.Member, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE members SET status = ?, updated_at = ?
		 WHERE id = ? AND status = ?
		   AND EXISTS (SELECT 1 FROM members other
		               WHERE other.family_id = ? AND other.id != ?
		                 AND other.role = ? AND other.status = ?)`,
		core.MemberBlocked, time.Now().UTC(), memberID, core.MemberActive,
		familyID, memberID, core.RoleAdmin, core.MemberActive)
	if err != nil {
		return core.Member{}, fmt.Errorf("block admin: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		current, err := r.MemberByID(ctx, memberID)
		if err != nil {
			return core.Member{}, err
		}
		if current.Status != core.MemberActive {
			return core.Member{}, core.Conflict("member is not "+string(core.MemberActive), string(current.Status))
		}
		return core.Member{}, core.Conflict("cannot block the only active admin", string(current.Status))
	}
	return r.MemberByID(ctx, memberID)
}

// DeleteMember removes a member row if it still has the given status.
// Used to discard rejected pending joins; active members are blocked, never
// deleted, to preserve financial history.
func (r *Repository) DeleteMember(ctx context.Context, memberID int64, status core.MemberStatus) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM members WHERE id = ? AND status = ?`, memberID, status)
	if err != nil {
		return fmt.Errorf("delete member: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		current, err := r.MemberByID(ctx, memberID)
		if err != nil {
			return err
		}
		return core.Conflict("member is not "+string(status), string(current.Status))
	}
	return nil
}

func (r *Repository) ListMembers(ctx context.Context, familyID int64) ([]core.Member, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, family_id, user_id, role, status, created_at, updated_at
		 FROM members WHERE family_id = ? ORDER BY id`, familyID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var members []core.Member
	for rows.Next() {
		var m core.Member
		if err := rows.Scan(&m.ID, &m.FamilyID, &m.UserID, &m.Role, &m.Status, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// ActiveAdmins returns the group's admins in active status.
func (r *Repository) ActiveAdmins(ctx context.Context, familyID int64) ([]core.Member, error) {
	members, err := r.ListMembers(ctx, familyID)
	if err != nil {
		return nil, err
	}
	var admins []core.Member
	for _, m := range members {
		if m.Role == core.RoleAdmin && m.Status == core.MemberActive {
			admins = append(admins, m)
		}
	}
	return admins, nil
}

// ListFamilyIDs returns the ids of every family group.
func (r *Repository) ListFamilyIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM family_groups ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list family ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan family id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
