package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"famiglia/internal/core"
)

func (r *Repository) InsertNotification(ctx context.Context, n core.Notification) (core.Notification, error) {
	n.CreatedAt = time.Now().UTC()

	payload := []byte("{}")
	if len(n.Payload) > 0 {
		var err error
		if payload, err = json.Marshal(n.Payload); err != nil {
			return core.Notification{}, fmt.Errorf("marshal notification payload: %w", err)
		}
	}
	var member any
	if n.MemberID != 0 {
		member = n.MemberID
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO notifications (family_id, member_id, type, payload, read, created_at)
		 VALUES (?, ?, ?, ?, 0, ?)`,
		n.FamilyID, member, n.Type, string(payload), n.CreatedAt)
	if err != nil {
		return core.Notification{}, fmt.Errorf("insert notification: %w", err)
	}
	n.ID, err = res.LastInsertId()
	if err != nil {
		return core.Notification{}, fmt.Errorf("notification id: %w", err)
	}
	return n, nil
}

// ListNotifications returns the member's targeted notifications plus the
// group broadcasts, newest first.
func (r *Repository) ListNotifications(ctx context.Context, familyID, memberID int64, limit int) ([]core.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, family_id, member_id, type, payload, read, created_at
		 FROM notifications
		 WHERE family_id = ? AND (member_id = ? OR member_id IS NULL)
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`, familyID, memberID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var notes []core.Notification
	for rows.Next() {
		var (
			n       core.Notification
			member  sql.NullInt64
			payload string
		)
		if err := rows.Scan(&n.ID, &n.FamilyID, &member, &n.Type, &payload, &n.Read, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		if member.Valid {
			n.MemberID = member.Int64
		}
		if err := json.Unmarshal([]byte(payload), &n.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal notification payload: %w", err)
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

func (r *Repository) MarkNotificationRead(ctx context.Context, id, memberID int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET read = 1 WHERE id = ? AND (member_id = ? OR member_id IS NULL)`,
		id, memberID)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.NotFound("notification not found")
	}
	return nil
}
