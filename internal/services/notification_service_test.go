package services

import (
	"context"
	"fmt"
	"testing"

	"famiglia/internal/core"
)

type stubPublisher struct {
	published []core.Notification
	err       error
}

func (p *stubPublisher) PublishNotification(_ context.Context, n core.Notification) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, n)
	return nil
}

func TestNotificationList_Scoping(t *testing.T) {
	store := newFakeStore()
	group, admin, member := seedFamily(t, store)
	svc := NewNotificationService(store, nil)
	ctx := context.Background()

	svc.Emit(ctx, core.Notification{FamilyID: group.ID, MemberID: admin.ID, Type: "for_admin"})
	svc.Emit(ctx, core.Notification{FamilyID: group.ID, MemberID: member.ID, Type: "for_member"})
	svc.Emit(ctx, core.Notification{FamilyID: group.ID, Type: "broadcast"})

	notes, err := svc.List(ctx, member.UserID, group.ID, 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(notes) != 2 {
		t.Fatalf("expected targeted + broadcast, got %d", len(notes))
	}
	// Newest first.
	if notes[0].Type != "broadcast" || notes[1].Type != "for_member" {
		t.Errorf("unexpected order: %s, %s", notes[0].Type, notes[1].Type)
	}
}

func TestNotificationMarkRead(t *testing.T) {
	store := newFakeStore()
	group, admin, member := seedFamily(t, store)
	svc := NewNotificationService(store, nil)
	ctx := context.Background()

	svc.Emit(ctx, core.Notification{FamilyID: group.ID, MemberID: admin.ID, Type: "for_admin"})
	notes, err := svc.List(ctx, admin.UserID, group.ID, 10)
	if err != nil || len(notes) != 1 {
		t.Fatalf("List: %v (%d notes)", err, len(notes))
	}

	// Another member cannot mark it.
	err = svc.MarkRead(ctx, member.UserID, group.ID, notes[0].ID)
	assertKind(t, err, core.KindNotFound)

	if err := svc.MarkRead(ctx, admin.UserID, group.ID, notes[0].ID); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	notes, err = svc.List(ctx, admin.UserID, group.ID, 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if !notes[0].Read {
		t.Error("notification should be marked read")
	}
}

func TestNotificationEmit_PublisherFailureIsSwallowed(t *testing.T) {
	store := newFakeStore()
	group, admin, _ := seedFamily(t, store)
	pub := &stubPublisher{err: fmt.Errorf("broker down")}
	svc := NewNotificationService(store, pub)
	ctx := context.Background()

	// Emit must not panic or lose the stored row when publishing fails.
	svc.Emit(ctx, core.Notification{FamilyID: group.ID, MemberID: admin.ID, Type: "event"})

	notes, err := svc.List(ctx, admin.UserID, group.ID, 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(notes) != 1 {
		t.Fatalf("expected stored notification despite publish failure, got %d", len(notes))
	}
}
