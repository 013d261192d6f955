package services

import (
	"testing"
	"time"

	"github.com/lucascarlosmeuads/Trafego-Porcents-sub001/internal/models"
)

func messageEvent(message models.ScopedMessage) ConversationEvent {
	return ConversationEvent{
		Kind:           EventNewMessage,
		Key:            message.Key(),
		CustomerName:   message.CustomerName,
		CampaignStatus: message.CampaignStatus,
		Message:        &message,
	}
}

func TestPreviewIndexApplyNewMessageUpdatesEntry(t *testing.T) {
	index := NewPreviewIndex(models.RoleManager)
	base := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

	preview, changed := index.Apply(messageEvent(scopedMessage(1, "c1@x.com", "m1@x.com", models.RoleCustomer, "Hello", base, false)))
	if !changed {
		t.Fatal("expected first message to change the index")
	}
	if preview.UnreadCount != 1 || preview.LastMessage.Content != "Hello" {
		t.Fatalf("unexpected preview: unread=%d last=%q", preview.UnreadCount, preview.LastMessage.Content)
	}

	preview, changed = index.Apply(messageEvent(scopedMessage(2, "c1@x.com", "m1@x.com", models.RoleCustomer, "Anyone?", base.Add(time.Minute), false)))
	if !changed {
		t.Fatal("expected second message to change the index")
	}
	if preview.UnreadCount != 2 || preview.LastMessage.ID != 2 {
		t.Fatalf("unexpected preview after second message: unread=%d last id=%d", preview.UnreadCount, preview.LastMessage.ID)
	}
}

func TestPreviewIndexIgnoresReplayedMessages(t *testing.T) {
	index := NewPreviewIndex(models.RoleManager)
	base := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	event := messageEvent(scopedMessage(7, "c1@x.com", "m1@x.com", models.RoleCustomer, "Hello", base, false))

	if _, changed := index.Apply(event); !changed {
		t.Fatal("expected first delivery to apply")
	}
	preview, changed := index.Apply(event)
	if changed {
		t.Fatal("expected replayed event to be a no-op")
	}
	if preview.UnreadCount != 1 {
		t.Fatalf("replay inflated unread count to %d", preview.UnreadCount)
	}
}

func TestPreviewIndexOwnMessagesDoNotCountUnread(t *testing.T) {
	index := NewPreviewIndex(models.RoleManager)
	base := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

	preview, changed := index.Apply(messageEvent(scopedMessage(1, "c1@x.com", "m1@x.com", models.RoleManager, "Hi there", base, false)))
	if !changed {
		t.Fatal("expected manager's own message to still update the preview")
	}
	if preview.UnreadCount != 0 || preview.HasUnread {
		t.Fatalf("own message counted as unread: %d", preview.UnreadCount)
	}
}

func TestPreviewIndexReadStateClearsUnread(t *testing.T) {
	index := NewPreviewIndex(models.RoleManager)
	base := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	key := models.ConversationKey{CustomerID: "c1@x.com", ManagerID: "m1@x.com"}

	index.Apply(messageEvent(scopedMessage(1, "c1@x.com", "m1@x.com", models.RoleCustomer, "Hello", base, false)))

	// The customer's messages were read; that is the side this viewer counts.
	preview, changed := index.Apply(ConversationEvent{
		Kind:       EventReadStateChanged,
		Key:        key,
		ReadSender: models.RoleCustomer,
	})
	if !changed {
		t.Fatal("expected read state event to clear unread")
	}
	if preview.UnreadCount != 0 || preview.HasUnread {
		t.Fatalf("unread not cleared: %d", preview.UnreadCount)
	}

	// Repeating the event changes nothing further.
	if _, changed := index.Apply(ConversationEvent{Kind: EventReadStateChanged, Key: key, ReadSender: models.RoleCustomer}); changed {
		t.Fatal("expected repeated read state event to be a no-op")
	}
}

func TestPreviewIndexReadStateForOtherSideIsNoOp(t *testing.T) {
	index := NewPreviewIndex(models.RoleManager)
	base := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	key := models.ConversationKey{CustomerID: "c1@x.com", ManagerID: "m1@x.com"}

	index.Apply(messageEvent(scopedMessage(1, "c1@x.com", "m1@x.com", models.RoleCustomer, "Hello", base, false)))

	// The manager's messages were read by the customer. The manager viewer's
	// unread count tracks customer messages, so nothing visible changes.
	preview, changed := index.Apply(ConversationEvent{
		Kind:       EventReadStateChanged,
		Key:        key,
		ReadSender: models.RoleManager,
	})
	if changed {
		t.Fatal("expected read event for the opposite side to be a no-op")
	}
	if preview.UnreadCount != 1 {
		t.Fatalf("unread count changed to %d", preview.UnreadCount)
	}
}

func TestPreviewIndexReadStateForUnknownConversationIsNoOp(t *testing.T) {
	index := NewPreviewIndex(models.RoleCustomer)
	_, changed := index.Apply(ConversationEvent{
		Kind:       EventReadStateChanged,
		Key:        models.ConversationKey{CustomerID: "ghost@x.com", ManagerID: "m1@x.com"},
		ReadSender: models.RoleManager,
	})
	if changed {
		t.Fatal("expected event for an unknown conversation to be a no-op")
	}
}

func TestPreviewIndexRebuildReplacesEntries(t *testing.T) {
	index := NewPreviewIndex(models.RoleManager)
	base := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

	index.Apply(messageEvent(scopedMessage(1, "stale@x.com", "m1@x.com", models.RoleCustomer, "old", base, false)))

	fresh := BuildPreviews(models.RoleManager, []models.ScopedMessage{
		scopedMessage(2, "c1@x.com", "m1@x.com", models.RoleCustomer, "current", base.Add(time.Hour), false),
		scopedMessage(3, "c2@x.com", "m1@x.com", models.RoleCustomer, "also current", base.Add(2*time.Hour), false),
	})
	index.Rebuild(fresh)

	snapshot := index.Snapshot()
	if len(snapshot) != 2 {
		t.Fatalf("expected 2 entries after rebuild, got %d", len(snapshot))
	}
	if snapshot[0].CustomerID != "c2@x.com" || snapshot[1].CustomerID != "c1@x.com" {
		t.Fatalf("snapshot out of order: %s, %s", snapshot[0].CustomerID, snapshot[1].CustomerID)
	}
	for _, preview := range snapshot {
		if preview.CustomerID == "stale@x.com" {
			t.Fatal("rebuild kept a stale entry")
		}
	}
}
