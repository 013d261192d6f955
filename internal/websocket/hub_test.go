package chatws

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/lucascarlosmeuads/Trafego-Porcents-sub001/internal/models"
	"github.com/lucascarlosmeuads/Trafego-Porcents-sub001/internal/repository"
	"github.com/lucascarlosmeuads/Trafego-Porcents-sub001/internal/services"
)

func newMessageEvent(id int64, customer, manager, name, status string) services.ConversationEvent {
	message := models.ScopedMessage{
		Message: models.Message{
			ID:          id,
			CustomerID:  customer,
			ManagerID:   manager,
			SenderRole:  models.RoleCustomer,
			Content:     "hello",
			ContentType: models.ContentText,
			CreatedAt:   time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC).Add(time.Duration(id) * time.Second),
		},
		CustomerName:   name,
		CampaignStatus: status,
	}
	return services.ConversationEvent{
		Kind:           services.EventNewMessage,
		Key:            message.Key(),
		CustomerName:   name,
		CampaignStatus: status,
		Message:        &message,
	}
}

func TestKeyScopeCovers(t *testing.T) {
	event := newMessageEvent(1, "c1@x.com", "m1@x.com", "Acme Corp", "active")
	manager := "m1@x.com"
	otherManager := "m2@x.com"

	cases := []struct {
		name  string
		scope KeyScope
		want  bool
	}{
		{"own customer", KeyScope{Role: models.RoleCustomer, ViewerID: "c1@x.com"}, true},
		{"other customer", KeyScope{Role: models.RoleCustomer, ViewerID: "c2@x.com"}, false},
		{"own manager", KeyScope{Role: models.RoleManager, ViewerID: "m1@x.com"}, true},
		{"other manager", KeyScope{Role: models.RoleManager, ViewerID: "m2@x.com"}, false},
		{"admin unrestricted", KeyScope{Role: models.RoleAdmin}, true},
		{"admin manager match", KeyScope{Role: models.RoleAdmin, ManagerID: &manager}, true},
		{"admin manager mismatch", KeyScope{Role: models.RoleAdmin, ManagerID: &otherManager}, false},
		{"admin status match", KeyScope{Role: models.RoleAdmin, Status: "active"}, true},
		{"admin status mismatch", KeyScope{Role: models.RoleAdmin, Status: "paused"}, false},
		{"admin search on name", KeyScope{Role: models.RoleAdmin, Search: "acme"}, true},
		{"admin search on email", KeyScope{Role: models.RoleAdmin, Search: "C1@X"}, true},
		{"admin search miss", KeyScope{Role: models.RoleAdmin, Search: "globex"}, false},
		{"empty scope", KeyScope{Role: models.RoleManager, ViewerID: "m1@x.com", Empty: true}, false},
		{"unknown role", KeyScope{Role: "intern"}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.scope.Covers(event); got != tc.want {
				t.Fatalf("Covers() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestKeyScopeCoversUnassignedBucket(t *testing.T) {
	event := newMessageEvent(1, "c1@x.com", "", "Acme Corp", "active")
	unassigned := ""

	scope := KeyScope{Role: models.RoleAdmin, ManagerID: &unassigned}
	if !scope.Covers(event) {
		t.Fatal("expected unassigned-filtered admin scope to cover an unassigned conversation")
	}

	assigned := newMessageEvent(2, "c2@x.com", "m1@x.com", "Beta Ltd", "active")
	if scope.Covers(assigned) {
		t.Fatal("expected unassigned-filtered admin scope to exclude assigned conversations")
	}
}

func TestScopeFromMarksTerminalEmpty(t *testing.T) {
	viewer := models.ViewerContext{Role: models.RoleCustomer, ID: "nm@x.com"}

	scope := ScopeFrom(viewer, repository.MessageScope{}, false)
	if !scope.Empty {
		t.Fatal("expected empty scope")
	}
	if scope.Covers(newMessageEvent(1, "nm@x.com", "", "No Manager Yet", "")) {
		t.Fatal("empty scope must not cover anything")
	}
}

func waitFrame(t *testing.T, subscriber *Subscriber) serverFrame {
	t.Helper()
	select {
	case payload := <-subscriber.send:
		var frame serverFrame
		if err := json.Unmarshal(payload, &frame); err != nil {
			t.Fatalf("bad frame: %v", err)
		}
		return frame
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame")
		return serverFrame{}
	}
}

func TestHubDeliversOnlyToCoveredSubscribers(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	m1 := NewSubscriber(hub, nil, models.ViewerContext{Role: models.RoleManager, ID: "m1@x.com"})
	m1.setScope(KeyScope{Role: models.RoleManager, ViewerID: "m1@x.com"})
	m2 := NewSubscriber(hub, nil, models.ViewerContext{Role: models.RoleManager, ID: "m2@x.com"})
	m2.setScope(KeyScope{Role: models.RoleManager, ViewerID: "m2@x.com"})

	hub.Register(m1)
	hub.Register(m2)

	hub.Publish(newMessageEvent(1, "c1@x.com", "m1@x.com", "Acme Corp", "active"))

	frame := waitFrame(t, m1)
	if frame.Type != "conversation" || frame.Kind != string(services.EventNewMessage) {
		t.Fatalf("unexpected frame: %+v", frame)
	}
	if frame.Conversation == nil || frame.Conversation.UnreadCount != 1 {
		t.Fatalf("unexpected preview in frame: %+v", frame.Conversation)
	}

	select {
	case payload := <-m2.send:
		t.Fatalf("out-of-scope subscriber received %s", payload)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubDropsSubscriberWithFullQueue(t *testing.T) {
	hub := NewHub()

	// An unbuffered queue with no reader stands in for a stalled client.
	stalled := &Subscriber{
		hub:    hub,
		viewer: models.ViewerContext{Role: models.RoleManager, ID: "m1@x.com"},
		index:  services.NewPreviewIndex(models.RoleManager),
		send:   make(chan []byte),
	}
	stalled.setScope(KeyScope{Role: models.RoleManager, ViewerID: "m1@x.com"})
	hub.subscribers[stalled] = struct{}{}

	hub.deliver(newMessageEvent(1, "c1@x.com", "m1@x.com", "Acme Corp", "active"))

	if _, ok := hub.subscribers[stalled]; ok {
		t.Fatal("expected the stalled subscriber to be removed")
	}
	if _, open := <-stalled.send; open {
		t.Fatal("expected the stalled subscriber's queue to be closed")
	}
}
