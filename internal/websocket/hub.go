package chatws

import (
	"strings"

	"github.com/lucascarlosmeuads/Trafego-Porcents-sub001/internal/models"
	"github.com/lucascarlosmeuads/Trafego-Porcents-sub001/internal/repository"
	"github.com/lucascarlosmeuads/Trafego-Porcents-sub001/internal/services"
)

// Hub is the live update channel. The service publishes one event per
// committed change; the hub's single dispatch goroutine fans each event out
// to every subscriber whose scope covers the affected conversation, in the
// order the events were published. Per-subscriber channels are FIFO, so a
// given subscriber observes a given conversation's events in commit order.
type Hub struct {
	subscribers map[*Subscriber]struct{}
	register    chan *Subscriber
	unregister  chan *Subscriber
	publish     chan services.ConversationEvent
}

func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[*Subscriber]struct{}),
		register:    make(chan *Subscriber),
		unregister:  make(chan *Subscriber),
		publish:     make(chan services.ConversationEvent, 64),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case subscriber := <-h.register:
			h.subscribers[subscriber] = struct{}{}
		case subscriber := <-h.unregister:
			if _, ok := h.subscribers[subscriber]; ok {
				delete(h.subscribers, subscriber)
				subscriber.closeSend()
			}
		case event := <-h.publish:
			h.deliver(event)
		}
	}
}

func (h *Hub) Register(subscriber *Subscriber) {
	h.register <- subscriber
}

func (h *Hub) Unregister(subscriber *Subscriber) {
	h.unregister <- subscriber
}

// Publish implements services.EventPublisher.
func (h *Hub) Publish(event services.ConversationEvent) {
	h.publish <- event
}

func (h *Hub) deliver(event services.ConversationEvent) {
	for subscriber := range h.subscribers {
		if !subscriber.Scope().Covers(event) {
			continue
		}
		payload, ok := subscriber.apply(event)
		if !ok {
			continue
		}
		select {
		case subscriber.send <- payload:
		default:
			// A subscriber that cannot keep up is dropped; it will
			// resynchronize from the store when it reconnects.
			delete(h.subscribers, subscriber)
			subscriber.closeSend()
		}
	}
}

// KeyScope is a subscriber's view scope reduced to an event predicate. It
// mirrors the planner's message scope: Empty short-circuits everything
// (no manager assigned, managing-managers surface), customers and managers
// match their own side of the key, administrators apply optional manager,
// status and search narrowing against the event's directory fields.
type KeyScope struct {
	Role      models.Role
	ViewerID  string
	ManagerID *string
	Status    string
	Search    string
	Empty     bool
}

// ScopeFrom converts a planned message scope into an event predicate so the
// hub and the repository never disagree about what a viewer may see.
func ScopeFrom(viewer models.ViewerContext, scope repository.MessageScope, ok bool) KeyScope {
	return KeyScope{
		Role:      viewer.Role,
		ViewerID:  viewer.ID,
		ManagerID: scope.ManagerID,
		Status:    scope.Status,
		Search:    scope.Search,
		Empty:     !ok,
	}
}

func (s KeyScope) Covers(event services.ConversationEvent) bool {
	if s.Empty {
		return false
	}

	switch s.Role {
	case models.RoleCustomer:
		return event.Key.CustomerID == s.ViewerID
	case models.RoleManager:
		return event.Key.ManagerID == s.ViewerID
	case models.RoleAdmin:
		if s.ManagerID != nil && event.Key.ManagerID != *s.ManagerID {
			return false
		}
		if s.Status != "" && event.CampaignStatus != s.Status {
			return false
		}
		if s.Search != "" {
			if !containsFold(event.CustomerName, s.Search) && !containsFold(event.Key.CustomerID, s.Search) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
