package chatws

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
	"github.com/lucascarlosmeuads/Trafego-Porcents-sub001/internal/models"
	"github.com/lucascarlosmeuads/Trafego-Porcents-sub001/internal/services"
)

// ChatProvider is the slice of the chat service a subscriber session needs.
type ChatProvider interface {
	ListConversations(ctx context.Context, viewer models.ViewerContext, filter models.ConversationFilter) ([]models.ConversationPreview, error)
	MarkConversationRead(ctx context.Context, viewer models.ViewerContext, key models.ConversationKey) error
	SendMessage(ctx context.Context, viewer models.ViewerContext, key models.ConversationKey, content string, contentType models.ContentType, clientKey uuid.UUID) (*models.Message, error)
}

// Subscriber is one viewer session on the live update channel. It owns the
// session's preview index and selection state; the hub pushes events through
// it and it emits single-preview update frames.
type Subscriber struct {
	hub    *Hub
	conn   *websocket.Conn
	viewer models.ViewerContext
	index  *services.PreviewIndex
	send   chan []byte

	mu        sync.Mutex
	provider  ChatProvider
	scope     KeyScope
	filter    models.ConversationFilter
	selected  *models.ConversationKey
	resyncing bool
	pending   []services.ConversationEvent
	closed    bool
}

func NewSubscriber(hub *Hub, conn *websocket.Conn, viewer models.ViewerContext) *Subscriber {
	return &Subscriber{
		hub:    hub,
		conn:   conn,
		viewer: viewer,
		index:  services.NewPreviewIndex(viewer.Role),
		send:   make(chan []byte, 32),
	}
}

func (s *Subscriber) Scope() KeyScope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scope
}

func (s *Subscriber) setScope(scope KeyScope) {
	s.mu.Lock()
	s.scope = scope
	s.mu.Unlock()
}

func (s *Subscriber) Filter() models.ConversationFilter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter
}

func (s *Subscriber) setSelected(key *models.ConversationKey) {
	s.mu.Lock()
	s.selected = key
	s.mu.Unlock()
}

// apply folds an event into the session's preview index and, when the event
// changes something this viewer can see, returns the encoded update frame.
// While a resynchronization is in flight the event is buffered instead: it
// may have committed after the resync query, and folding it into the old
// index would lose it when Rebuild replaces the entries. Buffered events are
// replayed after the rebuild, where the index's id dedupe drops the ones the
// fresh query already saw.
func (s *Subscriber) apply(event services.ConversationEvent) ([]byte, bool) {
	s.mu.Lock()
	if s.resyncing {
		s.pending = append(s.pending, event)
		s.mu.Unlock()
		return nil, false
	}
	s.mu.Unlock()

	return s.frame(event)
}

func (s *Subscriber) frame(event services.ConversationEvent) ([]byte, bool) {
	preview, changed := s.index.Apply(event)
	if !changed {
		return nil, false
	}

	if event.Kind == services.EventNewMessage {
		s.maybeAutoRead(event)
	}

	payload, err := json.Marshal(serverFrame{
		Type:         "conversation",
		Kind:         string(event.Kind),
		Conversation: &preview,
		Timestamp:    services.FormatChatTimestamp(time.Now()),
	})
	if err != nil {
		log.Printf("chat hub encode event: %v", err)
		return nil, false
	}
	return payload, true
}

// maybeAutoRead extends open semantics to messages arriving while the
// conversation is on screen: they are marked read immediately, and the
// resulting read event clears the unread count the message just added.
func (s *Subscriber) maybeAutoRead(event services.ConversationEvent) {
	s.mu.Lock()
	provider := s.provider
	selected := s.selected != nil && *s.selected == event.Key
	s.mu.Unlock()

	if !selected || provider == nil {
		return
	}
	if event.Message == nil || event.Message.SenderRole != s.viewer.Role.UnreadSender() {
		return
	}

	go func() {
		if err := provider.MarkConversationRead(context.Background(), s.viewer, event.Key); err != nil {
			log.Printf("chat auto mark read: %v", err)
		}
	}()
}

type clientFrame struct {
	Type        string `json:"type"`
	CustomerID  string `json:"customer_id"`
	ManagerID   string `json:"manager_id"`
	Content     string `json:"content"`
	ContentType string `json:"content_type"`
	ClientKey   string `json:"client_key"`

	Manager          string `json:"manager"`
	Status           string `json:"status"`
	Search           string `json:"search"`
	Unassigned       bool   `json:"unassigned"`
	ManagingManagers bool   `json:"managing_managers"`
}

type serverFrame struct {
	Type          string                       `json:"type"`
	Kind          string                       `json:"kind,omitempty"`
	Conversation  *models.ConversationPreview  `json:"conversation,omitempty"`
	Conversations []models.ConversationPreview `json:"conversations,omitempty"`
	Error         string                       `json:"error,omitempty"`
	Timestamp     string                       `json:"timestamp"`
}

// ReadPump drives the session: it synchronizes state on entry and then
// serves client frames until the connection drops. Frame types: "message"
// sends into a conversation, "open" selects one and marks it read, "close"
// clears the selection, "filter" re-plans the scope and resynchronizes.
func (s *Subscriber) ReadPump(provider ChatProvider, planner *services.ViewPlanner) {
	defer func() {
		s.hub.Unregister(s)
		_ = s.conn.Close()
	}()

	s.mu.Lock()
	s.provider = provider
	s.mu.Unlock()

	if err := s.resync(provider, planner); err != nil {
		s.writeError("failed to load conversations")
		return
	}

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			return
		}

		var frame clientFrame
		if err := json.Unmarshal(payload, &frame); err != nil {
			s.writeError("invalid payload")
			continue
		}

		switch frame.Type {
		case "message":
			s.handleSend(provider, frame)
		case "open":
			key := models.ConversationKey{CustomerID: frame.CustomerID, ManagerID: frame.ManagerID}
			if err := provider.MarkConversationRead(context.Background(), s.viewer, key); err != nil {
				s.writeError("failed to open conversation")
				continue
			}
			s.setSelected(&key)
		case "close":
			s.setSelected(nil)
		case "filter":
			s.mu.Lock()
			s.filter = models.ConversationFilter{
				ManagerID:        frame.Manager,
				Status:           frame.Status,
				Search:           frame.Search,
				Unassigned:       frame.Unassigned,
				ManagingManagers: frame.ManagingManagers,
			}
			// A scope change invalidates the current selection.
			s.selected = nil
			s.mu.Unlock()
			if err := s.resync(provider, planner); err != nil {
				s.writeError("failed to apply filter")
			}
		default:
			s.writeError("unsupported frame type")
		}
	}
}

func (s *Subscriber) handleSend(provider ChatProvider, frame clientFrame) {
	key := models.ConversationKey{CustomerID: frame.CustomerID, ManagerID: frame.ManagerID}

	contentType := models.ContentType(frame.ContentType)
	if frame.ContentType == "" {
		contentType = models.ContentText
	}

	clientKey := uuid.Nil
	if frame.ClientKey != "" {
		parsed, err := uuid.Parse(frame.ClientKey)
		if err != nil {
			s.writeError("invalid client key")
			return
		}
		clientKey = parsed
	}

	if _, err := provider.SendMessage(context.Background(), s.viewer, key, frame.Content, contentType, clientKey); err != nil {
		s.writeError("failed to send message")
	}
}

// resync re-plans the session scope and replaces the preview index from the
// message store. Runs on subscribe and after every filter change; a client
// that reconnects after a drop goes through it again, so missed events are
// never assumed to mean no changes. Events delivered while the resync is in
// flight are buffered by apply and replayed after the rebuild.
func (s *Subscriber) resync(provider ChatProvider, planner *services.ViewPlanner) error {
	ctx := context.Background()
	filter := s.Filter()

	s.beginResync()

	scope, ok, err := planner.PlanScope(ctx, s.viewer, filter)
	if err != nil {
		s.finishResync()
		return err
	}
	s.setScope(ScopeFrom(s.viewer, scope, ok))

	previews := []models.ConversationPreview{}
	if ok {
		previews, err = provider.ListConversations(ctx, s.viewer, filter)
		if err != nil {
			s.finishResync()
			return err
		}
	}
	s.index.Rebuild(previews)

	payload, err := json.Marshal(serverFrame{
		Type:          "snapshot",
		Conversations: previews,
		Timestamp:     services.FormatChatTimestamp(time.Now()),
	})
	if err != nil {
		s.finishResync()
		return err
	}
	s.enqueue(payload)

	s.finishResync()
	return nil
}

func (s *Subscriber) beginResync() {
	s.mu.Lock()
	s.resyncing = true
	s.pending = nil
	s.mu.Unlock()
}

// finishResync replays events buffered during the resync in arrival order.
// The flag only clears once the buffer drains empty under the lock, so a
// concurrently delivered event either lands in the buffer and is replayed
// here, or is applied directly after the flag clears; per-key order holds
// either way.
func (s *Subscriber) finishResync() {
	for {
		s.mu.Lock()
		if len(s.pending) == 0 {
			s.resyncing = false
			s.mu.Unlock()
			return
		}
		batch := s.pending
		s.pending = nil
		s.mu.Unlock()

		for _, event := range batch {
			// The scope may have changed mid-resync; recheck before replay.
			if !s.Scope().Covers(event) {
				continue
			}
			if payload, ok := s.frame(event); ok {
				s.enqueue(payload)
			}
		}
	}
}

func (s *Subscriber) WritePump() {
	defer func() {
		_ = s.conn.Close()
	}()

	for payload := range s.send {
		if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}

// enqueue pushes a frame from the session's own goroutine. The send happens
// under the mutex that also guards closeSend, so it can never race the hub
// closing the channel.
func (s *Subscriber) enqueue(payload []byte) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	select {
	case s.send <- payload:
		s.mu.Unlock()
	default:
		s.mu.Unlock()
		s.hub.Unregister(s)
	}
}

// closeSend is called only by the hub goroutine when it drops the
// subscriber. Idempotent, so unregister after a slow-consumer drop is safe.
func (s *Subscriber) closeSend() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.send)
}

func (s *Subscriber) writeError(message string) {
	payload, err := json.Marshal(serverFrame{
		Type:      "error",
		Error:     message,
		Timestamp: services.FormatChatTimestamp(time.Now()),
	})
	if err != nil {
		return
	}
	s.enqueue(payload)
}
