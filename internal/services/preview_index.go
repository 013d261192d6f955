package services

import (
	"strings"
	"sync"

	"github.com/lucascarlosmeuads/Trafego-Porcents-sub001/internal/models"
)

// PreviewIndex is the incrementally maintained conversation list one
// subscriber session holds in memory. Events touch exactly one entry;
// a resynchronization replaces the whole index from the message store.
type PreviewIndex struct {
	mu         sync.Mutex
	viewerRole models.Role
	entries    map[models.ConversationKey]models.ConversationPreview
}

func NewPreviewIndex(viewerRole models.Role) *PreviewIndex {
	return &PreviewIndex{
		viewerRole: viewerRole,
		entries:    make(map[models.ConversationKey]models.ConversationPreview),
	}
}

// Rebuild discards the index and installs previews derived from the store.
// Used on subscribe and after a dropped connection, when silence cannot be
// trusted to mean no changes.
func (ix *PreviewIndex) Rebuild(previews []models.ConversationPreview) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.entries = make(map[models.ConversationKey]models.ConversationPreview, len(previews))
	for _, preview := range previews {
		ix.entries[preview.ConversationKey] = preview
	}
}

// Snapshot returns the current previews ordered by most recent activity.
func (ix *PreviewIndex) Snapshot() []models.ConversationPreview {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	list := make([]models.ConversationPreview, 0, len(ix.entries))
	for _, preview := range ix.entries {
		list = append(list, preview)
	}
	SortPreviews(list)
	return list
}

// Apply folds one event into the index and returns the updated preview.
// The boolean is false when the event changes nothing visible to this
// viewer, in which case no frame needs to be pushed.
func (ix *PreviewIndex) Apply(event ConversationEvent) (models.ConversationPreview, bool) {
	switch event.Kind {
	case EventNewMessage:
		return ix.applyMessage(event)
	case EventReadStateChanged:
		return ix.applyReadState(event)
	default:
		return models.ConversationPreview{}, false
	}
}

func (ix *PreviewIndex) applyMessage(event ConversationEvent) (models.ConversationPreview, bool) {
	if event.Message == nil {
		return models.ConversationPreview{}, false
	}
	message := event.Message
	if strings.TrimSpace(message.CustomerID) == "" || strings.TrimSpace(message.CustomerName) == "" {
		return models.ConversationPreview{}, false
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	key := message.Key()
	preview, ok := ix.entries[key]
	if !ok {
		preview = models.ConversationPreview{
			ConversationKey: key,
			CustomerName:    message.CustomerName,
			CampaignStatus:  message.CampaignStatus,
		}
	} else if message.ID <= preview.LastMessage.ID {
		// Already reflected, e.g. an event that raced a rebuild. Ids are
		// monotonic and events arrive per key in commit order, so anything
		// at or below the last seen id is a duplicate.
		return preview, false
	}

	if newerThan(message.Message, preview.LastMessage) {
		preview.LastMessage = snapshotOf(message.Message)
	}
	if message.SenderRole == ix.viewerRole.UnreadSender() && message.ReadAt == nil {
		preview.UnreadCount++
	}
	preview.HasUnread = preview.UnreadCount > 0

	ix.entries[key] = preview
	return preview, true
}

func (ix *PreviewIndex) applyReadState(event ConversationEvent) (models.ConversationPreview, bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	preview, ok := ix.entries[event.Key]
	if !ok {
		return models.ConversationPreview{}, false
	}
	if event.ReadSender != ix.viewerRole.UnreadSender() || preview.UnreadCount == 0 {
		return preview, false
	}

	preview.UnreadCount = 0
	preview.HasUnread = false
	ix.entries[event.Key] = preview
	return preview, true
}
