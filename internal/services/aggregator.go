package services

import (
	"sort"
	"strings"

	"github.com/lucascarlosmeuads/Trafego-Porcents-sub001/internal/models"
)

// BuildPreviews derives one ConversationPreview per conversation key from a
// set of already-scoped messages. It is a pure function of its input and may
// run redundantly for any number of viewers without coordination.
//
// The latest message is chosen by created_at with ids breaking ties, so two
// same-millisecond inserts still resolve deterministically. Unread counts
// are taken relative to the viewer's counterpart role; administrators count
// the manager side since they monitor manager responsiveness.
func BuildPreviews(viewerRole models.Role, messages []models.ScopedMessage) []models.ConversationPreview {
	unreadFrom := viewerRole.UnreadSender()
	previews := make(map[models.ConversationKey]*models.ConversationPreview)

	for i := range messages {
		message := &messages[i]
		if !aggregatable(message) {
			continue
		}

		key := message.Key()
		preview, ok := previews[key]
		if !ok {
			preview = &models.ConversationPreview{
				ConversationKey: key,
				CustomerName:    message.CustomerName,
				CampaignStatus:  message.CampaignStatus,
			}
			previews[key] = preview
		}

		if newerThan(message.Message, preview.LastMessage) {
			preview.LastMessage = snapshotOf(message.Message)
		}
		if message.SenderRole == unreadFrom && message.ReadAt == nil {
			preview.UnreadCount++
		}
	}

	list := make([]models.ConversationPreview, 0, len(previews))
	for _, preview := range previews {
		preview.HasUnread = preview.UnreadCount > 0
		list = append(list, *preview)
	}

	SortPreviews(list)
	return list
}

// SortPreviews orders previews by most recent activity, newest first. Ties
// on the timestamp fall back to the higher message id so the order is stable
// across recomputations.
func SortPreviews(previews []models.ConversationPreview) {
	sort.SliceStable(previews, func(i, j int) bool {
		a, b := previews[i].LastMessage, previews[j].LastMessage
		if a.CreatedAt.Equal(b.CreatedAt) {
			return a.ID > b.ID
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
}

// aggregatable is the data-quality guard: records with a blank customer
// identifier or an unnamed customer never reach previews. They stay in
// storage untouched.
func aggregatable(message *models.ScopedMessage) bool {
	return strings.TrimSpace(message.CustomerID) != "" &&
		strings.TrimSpace(message.CustomerName) != ""
}

func newerThan(message models.Message, last models.LastMessage) bool {
	if last.ID == 0 {
		return true
	}
	if message.CreatedAt.Equal(last.CreatedAt) {
		return message.ID > last.ID
	}
	return message.CreatedAt.After(last.CreatedAt)
}

func snapshotOf(message models.Message) models.LastMessage {
	return models.LastMessage{
		ID:          message.ID,
		Content:     message.Content,
		ContentType: message.ContentType,
		SenderRole:  message.SenderRole,
		CreatedAt:   message.CreatedAt,
	}
}
