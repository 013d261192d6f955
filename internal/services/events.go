package services

import "github.com/lucascarlosmeuads/Trafego-Porcents-sub001/internal/models"

type EventKind string

const (
	EventNewMessage       EventKind = "new_message"
	EventReadStateChanged EventKind = "read_state_changed"
)

// ConversationEvent describes one committed change to one conversation. It
// carries enough to update a single preview incrementally: the appended
// message for new_message, or the sender role whose messages were marked
// read for read_state_changed. Customer fields ride along so subscribers
// can evaluate directory-based filters without another lookup.
type ConversationEvent struct {
	Kind           EventKind              `json:"kind"`
	Key            models.ConversationKey `json:"conversation"`
	CustomerName   string                 `json:"customer_name"`
	CampaignStatus string                 `json:"campaign_status"`
	Message        *models.ScopedMessage  `json:"message,omitempty"`
	ReadSender     models.Role            `json:"read_sender,omitempty"`
}

// EventPublisher is implemented by the live update hub. Publishing happens
// strictly after the underlying write commits, so subscribers never observe
// an in-flight change.
type EventPublisher interface {
	Publish(event ConversationEvent)
}
