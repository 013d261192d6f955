package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleManager  Role = "manager"
	RoleAdmin    Role = "admin"
)

func (r Role) Valid() bool {
	return r == RoleCustomer || r == RoleManager || r == RoleAdmin
}

// CanSend reports whether the role may author messages. Administrators
// observe conversations but never participate in them.
func (r Role) CanSend() bool {
	return r == RoleCustomer || r == RoleManager
}

// UnreadSender returns the sender role whose unread messages count against
// the given viewer. Administrators monitor manager responsiveness, so their
// unread counts track the manager side of every conversation.
func (r Role) UnreadSender() Role {
	switch r {
	case RoleCustomer:
		return RoleManager
	default:
		return RoleCustomer
	}
}

type ContentType string

const (
	ContentText  ContentType = "text"
	ContentAudio ContentType = "audio"
)

func (t ContentType) Valid() bool {
	return t == ContentText || t == ContentAudio
}

// ConversationKey identifies one conversation: the fixed pair of a customer
// and that customer's manager. An empty ManagerID is a legal key and groups
// messages from customers without an assigned manager.
type ConversationKey struct {
	CustomerID string `json:"customer_id"`
	ManagerID  string `json:"manager_id"`
}

func (k ConversationKey) Unassigned() bool {
	return strings.TrimSpace(k.ManagerID) == ""
}

type Message struct {
	ID          int64       `json:"id"`
	ClientKey   uuid.UUID   `json:"client_key"`
	CustomerID  string      `json:"customer_id"`
	ManagerID   string      `json:"manager_id"`
	SenderRole  Role        `json:"sender_role"`
	Content     string      `json:"content"`
	ContentType ContentType `json:"content_type"`
	CreatedAt   time.Time   `json:"created_at"`
	ReadAt      *time.Time  `json:"read_at,omitempty"`
}

func (m Message) Key() ConversationKey {
	return ConversationKey{CustomerID: m.CustomerID, ManagerID: m.ManagerID}
}

// ScopedMessage is a message row joined with its customer directory entry,
// as returned by scope queries for aggregation.
type ScopedMessage struct {
	Message
	CustomerName   string `json:"customer_name"`
	CampaignStatus string `json:"campaign_status"`
}

// LastMessage is the snapshot of the most recent message kept on a preview.
type LastMessage struct {
	ID          int64       `json:"id"`
	Content     string      `json:"content"`
	ContentType ContentType `json:"content_type"`
	SenderRole  Role        `json:"sender_role"`
	CreatedAt   time.Time   `json:"created_at"`
}

// ConversationPreview is derived per viewer, never persisted.
type ConversationPreview struct {
	ConversationKey
	CustomerName   string      `json:"customer_name"`
	CampaignStatus string      `json:"campaign_status"`
	LastMessage    LastMessage `json:"last_message"`
	UnreadCount    int         `json:"unread_count"`
	HasUnread      bool        `json:"has_unread"`
}

// ViewerContext is the resolved identity a request acts under. ID is the
// viewer's email for customers and managers; for administrators it is only
// informational since their scope is not keyed to it.
type ViewerContext struct {
	Role Role
	ID   string
}

// ConversationFilter narrows an administrator's conversation list. All
// fields are ignored for customer and manager viewers.
type ConversationFilter struct {
	ManagerID        string
	Status           string
	Search           string
	Unassigned       bool
	ManagingManagers bool
}
