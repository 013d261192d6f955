package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lucascarlosmeuads/Trafego-Porcents-sub001/internal/models"
)

type MessageRepository struct {
	db DBTX
}

func NewMessageRepository(db DBTX) *MessageRepository {
	return &MessageRepository{db: db}
}

// MessageScope restricts a message query to one viewer's allowed set.
// CustomerID and Status match exactly when non-empty. ManagerID is a
// three-way switch: nil means any manager, a pointer to a non-empty string
// narrows to that manager, and a pointer to "" selects only conversations
// without an assigned manager. Search is a case-insensitive substring match
// on the customer's display name or email.
type MessageScope struct {
	CustomerID string
	ManagerID  *string
	Status     string
	Search     string
}

const messageColumns = `id, client_key, customer_id, manager_id, sender_role, content, content_type, created_at, read_at`

// Append persists a message. The client-generated key makes retried sends
// idempotent: a duplicate append returns the previously stored row.
func (r *MessageRepository) Append(ctx context.Context, message *models.Message) error {
	query := `
		INSERT INTO messages (client_key, customer_id, manager_id, sender_role, content, content_type)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (client_key) DO NOTHING
		RETURNING id, created_at
	`

	err := r.db.QueryRow(ctx, query,
		message.ClientKey,
		message.CustomerID,
		message.ManagerID,
		message.SenderRole,
		message.Content,
		message.ContentType,
	).Scan(&message.ID, &message.CreatedAt)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	existing, err := r.GetByClientKey(ctx, message.ClientKey)
	if err != nil {
		return err
	}
	*message = *existing
	return nil
}

func (r *MessageRepository) GetByClientKey(ctx context.Context, clientKey uuid.UUID) (*models.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE client_key = $1
	`

	var message models.Message
	err := r.db.QueryRow(ctx, query, clientKey).Scan(
		&message.ID,
		&message.ClientKey,
		&message.CustomerID,
		&message.ManagerID,
		&message.SenderRole,
		&message.Content,
		&message.ContentType,
		&message.CreatedAt,
		&message.ReadAt,
	)
	if err != nil {
		return nil, err
	}
	return &message, nil
}

// ListByKey returns one conversation's messages in ascending order together
// with the total count for pagination.
func (r *MessageRepository) ListByKey(
	ctx context.Context,
	key models.ConversationKey,
	limit int,
	offset int,
) ([]models.Message, int, error) {
	totalQuery := `
		SELECT COUNT(*)
		FROM messages
		WHERE customer_id = $1 AND manager_id = $2
	`

	var total int
	if err := r.db.QueryRow(ctx, totalQuery, key.CustomerID, key.ManagerID).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE customer_id = $1 AND manager_id = $2
		ORDER BY created_at ASC, id ASC
		LIMIT $3 OFFSET $4
	`

	rows, err := r.db.Query(ctx, query, key.CustomerID, key.ManagerID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		var message models.Message
		if err := scanMessage(rows, &message); err != nil {
			return nil, 0, err
		}
		messages = append(messages, message)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return messages, total, nil
}

// ListByScope returns every message a viewer's planned scope allows, joined
// with the customer directory so previews can carry display names and
// campaign status labels. Scope narrowing happens here, before any
// aggregation sees the rows.
func (r *MessageRepository) ListByScope(ctx context.Context, scope MessageScope) ([]models.ScopedMessage, error) {
	query := `
		SELECT
			m.id,
			m.client_key,
			m.customer_id,
			m.manager_id,
			m.sender_role,
			m.content,
			m.content_type,
			m.created_at,
			m.read_at,
			COALESCE(c.display_name, ''),
			COALESCE(c.campaign_status, '')
		FROM messages m
		LEFT JOIN customers c ON c.email = m.customer_id
		WHERE ($1 = '' OR m.customer_id = $1)
		  AND (NOT $2::boolean OR m.manager_id = $3)
		  AND ($4 = '' OR COALESCE(c.campaign_status, '') = $4)
		  AND ($5 = '' OR c.display_name ILIKE '%' || $5 || '%' OR c.email ILIKE '%' || $5 || '%')
		ORDER BY m.created_at ASC, m.id ASC
	`

	managerRestricted := scope.ManagerID != nil
	managerID := ""
	if managerRestricted {
		managerID = *scope.ManagerID
	}

	rows, err := r.db.Query(ctx, query,
		scope.CustomerID,
		managerRestricted,
		managerID,
		scope.Status,
		scope.Search,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]models.ScopedMessage, 0)
	for rows.Next() {
		var message models.ScopedMessage
		if err := rows.Scan(
			&message.ID,
			&message.ClientKey,
			&message.CustomerID,
			&message.ManagerID,
			&message.SenderRole,
			&message.Content,
			&message.ContentType,
			&message.CreatedAt,
			&message.ReadAt,
			&message.CustomerName,
			&message.CampaignStatus,
		); err != nil {
			return nil, err
		}
		messages = append(messages, message)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return messages, nil
}

// MarkConversationRead sets read_at on every unread message in the
// conversation authored by senderRole. The transition is one-way and the
// statement only touches rows still null, so concurrent callers converge on
// the same final state. Returns the number of rows that transitioned.
func (r *MessageRepository) MarkConversationRead(
	ctx context.Context,
	key models.ConversationKey,
	senderRole models.Role,
) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE messages
		SET read_at = NOW()
		WHERE customer_id = $1
		  AND manager_id = $2
		  AND sender_role = $3
		  AND read_at IS NULL
	`, key.CustomerID, key.ManagerID, senderRole)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanMessage(rows pgx.Rows, message *models.Message) error {
	return rows.Scan(
		&message.ID,
		&message.ClientKey,
		&message.CustomerID,
		&message.ManagerID,
		&message.SenderRole,
		&message.Content,
		&message.ContentType,
		&message.CreatedAt,
		&message.ReadAt,
	)
}
