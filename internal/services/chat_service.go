package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lucascarlosmeuads/Trafego-Porcents-sub001/internal/models"
	"github.com/lucascarlosmeuads/Trafego-Porcents-sub001/internal/repository"
)

type messageStore interface {
	Append(ctx context.Context, message *models.Message) error
	ListByScope(ctx context.Context, scope repository.MessageScope) ([]models.ScopedMessage, error)
	MarkConversationRead(ctx context.Context, key models.ConversationKey, senderRole models.Role) (int64, error)
}

// ChatService implements the exposed conversation operations: listing
// scoped previews, opening a conversation (which marks it read), sending
// messages and explicit mark-as-read. Every mutation publishes an event
// after its transaction commits.
type ChatService struct {
	db           *pgxpool.Pool
	messageRepo  messageStore
	customerRepo customerReader
	planner      *ViewPlanner
	events       EventPublisher
}

func NewChatService(
	db *pgxpool.Pool,
	messageRepo messageStore,
	customerRepo customerReader,
	planner *ViewPlanner,
	events EventPublisher,
) *ChatService {
	return &ChatService{
		db:           db,
		messageRepo:  messageRepo,
		customerRepo: customerRepo,
		planner:      planner,
		events:       events,
	}
}

func (s *ChatService) ListConversations(
	ctx context.Context,
	viewer models.ViewerContext,
	filter models.ConversationFilter,
) ([]models.ConversationPreview, error) {
	if !viewer.Role.Valid() {
		return nil, ErrForbidden
	}

	scope, ok, err := s.planner.PlanScope(ctx, viewer, filter)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []models.ConversationPreview{}, nil
	}

	messages, err := s.messageRepo.ListByScope(ctx, scope)
	if err != nil {
		return nil, err
	}

	return BuildPreviews(viewer.Role, messages), nil
}

// ListMessages returns one page of a conversation, ascending, and marks the
// whole conversation read for the viewer. Paging and the read transition
// share a transaction so the returned read flags match what was committed.
func (s *ChatService) ListMessages(
	ctx context.Context,
	viewer models.ViewerContext,
	key models.ConversationKey,
	page int,
	limit int,
) ([]models.Message, int, error) {
	if !viewer.Role.Valid() {
		return nil, 0, ErrForbidden
	}
	if page <= 0 || limit <= 0 {
		return nil, 0, ErrInvalidInput
	}
	if err := s.planner.AuthorizeKey(viewer, key); err != nil {
		return nil, 0, err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, 0, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txMessageRepo := repository.NewMessageRepository(tx)

	messages, total, err := txMessageRepo.ListByKey(ctx, key, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, err
	}

	readSender := viewer.Role.UnreadSender()
	affected, err := txMessageRepo.MarkConversationRead(ctx, key, readSender)
	if err != nil {
		return nil, 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, 0, err
	}

	now := time.Now().UTC()
	for i := range messages {
		if messages[i].SenderRole == readSender && messages[i].ReadAt == nil {
			messages[i].ReadAt = &now
		}
	}

	if affected > 0 {
		s.publishReadState(ctx, key, readSender)
	}

	return messages, total, nil
}

// MarkConversationRead is the explicit "mark all as read" action. It is
// idempotent: a second call finds nothing to transition and publishes
// nothing.
func (s *ChatService) MarkConversationRead(
	ctx context.Context,
	viewer models.ViewerContext,
	key models.ConversationKey,
) error {
	if !viewer.Role.Valid() {
		return ErrForbidden
	}
	if err := s.planner.AuthorizeKey(viewer, key); err != nil {
		return err
	}

	readSender := viewer.Role.UnreadSender()
	affected, err := s.messageRepo.MarkConversationRead(ctx, key, readSender)
	if err != nil {
		return fmt.Errorf("mark conversation read: %w", err)
	}

	if affected > 0 {
		s.publishReadState(ctx, key, readSender)
	}
	return nil
}

// SendMessage appends a message to the conversation. The clientKey makes
// retries idempotent; passing uuid.Nil lets the server mint one, at the cost
// of duplicate delivery if the caller retries blindly.
func (s *ChatService) SendMessage(
	ctx context.Context,
	viewer models.ViewerContext,
	key models.ConversationKey,
	content string,
	contentType models.ContentType,
	clientKey uuid.UUID,
) (*models.Message, error) {
	if !viewer.Role.CanSend() {
		return nil, ErrForbidden
	}
	if !contentType.Valid() {
		return nil, ErrInvalidInput
	}

	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return nil, ErrInvalidInput
	}

	if err := s.planner.AuthorizeKey(viewer, key); err != nil {
		return nil, err
	}

	customer, err := s.customerRepo.GetByEmail(ctx, key.CustomerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCustomerNotFound
		}
		return nil, err
	}

	// Sends go to the customer's current conversation only. After a
	// reassignment the old key stays readable but accepts no new messages.
	switch viewer.Role {
	case models.RoleCustomer:
		if strings.TrimSpace(customer.ManagerID) == "" {
			return nil, ErrNoManagerAssigned
		}
		if key.ManagerID != customer.ManagerID {
			return nil, ErrScopeViolation
		}
	case models.RoleManager:
		if customer.ManagerID != viewer.ID {
			return nil, ErrScopeViolation
		}
	}

	if clientKey == uuid.Nil {
		clientKey = uuid.New()
	}

	message := &models.Message{
		ClientKey:   clientKey,
		CustomerID:  key.CustomerID,
		ManagerID:   key.ManagerID,
		SenderRole:  viewer.Role,
		Content:     trimmed,
		ContentType: contentType,
	}

	if err := s.messageRepo.Append(ctx, message); err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}

	if s.events != nil {
		s.events.Publish(ConversationEvent{
			Kind:           EventNewMessage,
			Key:            key,
			CustomerName:   customer.DisplayName,
			CampaignStatus: customer.CampaignStatus,
			Message: &models.ScopedMessage{
				Message:        *message,
				CustomerName:   customer.DisplayName,
				CampaignStatus: customer.CampaignStatus,
			},
		})
	}

	return message, nil
}

func (s *ChatService) publishReadState(ctx context.Context, key models.ConversationKey, readSender models.Role) {
	if s.events == nil {
		return
	}

	event := ConversationEvent{
		Kind:       EventReadStateChanged,
		Key:        key,
		ReadSender: readSender,
	}
	if customer, err := s.customerRepo.GetByEmail(ctx, key.CustomerID); err == nil {
		event.CustomerName = customer.DisplayName
		event.CampaignStatus = customer.CampaignStatus
	}

	s.events.Publish(event)
}

func FormatChatTimestamp(ts time.Time) string {
	return ts.UTC().Format(time.RFC3339)
}
