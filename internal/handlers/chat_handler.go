package handlers

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lucascarlosmeuads/Trafego-Porcents-sub001/internal/models"
	"github.com/lucascarlosmeuads/Trafego-Porcents-sub001/internal/services"
	chatws "github.com/lucascarlosmeuads/Trafego-Porcents-sub001/internal/websocket"
	"github.com/lucascarlosmeuads/Trafego-Porcents-sub001/pkg/utils"
)

type chatApplicationService interface {
	ListConversations(ctx context.Context, viewer models.ViewerContext, filter models.ConversationFilter) ([]models.ConversationPreview, error)
	ListMessages(ctx context.Context, viewer models.ViewerContext, key models.ConversationKey, page int, limit int) ([]models.Message, int, error)
	MarkConversationRead(ctx context.Context, viewer models.ViewerContext, key models.ConversationKey) error
	SendMessage(ctx context.Context, viewer models.ViewerContext, key models.ConversationKey, content string, contentType models.ContentType, clientKey uuid.UUID) (*models.Message, error)
}

type ChatHandler struct {
	service   chatApplicationService
	planner   *services.ViewPlanner
	hub       *chatws.Hub
	storage   services.StorageService
	jwtSecret string
}

func NewChatHandler(
	service chatApplicationService,
	planner *services.ViewPlanner,
	hub *chatws.Hub,
	storage services.StorageService,
	jwtSecret string,
) *ChatHandler {
	return &ChatHandler{
		service:   service,
		planner:   planner,
		hub:       hub,
		storage:   storage,
		jwtSecret: jwtSecret,
	}
}

type sendMessageRequest struct {
	CustomerID  string `json:"customer_id"`
	ManagerID   string `json:"manager_id"`
	Content     string `json:"content"`
	ContentType string `json:"content_type"`
	ClientKey   string `json:"client_key"`
}

type markReadRequest struct {
	CustomerID string `json:"customer_id"`
	ManagerID  string `json:"manager_id"`
}

func (h *ChatHandler) ListConversations(c *fiber.Ctx) error {
	viewer, err := viewerFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	filter := models.ConversationFilter{
		ManagerID:        strings.TrimSpace(c.Query("manager")),
		Status:           strings.TrimSpace(c.Query("status")),
		Search:           strings.TrimSpace(c.Query("search")),
		Unassigned:       c.QueryBool("unassigned"),
		ManagingManagers: c.QueryBool("managing_managers"),
	}

	conversations, err := h.service.ListConversations(c.Context(), viewer, filter)
	if err != nil {
		return mapChatError(c, err)
	}

	return c.JSON(fiber.Map{"conversations": conversations})
}

// GetMessages opens a conversation: it returns one ascending page and marks
// the conversation read for the viewer.
func (h *ChatHandler) GetMessages(c *fiber.Ctx) error {
	viewer, err := viewerFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	key, err := keyFromQuery(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid conversation key"})
	}

	page := parsePositiveInt(c.Query("page"), 1)
	limit := parsePositiveInt(c.Query("limit"), defaultPageLimit)
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	messages, total, err := h.service.ListMessages(c.Context(), viewer, key, page, limit)
	if err != nil {
		return mapChatError(c, err)
	}

	return c.JSON(fiber.Map{
		"messages":   messages,
		"pagination": buildPaginationMeta(page, limit, total),
	})
}

func (h *ChatHandler) MarkRead(c *fiber.Ctx) error {
	viewer, err := viewerFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var req markReadRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	key := models.ConversationKey{CustomerID: req.CustomerID, ManagerID: req.ManagerID}
	if err := h.service.MarkConversationRead(c.Context(), viewer, key); err != nil {
		return mapChatError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *ChatHandler) SendMessage(c *fiber.Ctx) error {
	viewer, err := viewerFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var req sendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	clientKey, err := parseClientKey(req.ClientKey)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid client key"})
	}

	contentType := models.ContentType(req.ContentType)
	if req.ContentType == "" {
		contentType = models.ContentText
	}

	key := models.ConversationKey{CustomerID: req.CustomerID, ManagerID: req.ManagerID}
	message, err := h.service.SendMessage(c.Context(), viewer, key, req.Content, contentType, clientKey)
	if err != nil {
		return mapChatError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": message})
}

// SendAudioMessage uploads a voice clip through the storage collaborator and
// sends the returned URL as an audio message.
func (h *ChatHandler) SendAudioMessage(c *fiber.Ctx) error {
	viewer, err := viewerFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	if h.storage == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "Audio storage is not configured"})
	}

	clientKey, err := parseClientKey(c.FormValue("client_key"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid client key"})
	}
	if clientKey == uuid.Nil {
		clientKey = uuid.New()
	}

	fileHeader, err := c.FormFile("audio")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Audio file is required"})
	}

	file, err := fileHeader.Open()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Failed to read audio file"})
	}
	defer file.Close()

	filename := clientKey.String() + filepath.Ext(fileHeader.Filename)
	fileURL, err := h.storage.UploadAudio(c.Context(), file, filename)
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "Failed to upload audio"})
	}

	key := models.ConversationKey{
		CustomerID: c.FormValue("customer_id"),
		ManagerID:  c.FormValue("manager_id"),
	}
	message, err := h.service.SendMessage(c.Context(), viewer, key, fileURL, models.ContentAudio, clientKey)
	if err != nil {
		// The clip is orphaned if the send is refused; best effort cleanup.
		_ = h.storage.DeleteFile(c.Context(), fileURL)
		return mapChatError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": message})
}

func (h *ChatHandler) WebSocketAuth(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return c.Status(fiber.StatusUpgradeRequired).JSON(fiber.Map{"error": "WebSocket upgrade required"})
	}

	claims, err := h.parseWSClaims(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid or expired token"})
	}

	c.Locals("user_id", claims.UserID)
	c.Locals("email", claims.Email)
	c.Locals("role", claims.Role)
	return c.Next()
}

func (h *ChatHandler) HandleWebSocket(conn *websocket.Conn) {
	email, _ := conn.Locals("email").(string)
	role, _ := conn.Locals("role").(string)

	viewer := models.ViewerContext{Role: models.Role(role), ID: email}
	if !viewer.Role.Valid() || viewer.ID == "" {
		_ = conn.Close()
		return
	}

	subscriber := chatws.NewSubscriber(h.hub, conn, viewer)
	h.hub.Register(subscriber)
	go subscriber.WritePump()
	subscriber.ReadPump(h.service, h.planner)
}

func (h *ChatHandler) parseWSClaims(c *fiber.Ctx) (*utils.Claims, error) {
	tokenString := strings.TrimSpace(c.Query("token"))
	if tokenString == "" {
		authHeader := strings.TrimSpace(c.Get("Authorization"))
		if authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) == 2 && parts[0] == "Bearer" {
				tokenString = parts[1]
			}
		}
	}

	if tokenString == "" {
		return nil, errors.New("missing token")
	}

	return utils.ValidateToken(tokenString, h.jwtSecret)
}

func viewerFromCtx(c *fiber.Ctx) (models.ViewerContext, error) {
	role, ok := c.Locals("role").(string)
	if !ok || !models.Role(role).Valid() {
		return models.ViewerContext{}, errors.New("missing role")
	}
	email, ok := c.Locals("email").(string)
	if !ok || strings.TrimSpace(email) == "" {
		return models.ViewerContext{}, errors.New("missing email")
	}
	return models.ViewerContext{Role: models.Role(role), ID: email}, nil
}

func keyFromQuery(c *fiber.Ctx) (models.ConversationKey, error) {
	customerID := strings.TrimSpace(c.Query("customer_id"))
	if customerID == "" {
		return models.ConversationKey{}, errors.New("missing customer id")
	}
	// manager_id may legitimately be empty: the unassigned bucket.
	return models.ConversationKey{
		CustomerID: customerID,
		ManagerID:  strings.TrimSpace(c.Query("manager_id")),
	}, nil
}

func parseClientKey(raw string) (uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return uuid.Nil, nil
	}
	return uuid.Parse(raw)
}

func mapChatError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrScopeViolation):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Conversation is outside your scope"})
	case errors.Is(err, services.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	case errors.Is(err, services.ErrInvalidInput), errors.Is(err, services.ErrInvalidMessage):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request"})
	case errors.Is(err, services.ErrNoManagerAssigned):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "No manager assigned"})
	case errors.Is(err, services.ErrCustomerNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Customer not found"})
	case errors.Is(err, pgx.ErrNoRows):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Conversation not found"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to process chat request"})
	}
}
