package handlers

import (
	"context"
	"errors"
	"net/mail"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/lucascarlosmeuads/Trafego-Porcents-sub001/internal/models"
)

type managerLister interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	ListByRole(ctx context.Context, role models.Role) ([]models.User, error)
}

type customerDirectory interface {
	AssignManager(ctx context.Context, email string, managerID string) error
	SetCampaignStatus(ctx context.Context, email string, status string) error
	ListByManager(ctx context.Context, managerID string) ([]models.Customer, error)
}

// AdminHandler is the administrator's directory surface: the manager list
// that feeds the conversation filter, manager assignment, and the campaign
// status labels consumed opaquely by the chat views.
type AdminHandler struct {
	userRepo     managerLister
	customerRepo customerDirectory
}

func NewAdminHandler(userRepo managerLister, customerRepo customerDirectory) *AdminHandler {
	return &AdminHandler{
		userRepo:     userRepo,
		customerRepo: customerRepo,
	}
}

type assignManagerRequest struct {
	ManagerID string `json:"manager_id"`
}

type campaignStatusRequest struct {
	Status string `json:"status"`
}

func (h *AdminHandler) ListManagers(c *fiber.Ctx) error {
	if !requireAdmin(c) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}

	managers, err := h.userRepo.ListByRole(c.Context(), models.RoleManager)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch managers"})
	}

	response := make([]fiber.Map, 0, len(managers))
	for _, manager := range managers {
		response = append(response, fiber.Map{
			"id":    manager.ID,
			"email": manager.Email,
		})
	}

	return c.JSON(fiber.Map{"managers": response})
}

func (h *AdminHandler) ListCustomers(c *fiber.Ctx) error {
	role, _ := c.Locals("role").(string)
	email, _ := c.Locals("email").(string)

	managerID := strings.TrimSpace(c.Query("manager"))
	switch models.Role(role) {
	case models.RoleAdmin:
	case models.RoleManager:
		// Managers only ever see their own book of customers.
		managerID = email
	default:
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}

	customers, err := h.customerRepo.ListByManager(c.Context(), managerID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch customers"})
	}

	return c.JSON(fiber.Map{"customers": customers})
}

// AssignManager sets a customer's one active manager. Messages already
// exchanged under a previous manager keep their original conversation key.
func (h *AdminHandler) AssignManager(c *fiber.Ctx) error {
	if !requireAdmin(c) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}

	customerEmail, err := emailParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid customer email"})
	}

	var req assignManagerRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	managerID := strings.TrimSpace(req.ManagerID)
	if managerID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Manager id is required"})
	}

	manager, err := h.userRepo.GetByEmail(c.Context(), managerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Manager not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to verify manager"})
	}
	if manager.Role != models.RoleManager {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Target account is not a manager"})
	}

	if err := h.customerRepo.AssignManager(c.Context(), customerEmail, managerID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Customer not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to assign manager"})
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// SetCampaignStatus records the campaign side's status label for a
// customer. The label is stored and matched verbatim; no transitions are
// validated here.
func (h *AdminHandler) SetCampaignStatus(c *fiber.Ctx) error {
	if !requireAdmin(c) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}

	customerEmail, err := emailParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid customer email"})
	}

	var req campaignStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	if err := h.customerRepo.SetCampaignStatus(c.Context(), customerEmail, strings.TrimSpace(req.Status)); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Customer not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update campaign status"})
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func requireAdmin(c *fiber.Ctx) bool {
	role, ok := c.Locals("role").(string)
	return ok && models.Role(role) == models.RoleAdmin
}

func emailParam(c *fiber.Ctx) (string, error) {
	raw, err := url.QueryUnescape(c.Params("email"))
	if err != nil {
		return "", err
	}
	parsed, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	return strings.ToLower(parsed.Address), nil
}
