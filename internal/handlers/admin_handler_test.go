package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/lucascarlosmeuads/Trafego-Porcents-sub001/internal/models"
)

type stubManagerLister struct {
	managers []models.User
	users    map[string]*models.User
	err      error
}

func (s *stubManagerLister) GetByEmail(_ context.Context, email string) (*models.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	user, ok := s.users[email]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return user, nil
}

func (s *stubManagerLister) ListByRole(_ context.Context, _ models.Role) ([]models.User, error) {
	return s.managers, s.err
}

func knownManagers() map[string]*models.User {
	return map[string]*models.User{
		"m1@x.com": {ID: 1, Email: "m1@x.com", Role: models.RoleManager},
		"c9@x.com": {ID: 9, Email: "c9@x.com", Role: models.RoleCustomer},
	}
}

type stubCustomerDirectory struct {
	customers []models.Customer
	err       error

	gotEmail   string
	gotManager string
	gotStatus  string
}

func (s *stubCustomerDirectory) AssignManager(_ context.Context, email string, managerID string) error {
	s.gotEmail = email
	s.gotManager = managerID
	return s.err
}

func (s *stubCustomerDirectory) SetCampaignStatus(_ context.Context, email string, status string) error {
	s.gotEmail = email
	s.gotStatus = status
	return s.err
}

func (s *stubCustomerDirectory) ListByManager(_ context.Context, managerID string) ([]models.Customer, error) {
	s.gotManager = managerID
	return s.customers, s.err
}

func newAdminTestApp(users managerLister, customers customerDirectory, role, email string) *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		if role != "" {
			c.Locals("role", role)
		}
		if email != "" {
			c.Locals("email", email)
		}
		return c.Next()
	})

	handler := NewAdminHandler(users, customers)
	app.Get("/api/v1/admin/managers", handler.ListManagers)
	app.Get("/api/v1/admin/customers", handler.ListCustomers)
	app.Put("/api/v1/admin/customers/:email/manager", handler.AssignManager)
	app.Put("/api/v1/admin/customers/:email/status", handler.SetCampaignStatus)
	return app
}

func TestListManagersRequiresAdmin(t *testing.T) {
	app := newAdminTestApp(&stubManagerLister{}, &stubCustomerDirectory{}, "manager", "m1@x.com")

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/admin/managers", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
}

func TestListManagersReturnsManagerEmails(t *testing.T) {
	lister := &stubManagerLister{managers: []models.User{
		{ID: 1, Email: "m1@x.com", Role: models.RoleManager},
		{ID: 2, Email: "m2@x.com", Role: models.RoleManager},
	}}
	app := newAdminTestApp(lister, &stubCustomerDirectory{}, "admin", "admin@x.com")

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/admin/managers", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	body := decodeBody(t, resp)
	managers, ok := body["managers"].([]any)
	if !ok || len(managers) != 2 {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestListCustomersPinsManagerToSelf(t *testing.T) {
	directory := &stubCustomerDirectory{}
	app := newAdminTestApp(&stubManagerLister{}, directory, "manager", "m1@x.com")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/customers?manager=m2%40x.com", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if directory.gotManager != "m1@x.com" {
		t.Fatalf("manager filter not pinned: %q", directory.gotManager)
	}
}

func TestListCustomersAdminMayFilterAnyManager(t *testing.T) {
	directory := &stubCustomerDirectory{}
	app := newAdminTestApp(&stubManagerLister{}, directory, "admin", "admin@x.com")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/customers?manager=m2%40x.com", nil)
	if _, err := app.Test(req); err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if directory.gotManager != "m2@x.com" {
		t.Fatalf("manager filter not forwarded: %q", directory.gotManager)
	}
}

func TestListCustomersRefusesCustomers(t *testing.T) {
	app := newAdminTestApp(&stubManagerLister{}, &stubCustomerDirectory{}, "customer", "c1@x.com")

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/admin/customers", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
}

func TestAssignManager(t *testing.T) {
	directory := &stubCustomerDirectory{}
	app := newAdminTestApp(&stubManagerLister{users: knownManagers()}, directory, "admin", "admin@x.com")

	req := httptest.NewRequest(http.MethodPut, "/api/v1/admin/customers/c1%40x.com/manager", strings.NewReader(`{"manager_id":"m1@x.com"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	if directory.gotEmail != "c1@x.com" || directory.gotManager != "m1@x.com" {
		t.Fatalf("assignment not forwarded: %q %q", directory.gotEmail, directory.gotManager)
	}
}

func TestAssignManagerValidation(t *testing.T) {
	app := newAdminTestApp(&stubManagerLister{}, &stubCustomerDirectory{}, "admin", "admin@x.com")

	// Not an email address.
	req := httptest.NewRequest(http.MethodPut, "/api/v1/admin/customers/not-an-email/manager", strings.NewReader(`{"manager_id":"m1@x.com"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad email, got %d", resp.StatusCode)
	}

	// Missing manager id.
	req = httptest.NewRequest(http.MethodPut, "/api/v1/admin/customers/c1%40x.com/manager", strings.NewReader(`{"manager_id":"  "}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank manager, got %d", resp.StatusCode)
	}
}

func TestAssignManagerUnknownCustomer(t *testing.T) {
	app := newAdminTestApp(&stubManagerLister{users: knownManagers()}, &stubCustomerDirectory{err: pgx.ErrNoRows}, "admin", "admin@x.com")

	req := httptest.NewRequest(http.MethodPut, "/api/v1/admin/customers/ghost%40x.com/manager", strings.NewReader(`{"manager_id":"m1@x.com"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestAssignManagerRejectsNonManagerTarget(t *testing.T) {
	app := newAdminTestApp(&stubManagerLister{users: knownManagers()}, &stubCustomerDirectory{}, "admin", "admin@x.com")

	// Unknown manager account.
	req := httptest.NewRequest(http.MethodPut, "/api/v1/admin/customers/c1%40x.com/manager", strings.NewReader(`{"manager_id":"ghost@x.com"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown manager, got %d", resp.StatusCode)
	}

	// Existing account with the wrong role.
	req = httptest.NewRequest(http.MethodPut, "/api/v1/admin/customers/c1%40x.com/manager", strings.NewReader(`{"manager_id":"c9@x.com"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-manager target, got %d", resp.StatusCode)
	}
}

func TestSetCampaignStatus(t *testing.T) {
	directory := &stubCustomerDirectory{}
	app := newAdminTestApp(&stubManagerLister{}, directory, "admin", "admin@x.com")

	req := httptest.NewRequest(http.MethodPut, "/api/v1/admin/customers/c1%40x.com/status", strings.NewReader(`{"status":"campaign live"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	if directory.gotEmail != "c1@x.com" || directory.gotStatus != "campaign live" {
		t.Fatalf("status not forwarded: %q %q", directory.gotEmail, directory.gotStatus)
	}
}
