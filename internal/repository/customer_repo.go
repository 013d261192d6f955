package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/lucascarlosmeuads/Trafego-Porcents-sub001/internal/models"
)

// CustomerRepository is the customer directory: display names, the single
// assigned manager per customer and the campaign status label written by the
// campaign side of the platform.
type CustomerRepository struct {
	db DBTX
}

func NewCustomerRepository(db DBTX) *CustomerRepository {
	return &CustomerRepository{db: db}
}

func (r *CustomerRepository) Create(ctx context.Context, email string, displayName string) (*models.Customer, error) {
	query := `
		INSERT INTO customers (email, display_name)
		VALUES ($1, $2)
		RETURNING id, email, display_name, COALESCE(manager_id, ''), COALESCE(campaign_status, ''), created_at, updated_at
	`

	var customer models.Customer
	err := r.db.QueryRow(ctx, query, email, displayName).Scan(
		&customer.ID,
		&customer.Email,
		&customer.DisplayName,
		&customer.ManagerID,
		&customer.CampaignStatus,
		&customer.CreatedAt,
		&customer.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

func (r *CustomerRepository) GetByEmail(ctx context.Context, email string) (*models.Customer, error) {
	query := `
		SELECT id, email, display_name, COALESCE(manager_id, ''), COALESCE(campaign_status, ''), created_at, updated_at
		FROM customers
		WHERE email = $1
	`

	var customer models.Customer
	err := r.db.QueryRow(ctx, query, email).Scan(
		&customer.ID,
		&customer.Email,
		&customer.DisplayName,
		&customer.ManagerID,
		&customer.CampaignStatus,
		&customer.CreatedAt,
		&customer.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

// AssignManager replaces the customer's active manager. Reassignment moves
// future messages to the new conversation key; existing conversations keep
// their original key.
func (r *CustomerRepository) AssignManager(ctx context.Context, email string, managerID string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE customers
		SET manager_id = $2, updated_at = NOW()
		WHERE email = $1
	`, email, managerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *CustomerRepository) SetCampaignStatus(ctx context.Context, email string, status string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE customers
		SET campaign_status = $2, updated_at = NOW()
		WHERE email = $1
	`, email, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// ListByManager returns the directory entries assigned to one manager. An
// empty managerID lists the whole directory.
func (r *CustomerRepository) ListByManager(ctx context.Context, managerID string) ([]models.Customer, error) {
	query := `
		SELECT id, email, display_name, COALESCE(manager_id, ''), COALESCE(campaign_status, ''), created_at, updated_at
		FROM customers
		WHERE ($1 = '' OR COALESCE(manager_id, '') = $1)
		ORDER BY display_name ASC, email ASC
	`

	rows, err := r.db.Query(ctx, query, managerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]models.Customer, 0)
	for rows.Next() {
		var customer models.Customer
		if err := rows.Scan(
			&customer.ID,
			&customer.Email,
			&customer.DisplayName,
			&customer.ManagerID,
			&customer.CampaignStatus,
			&customer.CreatedAt,
			&customer.UpdatedAt,
		); err != nil {
			return nil, err
		}
		customers = append(customers, customer)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return customers, nil
}
