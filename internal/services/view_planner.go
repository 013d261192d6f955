package services

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/lucascarlosmeuads/Trafego-Porcents-sub001/internal/models"
	"github.com/lucascarlosmeuads/Trafego-Porcents-sub001/internal/repository"
)

type customerReader interface {
	GetByEmail(ctx context.Context, email string) (*models.Customer, error)
}

// ViewPlanner turns a viewer's identity and filters into the message scope
// that feeds aggregation. Scoping always happens before aggregation so no
// preview is ever computed against messages the viewer may not see.
type ViewPlanner struct {
	customers customerReader
}

func NewViewPlanner(customers customerReader) *ViewPlanner {
	return &ViewPlanner{customers: customers}
}

// PlanScope returns the scope for a conversation listing. The second return
// is false for the terminal empty states: a customer without an assigned
// manager, a customer missing from the directory, and the administrator's
// managing-managers surface, none of which are errors.
func (p *ViewPlanner) PlanScope(
	ctx context.Context,
	viewer models.ViewerContext,
	filter models.ConversationFilter,
) (repository.MessageScope, bool, error) {
	switch viewer.Role {
	case models.RoleCustomer:
		customer, err := p.customers.GetByEmail(ctx, viewer.ID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return repository.MessageScope{}, false, nil
			}
			return repository.MessageScope{}, false, err
		}
		if strings.TrimSpace(customer.ManagerID) == "" {
			return repository.MessageScope{}, false, nil
		}
		return repository.MessageScope{CustomerID: viewer.ID}, true, nil

	case models.RoleManager:
		managerID := viewer.ID
		return repository.MessageScope{ManagerID: &managerID}, true, nil

	case models.RoleAdmin:
		if filter.ManagingManagers {
			return repository.MessageScope{}, false, nil
		}
		scope := repository.MessageScope{
			Status: strings.TrimSpace(filter.Status),
			Search: strings.TrimSpace(filter.Search),
		}
		if filter.Unassigned {
			unassigned := ""
			scope.ManagerID = &unassigned
		} else if managerID := strings.TrimSpace(filter.ManagerID); managerID != "" {
			scope.ManagerID = &managerID
		}
		return scope, true, nil

	default:
		return repository.MessageScope{}, false, ErrForbidden
	}
}

// AuthorizeKey checks direct access to a single conversation. Unlike list
// scoping, an out-of-scope key is refused loudly so callers can tell
// "forbidden" apart from "empty".
func (p *ViewPlanner) AuthorizeKey(viewer models.ViewerContext, key models.ConversationKey) error {
	if strings.TrimSpace(key.CustomerID) == "" {
		return ErrInvalidMessage
	}

	switch viewer.Role {
	case models.RoleCustomer:
		if key.CustomerID != viewer.ID {
			return ErrScopeViolation
		}
	case models.RoleManager:
		if key.ManagerID != viewer.ID {
			return ErrScopeViolation
		}
	case models.RoleAdmin:
		// Administrators may open any conversation.
	default:
		return ErrForbidden
	}
	return nil
}
