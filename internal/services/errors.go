package services

import "errors"

var (
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidMessage    = errors.New("message is missing required identifiers")
	ErrScopeViolation    = errors.New("conversation is outside the viewer's scope")
	ErrNoManagerAssigned = errors.New("no manager assigned")
	ErrCustomerNotFound  = errors.New("customer not found")
)
