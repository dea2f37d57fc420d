package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound        = errors.New("entity not found")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrAlreadyExists   = errors.New("entity already exists")

	// Access token errors
	ErrTokenInactive = errors.New("access token is deactivated")
	ErrTokenExpired  = errors.New("access token has expired")
	ErrUsageExceeded = errors.New("access token usage limit reached")

	// Checkout errors
	ErrUnknownPlan   = errors.New("unknown plan")
	ErrSessionUnpaid = errors.New("checkout session is not paid")
)
