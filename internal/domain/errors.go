package domain

import "errors"

// Error taxonomy shared by every layer. Handlers map these to HTTP statuses with errors.Is;
// services wrap them with context using fmt.Errorf("...: %w").
var (
	ErrAuthenticationRequired  = errors.New("authentication required")
	ErrIntegrationNotConnected = errors.New("integration not connected")
	ErrNotFound                = errors.New("not found")
	ErrAlreadyProcessed        = errors.New("already processed")
	ErrConflict                = errors.New("conflict")
	ErrValidationFailed        = errors.New("validation failed")
	ErrUpstreamProvider        = errors.New("upstream provider error")
	ErrSignatureInvalid        = errors.New("invalid webhook signature")
)
