package store

import "errors"

var (
	ErrMissingFields      = errors.New("missing required fields")
	ErrInvalidRole        = errors.New("invalid role")
	ErrInvalidStatus      = errors.New("invalid status")
	ErrPhoneTaken         = errors.New("phone number already registered")
	ErrPhoneIsDoctor      = errors.New("phone number belongs to a doctor")
	ErrPrincipalNotFound  = errors.New("principal not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEntryNotFound      = errors.New("queue entry not found")
	ErrInvalidTransition  = errors.New("invalid status transition")
)
