package identity

import "errors"

// Normalized provider error taxonomy. Raw provider error text is never
// surfaced once one of these applies.
var (
	ErrInvalidCredentials  = errors.New("identity: invalid credentials")
	ErrAlreadyRegistered   = errors.New("identity: already registered")
	ErrExpiredCode         = errors.New("identity: verification code expired")
	ErrInvalidCode         = errors.New("identity: invalid verification code")
	ErrProviderUnavailable = errors.New("identity: provider unavailable")
	ErrMalformedSession    = errors.New("identity: malformed provider session")
)

// Local validation errors, resolved before any provider call.
var (
	ErrInvalidEmail = errors.New("identity: invalid email address")
	ErrWeakPassword = errors.New("identity: password does not meet requirements")
	ErrInvalidPhone = errors.New("identity: invalid phone number")
)
