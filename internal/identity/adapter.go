// Package identity translates the external identity provider's primitives
// into the internal User/Session model and normalizes its failures into a
// fixed error taxonomy. It never invents a session on provider failure.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"pharmalens.org/internal/obs"
	"pharmalens.org/internal/roles"
)

// User is the internal identity shape. Role is derived deterministically
// from the department; the provider never dictates it.
type User struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Email      string     `json:"email"`
	Role       roles.Role `json:"role"`
	Department string     `json:"department"`
	LastLogin  time.Time  `json:"last_login"`
}

// Session pairs the provider handle with the derived user. Exactly one is
// active per client context.
type Session struct {
	AccessToken string `json:"access_token"`
	User        User   `json:"user"`
}

// Adapter wraps a Provider, normalizing errors and deriving users.
type Adapter struct {
	provider Provider
	events   *SessionEvents
	now      func() time.Time
}

// NewAdapter builds an adapter over the given provider.
func NewAdapter(provider Provider) *Adapter {
	return &Adapter{
		provider: provider,
		events:   NewSessionEvents(),
		now:      time.Now,
	}
}

// Events exposes the session-change fan-out for restore-on-reload flows.
func (a *Adapter) Events() *SessionEvents { return a.events }

// FromProviderSession derives the internal user from a provider session.
// Fails with ErrMalformedSession when the session carries no email.
func (a *Adapter) FromProviderSession(ps ProviderSession) (User, error) {
	email := strings.ToLower(strings.TrimSpace(ps.Email))
	if email == "" {
		return User{}, ErrMalformedSession
	}
	id := strings.TrimSpace(ps.UserID)
	if id == "" {
		id = uuid.NewString()
	}
	return User{
		ID:         id,
		Name:       ps.Name,
		Email:      email,
		Role:       roles.MapDepartment(ps.Department),
		Department: ps.Department,
		LastLogin:  a.now().UTC(),
	}, nil
}

// Login authenticates and derives the session. Email format is checked
// locally first, so malformed addresses never reach the provider.
func (a *Adapter) Login(ctx context.Context, email, password string) (Session, error) {
	if err := ValidateEmail(email); err != nil {
		return Session{}, err
	}
	if password == "" {
		return Session{}, ErrInvalidCredentials
	}
	ps, err := a.provider.Authenticate(ctx, email, password)
	if err != nil {
		return Session{}, a.normalize("login", err)
	}
	user, err := a.FromProviderSession(ps)
	if err != nil {
		return Session{}, err
	}
	a.events.Publish(SessionEvent{Type: SessionSignedIn, Email: user.Email})
	return Session{AccessToken: ps.AccessToken, User: user}, nil
}

// Register validates the profile locally and forwards it. Success leaves
// the account pending email verification.
func (a *Adapter) Register(ctx context.Context, profile Profile) error {
	if err := ValidateEmail(profile.Email); err != nil {
		return err
	}
	if err := ValidatePassword(profile.Password); err != nil {
		return err
	}
	if err := ValidatePhone(profile.Phone); err != nil {
		return err
	}
	if err := a.provider.Register(ctx, profile); err != nil {
		return a.normalize("register", err)
	}
	return nil
}

// ConfirmOTP completes verification. The code must be exactly six digits;
// anything else is rejected locally as ErrInvalidCode.
func (a *Adapter) ConfirmOTP(ctx context.Context, email, code string) (Session, error) {
	if !ValidOTP(code) {
		return Session{}, ErrInvalidCode
	}
	ps, err := a.provider.ConfirmOTP(ctx, email, code)
	if err != nil {
		return Session{}, a.normalize("confirm", err)
	}
	user, err := a.FromProviderSession(ps)
	if err != nil {
		return Session{}, err
	}
	a.events.Publish(SessionEvent{Type: SessionSignedIn, Email: user.Email})
	return Session{AccessToken: ps.AccessToken, User: user}, nil
}

// ResendOTP requests a fresh verification code.
func (a *Adapter) ResendOTP(ctx context.Context, email string) error {
	if err := ValidateEmail(email); err != nil {
		return err
	}
	if err := a.provider.ResendOTP(ctx, email); err != nil {
		return a.normalize("resend", err)
	}
	return nil
}

// Logout publishes the sign-out event. Session state itself lives with the
// caller; there is nothing to revoke at the provider for these flows.
func (a *Adapter) Logout(email string) {
	a.events.Publish(SessionEvent{Type: SessionSignedOut, Email: email})
}

// normalize maps provider failures onto the fixed taxonomy. Unrecognized
// errors collapse to ErrProviderUnavailable so raw provider text never
// reaches a user.
func (a *Adapter) normalize(op string, err error) error {
	for _, known := range []error{
		ErrInvalidCredentials, ErrAlreadyRegistered,
		ErrExpiredCode, ErrInvalidCode, ErrProviderUnavailable,
	} {
		if errors.Is(err, known) {
			obs.ObserveAuthFailure(kindOf(known))
			return known
		}
	}
	obs.ObserveAuthFailure(kindOf(ErrProviderUnavailable))
	obs.Log("identity.provider_error", map[string]any{"op": op, "error": err.Error()})
	return fmt.Errorf("%w: %s failed", ErrProviderUnavailable, op)
}

func kindOf(err error) string {
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrAlreadyRegistered):
		return "already_registered"
	case errors.Is(err, ErrExpiredCode):
		return "expired_code"
	case errors.Is(err, ErrInvalidCode):
		return "invalid_code"
	default:
		return "provider_unavailable"
	}
}
