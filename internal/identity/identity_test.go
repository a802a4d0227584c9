package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"pharmalens.org/internal/roles"
)

const (
	testEmail    = "sarah.chen@pharma.com"
	testPassword = "Sup3r!secret"
)

func seededProvider(t *testing.T) *MemoryProvider {
	t.Helper()
	p := NewMemoryProvider()
	if err := p.Seed(testEmail, testPassword, "Sarah Chen", "Quality Assurance"); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	return p
}

func TestLoginDerivesRoleFromDepartment(t *testing.T) {
	adapter := NewAdapter(seededProvider(t))

	sess, err := adapter.Login(context.Background(), testEmail, testPassword)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if sess.User.Role != roles.RoleQA {
		t.Fatalf("role %s, want qa", sess.User.Role)
	}
	if sess.AccessToken == "" {
		t.Fatalf("expected provider access token")
	}
	if sess.User.LastLogin.IsZero() {
		t.Fatalf("expected last login stamp")
	}
}

func TestLoginWrongPassword(t *testing.T) {
	adapter := NewAdapter(seededProvider(t))
	_, err := adapter.Login(context.Background(), testEmail, "Wr0ng!pass")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLoginRejectsBadEmailLocally(t *testing.T) {
	calls := 0
	p := providerFunc{
		authenticate: func(context.Context, string, string) (ProviderSession, error) {
			calls++
			return ProviderSession{}, nil
		},
	}
	adapter := NewAdapter(p)
	if _, err := adapter.Login(context.Background(), "not-an-email", "x"); !errors.Is(err, ErrInvalidEmail) {
		t.Fatalf("expected ErrInvalidEmail, got %v", err)
	}
	if calls != 0 {
		t.Fatalf("malformed email must never reach the provider")
	}
}

func TestRegisterConfirmFlow(t *testing.T) {
	var sentCode string
	p := NewMemoryProvider(WithMailLog(func(_, code string) { sentCode = code }))
	adapter := NewAdapter(p)

	profile := Profile{
		Email:      "david.kim@pharma.com",
		Password:   "Str0ng!pass",
		Name:       "David Kim",
		Department: "Regulatory Affairs",
	}
	if err := adapter.Register(context.Background(), profile); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if !ValidOTP(sentCode) {
		t.Fatalf("issued OTP %q is not six digits", sentCode)
	}

	sess, err := adapter.ConfirmOTP(context.Background(), profile.Email, sentCode)
	if err != nil {
		t.Fatalf("ConfirmOTP: %v", err)
	}
	if sess.User.Role != roles.RoleRegulatory {
		t.Fatalf("role %s, want regulatory", sess.User.Role)
	}

	// Now registered and verified: a second registration conflicts.
	if err := adapter.Register(context.Background(), profile); !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("expected ErrAlreadyRegistered, got %v", err)
	}
}

func TestConfirmWrongAndExpiredCode(t *testing.T) {
	current := time.Now()
	var sentCode string
	p := NewMemoryProvider(
		WithMemoryClock(func() time.Time { return current }),
		WithMailLog(func(_, code string) { sentCode = code }),
	)
	adapter := NewAdapter(p)

	profile := Profile{Email: "user@x.com", Password: "Str0ng!pass", Department: "Quality Control"}
	if err := adapter.Register(context.Background(), profile); err != nil {
		t.Fatalf("Register: %v", err)
	}

	wrong := "000000"
	if wrong == sentCode {
		wrong = "000001"
	}
	if _, err := adapter.ConfirmOTP(context.Background(), profile.Email, wrong); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected ErrInvalidCode, got %v", err)
	}

	current = current.Add(otpTTL + time.Minute)
	if _, err := adapter.ConfirmOTP(context.Background(), profile.Email, sentCode); !errors.Is(err, ErrExpiredCode) {
		t.Fatalf("expected ErrExpiredCode, got %v", err)
	}
}

func TestRegisterWeakPasswordLocal(t *testing.T) {
	adapter := NewAdapter(NewMemoryProvider())
	err := adapter.Register(context.Background(), Profile{Email: "a@b.co", Password: "short"})
	if !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}
}

func TestNormalizeUnknownProviderError(t *testing.T) {
	p := providerFunc{
		authenticate: func(context.Context, string, string) (ProviderSession, error) {
			return ProviderSession{}, errors.New("upstream 503: pq: connection refused")
		},
	}
	_, err := NewAdapter(p).Login(context.Background(), "a@b.co", "x")
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestFromProviderSessionRequiresEmail(t *testing.T) {
	adapter := NewAdapter(NewMemoryProvider())
	if _, err := adapter.FromProviderSession(ProviderSession{UserID: "u1"}); !errors.Is(err, ErrMalformedSession) {
		t.Fatalf("expected ErrMalformedSession, got %v", err)
	}
}

func TestSessionEventsFanOut(t *testing.T) {
	adapter := NewAdapter(seededProvider(t))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := adapter.Events().Subscribe(ctx)
	if _, err := adapter.Login(context.Background(), testEmail, testPassword); err != nil {
		t.Fatalf("Login: %v", err)
	}
	select {
	case ev := <-ch:
		if ev.Type != SessionSignedIn || ev.Email != testEmail {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatalf("no session event delivered")
	}
}

// providerFunc lets tests stub individual provider operations.
type providerFunc struct {
	authenticate func(ctx context.Context, email, password string) (ProviderSession, error)
	register     func(ctx context.Context, profile Profile) error
	confirm      func(ctx context.Context, email, code string) (ProviderSession, error)
	resend       func(ctx context.Context, email string) error
}

func (p providerFunc) Authenticate(ctx context.Context, email, password string) (ProviderSession, error) {
	if p.authenticate == nil {
		return ProviderSession{}, ErrProviderUnavailable
	}
	return p.authenticate(ctx, email, password)
}

func (p providerFunc) Register(ctx context.Context, profile Profile) error {
	if p.register == nil {
		return ErrProviderUnavailable
	}
	return p.register(ctx, profile)
}

func (p providerFunc) ConfirmOTP(ctx context.Context, email, code string) (ProviderSession, error) {
	if p.confirm == nil {
		return ProviderSession{}, ErrProviderUnavailable
	}
	return p.confirm(ctx, email, code)
}

func (p providerFunc) ResendOTP(ctx context.Context, email string) error {
	if p.resend == nil {
		return ErrProviderUnavailable
	}
	return p.resend(ctx, email)
}
