package identity

import (
	"errors"
	"testing"
	"time"

	"pharmalens.org/internal/roles"
)

func TestIssueAndValidateToken(t *testing.T) {
	issuer, err := NewTokenIssuer("test-secret", 30*time.Minute)
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}

	user := User{
		ID:         "usr-1",
		Name:       "Sarah Chen",
		Email:      "sarah.chen@pharma.com",
		Role:       roles.RoleQA,
		Department: "Quality Assurance",
	}
	token, expiresAt, err := issuer.Issue(user)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if time.Until(expiresAt) <= 0 {
		t.Fatalf("expected future expiration, got %v", expiresAt)
	}

	got, err := issuer.Validate(token)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if got.ID != user.ID || got.Role != user.Role || got.Email != user.Email {
		t.Fatalf("claims round trip mismatch: %+v", got)
	}
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	a, _ := NewTokenIssuer("secret-a", time.Minute)
	b, _ := NewTokenIssuer("secret-b", time.Minute)

	token, _, err := a.Issue(User{ID: "usr-1", Role: roles.RoleQA})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := b.Validate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestValidateRejectsUnknownRole(t *testing.T) {
	issuer, _ := NewTokenIssuer("test-secret", time.Minute)
	token, _, err := issuer.Issue(User{ID: "usr-1", Role: roles.Role("warehouse")})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := issuer.Validate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for unknown role, got %v", err)
	}
}

func TestValidatePasswordPolicy(t *testing.T) {
	cases := []struct {
		password string
		ok       bool
	}{
		{"Sup3r!secret", true},
		{"short", false},
		{"alllowercase1!", false},
		{"ALLUPPERCASE1!", false},
		{"NoDigitsHere!", false},
		{"NoSpecials123", false},
	}
	for _, tc := range cases {
		err := ValidatePassword(tc.password)
		if tc.ok && err != nil {
			t.Fatalf("ValidatePassword(%q): unexpected %v", tc.password, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("ValidatePassword(%q): expected failure", tc.password)
		}
	}
}

func TestValidatePhoneOptional(t *testing.T) {
	if err := ValidatePhone(""); err != nil {
		t.Fatalf("empty phone must be valid: %v", err)
	}
	if err := ValidatePhone("(123) 456-7890"); err != nil {
		t.Fatalf("formatted phone rejected: %v", err)
	}
	if err := ValidatePhone("not-a-phone"); err == nil {
		t.Fatalf("expected rejection of malformed phone")
	}
}
