package identity

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern = regexp.MustCompile(`^[\+]?[(]?[0-9]{1,3}[)]?[-\s\.]?[(]?[0-9]{1,4}[)]?[-\s\.]?[0-9]{1,4}[-\s\.]?[0-9]{1,9}$`)
)

// ValidateEmail checks the address shape locally, before any provider call.
func ValidateEmail(email string) error {
	if !emailPattern.MatchString(strings.TrimSpace(email)) {
		return ErrInvalidEmail
	}
	return nil
}

// ValidatePassword enforces the minimum strength policy: at least 8
// characters with upper, lower, digit and special characters.
func ValidatePassword(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("%w: at least 8 characters", ErrWeakPassword)
	}
	var upper, lower, digit, special bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= '0' && r <= '9':
			digit = true
		case strings.ContainsRune(`!@#$%^&*(),.?":{}|<>`, r):
			special = true
		}
	}
	switch {
	case !upper:
		return fmt.Errorf("%w: missing uppercase letter", ErrWeakPassword)
	case !lower:
		return fmt.Errorf("%w: missing lowercase letter", ErrWeakPassword)
	case !digit:
		return fmt.Errorf("%w: missing digit", ErrWeakPassword)
	case !special:
		return fmt.Errorf("%w: missing special character", ErrWeakPassword)
	}
	return nil
}

// ValidatePhone accepts common formats; the field is optional, so empty
// input is valid.
func ValidatePhone(phone string) error {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil
	}
	if !phonePattern.MatchString(phone) {
		return ErrInvalidPhone
	}
	return nil
}

// ValidOTP reports whether the code is exactly six digits.
func ValidOTP(code string) bool {
	if len(code) != 6 {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
