package identity

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/argon2"
)

const otpTTL = 10 * time.Minute

// MemoryProvider is an in-process identity provider used in demo mode and
// tests. Passwords are argon2id-hashed; OTP codes are random six-digit
// strings with a fixed expiry.
type MemoryProvider struct {
	mu      sync.Mutex
	users   map[string]*memoryAccount
	now     func() time.Time
	mailLog func(email, code string)
}

type memoryAccount struct {
	id           string
	name         string
	department   string
	phone        string
	passwordHash string
	verified     bool
	otp          string
	otpExpires   time.Time
}

// MemoryOption configures a MemoryProvider.
type MemoryOption func(*MemoryProvider)

// WithMemoryClock overrides the time source, used to test code expiry.
func WithMemoryClock(fn func() time.Time) MemoryOption {
	return func(p *MemoryProvider) {
		if fn != nil {
			p.now = fn
		}
	}
}

// WithMailLog receives each issued OTP; demo mode logs it instead of
// sending mail.
func WithMailLog(fn func(email, code string)) MemoryOption {
	return func(p *MemoryProvider) { p.mailLog = fn }
}

// NewMemoryProvider builds an empty provider.
func NewMemoryProvider(opts ...MemoryOption) *MemoryProvider {
	p := &MemoryProvider{
		users: make(map[string]*memoryAccount),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Seed creates a pre-verified account, used to provision demo users.
func (p *MemoryProvider) Seed(email, password, name, department string) error {
	hash, err := hashPassword(password)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.users[normalizeEmail(email)] = &memoryAccount{
		id:           uuid.NewString(),
		name:         name,
		department:   department,
		passwordHash: hash,
		verified:     true,
	}
	return nil
}

func (p *MemoryProvider) Authenticate(_ context.Context, email, password string) (ProviderSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	acct, ok := p.users[normalizeEmail(email)]
	if !ok || !acct.verified {
		return ProviderSession{}, ErrInvalidCredentials
	}
	if !verifyPassword(password, acct.passwordHash) {
		return ProviderSession{}, ErrInvalidCredentials
	}
	return p.session(email, acct), nil
}

func (p *MemoryProvider) Register(_ context.Context, profile Profile) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := normalizeEmail(profile.Email)
	if existing, ok := p.users[key]; ok && existing.verified {
		return ErrAlreadyRegistered
	}
	hash, err := hashPassword(profile.Password)
	if err != nil {
		return err
	}
	acct := &memoryAccount{
		id:           uuid.NewString(),
		name:         profile.Name,
		department:   profile.Department,
		phone:        profile.Phone,
		passwordHash: hash,
	}
	p.users[key] = acct
	p.issueOTP(key, acct)
	return nil
}

func (p *MemoryProvider) ConfirmOTP(_ context.Context, email, code string) (ProviderSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := normalizeEmail(email)
	acct, ok := p.users[key]
	if !ok || acct.otp == "" {
		return ProviderSession{}, ErrInvalidCode
	}
	if p.now().After(acct.otpExpires) {
		return ProviderSession{}, ErrExpiredCode
	}
	if subtle.ConstantTimeCompare([]byte(code), []byte(acct.otp)) != 1 {
		return ProviderSession{}, ErrInvalidCode
	}
	acct.verified = true
	acct.otp = ""
	return p.session(key, acct), nil
}

func (p *MemoryProvider) ResendOTP(_ context.Context, email string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := normalizeEmail(email)
	acct, ok := p.users[key]
	if !ok || acct.verified {
		return ErrInvalidCode
	}
	p.issueOTP(key, acct)
	return nil
}

func (p *MemoryProvider) session(email string, acct *memoryAccount) ProviderSession {
	return ProviderSession{
		AccessToken: uuid.NewString(),
		UserID:      acct.id,
		Email:       email,
		Name:        acct.name,
		Department:  acct.department,
		Phone:       acct.phone,
	}
}

func (p *MemoryProvider) issueOTP(email string, acct *memoryAccount) {
	acct.otp = generateOTP()
	acct.otpExpires = p.now().Add(otpTTL)
	if p.mailLog != nil {
		p.mailLog(email, acct.otp)
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// generateOTP returns a random six-digit code.
func generateOTP() string {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		// crypto/rand only fails when the platform source is broken.
		panic(err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000)
}

const (
	argonMemory      = 64 * 1024
	argonIterations  = 2
	argonParallelism = 1
	argonKeyLength   = 32
	argonSaltLength  = 16
)

func hashPassword(password string) (string, error) {
	salt := make([]byte, argonSaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	hash := argon2.IDKey([]byte(password), salt, argonIterations, argonMemory, argonParallelism, argonKeyLength)

	return fmt.Sprintf(
		"$argon2id$v=19$m=%d,t=%d,p=%d$%s$%s",
		argonMemory,
		argonIterations,
		argonParallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

func verifyPassword(password, encoded string) bool {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false
	}
	var memory, iterations uint32
	var parallelism uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		return false
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false
	}
	got := argon2.IDKey([]byte(password), salt, iterations, memory, parallelism, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1
}
