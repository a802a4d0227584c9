package identity

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"pharmalens.org/internal/roles"
)

const tokenIssuer = "pharmalens"

// ErrInvalidToken indicates the bearer token failed validation.
var ErrInvalidToken = errors.New("identity: invalid token")

// Claims are the JWT claims carried by API session tokens.
type Claims struct {
	Role       string `json:"role"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Department string `json:"department"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and validates HS256 session tokens for the API
// boundary.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenIssuer builds an issuer. The secret is required; ttl defaults to
// 15 minutes.
func NewTokenIssuer(secret string, ttl time.Duration) (*TokenIssuer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("identity: token secret is required")
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl}, nil
}

// Issue signs a token for the user.
func (i *TokenIssuer) Issue(user User) (string, time.Time, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(i.ttl)
	claims := Claims{
		Role:       string(user.Role),
		Name:       user.Name,
		Email:      user.Email,
		Department: user.Department,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// Validate parses the token and rebuilds the user it was issued for.
func (i *TokenIssuer) Validate(token string) (User, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return i.secret, nil
	})
	if err != nil || !parsed.Valid {
		return User{}, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || claims.Issuer != tokenIssuer || claims.Subject == "" {
		return User{}, ErrInvalidToken
	}
	role := roles.Role(claims.Role)
	if !roles.Valid(role) {
		return User{}, ErrInvalidToken
	}
	return User{
		ID:         claims.Subject,
		Name:       claims.Name,
		Email:      claims.Email,
		Role:       role,
		Department: claims.Department,
	}, nil
}
