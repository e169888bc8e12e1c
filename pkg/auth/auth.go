// Package auth is the verified-identity boundary. It parses and validates
// bearer tokens issued by the external identity provider and exposes the
// resulting caller identity through the request context. The core services
// trust this identity and never see credentials.
package auth

import (
	"context"
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

var ErrInvalidToken = errors.New("invalid token")

type Claims struct {
	Sub  string `json:"sub"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Identity is the caller as the core sees it: an opaque user id and a role.
type Identity struct {
	UserID string
	Role   string
}

func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

type contextKey struct{}

func NewContext(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(Identity)
	return id, ok
}

// CreateAccessToken signs a token for the given subject and role. Used by
// tests and local tooling; production tokens come from the identity provider.
func CreateAccessToken(secret, sub, role string, ttl time.Duration) (string, error) {
	claims := Claims{
		Sub:  sub,
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseValidate verifies the token signature and expiry and returns the
// caller identity.
func ParseValidate(secret, tokenStr string) (Identity, error) {
	t, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(secret), nil
	})
	if err != nil {
		return Identity{}, err
	}
	claims, ok := t.Claims.(*Claims)
	if !ok || !t.Valid || claims.Sub == "" {
		return Identity{}, ErrInvalidToken
	}
	return Identity{UserID: claims.Sub, Role: claims.Role}, nil
}
