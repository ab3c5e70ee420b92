package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Role is the privilege a session token carries.
type Role string

// RoleAdmin may issue commands.
const RoleAdmin Role = "admin"

// defaultSessionTTL applies when the configured TTL is not positive.
const defaultSessionTTL = 15 * time.Minute

// issuer is stamped into every token and checked on parse.
const issuer = "roomgate"

// SessionClaims are the JWT claims of an operator console session.
type SessionClaims struct {
	jwt.RegisteredClaims
	Role Role `json:"role"`
}

// Session is a freshly issued token.
type Session struct {
	Token     string
	ID        string
	ExpiresAt time.Time
}

// IssueSession signs a short-lived HS256 token for subject with the given role.
// Sessions are validated by signature only; there is no server-side store.
func IssueSession(subject string, role Role, secret string, ttl time.Duration) (Session, error) {
	if secret == "" {
		return Session{}, ErrSigningSecret
	}
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}

	now := time.Now()
	id := uuid.NewString()
	expires := now.Add(ttl)

	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			ID:        id,
		},
		Role: role,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return Session{}, fmt.Errorf("signing session token: %w", err)
	}
	return Session{Token: signed, ID: id, ExpiresAt: expires}, nil
}

// ParseSession validates a session token and returns its claims.
// It checks the signature, algorithm, expiry, issuer and role.
func ParseSession(tokenString, secret string) (*SessionClaims, error) {
	if secret == "" {
		return nil, ErrSigningSecret
	}

	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Role == "" {
		return nil, fmt.Errorf("%w: missing role", ErrTokenInvalid)
	}
	return claims, nil
}
