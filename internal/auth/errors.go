package auth

import "errors"

// Domain errors.
var (
	ErrEmptySecret   = errors.New("auth: secret must not be empty")
	ErrInvalidHash   = errors.New("auth: invalid argon2id hash")
	ErrTokenInvalid  = errors.New("auth: invalid session token")
	ErrSigningSecret = errors.New("auth: session signing secret not configured")
)
