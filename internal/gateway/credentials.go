package gateway

import (
	"encoding/json"
	"strings"

	"github.com/nerrad567/roomgate/internal/auth"
)

// Class is the credential class a route requires.
type Class string

// Route classes.
const (
	ClassWrite Class = "write"
	ClassRead  Class = "read"
	ClassAdmin Class = "admin"
)

// bearerPrefix is the only accepted Authorization scheme, matched case-sensitively.
const bearerPrefix = "Bearer "

// Secrets are the configured secrets per class. An empty secret matches nothing.
type Secrets struct {
	Write string
	Read  string
	Admin string
}

// SessionVerifier reports whether a bearer token is a valid admin session.
type SessionVerifier func(token string) bool

// CredentialGate checks presented credentials against the configured secrets.
type CredentialGate struct {
	secrets  Secrets
	sessions SessionVerifier
}

// NewCredentialGate builds a gate. sessions may be nil, in which case only
// the static admin secret is accepted on admin routes.
func NewCredentialGate(secrets Secrets, sessions SessionVerifier) *CredentialGate {
	return &CredentialGate{secrets: secrets, sessions: sessions}
}

// Authorize checks a raw Authorization header value for class.
// Only "Bearer <secret>" is accepted. For ClassAdmin a signed session token
// is accepted as well.
func (g *CredentialGate) Authorize(class Class, header string) bool {
	token, ok := strings.CutPrefix(header, bearerPrefix)
	if !ok || token == "" {
		return false
	}
	if auth.MatchSecret(token, g.secret(class)) {
		return true
	}
	return class == ClassAdmin && g.sessions != nil && g.sessions(token)
}

// AuthorizeSecret checks a bare secret (the command body "password" field
// or the login form) for class.
func (g *CredentialGate) AuthorizeSecret(class Class, presented string) bool {
	return auth.MatchSecret(presented, g.secret(class))
}

func (g *CredentialGate) secret(class Class) string {
	switch class {
	case ClassWrite:
		return g.secrets.Write
	case ClassRead:
		return g.secrets.Read
	case ClassAdmin:
		return g.secrets.Admin
	default:
		return ""
	}
}

// JWTSessions returns a SessionVerifier accepting admin session tokens
// signed with secret. It returns nil when no secret is configured.
func JWTSessions(secret string) SessionVerifier {
	if secret == "" {
		return nil
	}
	return func(token string) bool {
		claims, err := auth.ParseSession(token, secret)
		return err == nil && claims.Role == auth.RoleAdmin
	}
}

// bodyPassword extracts the optional "password" field from a command body.
// Anything unparsable yields "", which never matches.
func bodyPassword(body []byte) string {
	if len(body) > MaxPayloadBytes {
		return ""
	}
	var form struct {
		Password string `json:"password"`
	}
	if err := json.Unmarshal(body, &form); err != nil {
		return ""
	}
	return form.Password
}
