// Package auth holds the credential primitives used by the gateway:
//
//   - Argon2id hashing so the admin secret can be configured as a PHC hash
//   - Constant-time secret matching for plaintext bearer tokens
//   - Short-lived HS256 session tokens for operator consoles
//
// Sessions are stateless. Revocation is by rotating security.jwt.secret.
package auth
