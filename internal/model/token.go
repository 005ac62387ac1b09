package model

import "time"

// TokenKind distinguishes the credential artifacts issued by the session
// manager. Access tokens are stateless JWTs and never persisted.
type TokenKind string

const (
	TokenAccess  TokenKind = "access"
	TokenRefresh TokenKind = "refresh"
	TokenReset   TokenKind = "reset"
)

// Token models an entry in the `tokens` table. The raw value handed to the
// client is never stored; Hash is its SHA-256 hex digest and is unique.
//
// Fields:
//
//	Hash      – SHA-256 hex digest of the raw token value.
//	UserID    – owner of the token.
//	Kind      – refresh or reset.
//	ExpiresAt – expiration timestamp (UTC).
//	RevokedAt – when the token was revoked (nil while live).
//	CreatedAt – timestamp of creation.
type Token struct {
	Hash      string     `json:"hash" bson:"_id"`
	UserID    string     `json:"user_id" bson:"user_id"`
	Kind      TokenKind  `json:"kind" bson:"kind"`
	ExpiresAt time.Time  `json:"expires_at" bson:"expires_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty" bson:"revoked_at,omitempty"`
	CreatedAt time.Time  `json:"created_at" bson:"created_at"`
}

// Expired reports whether the token is past its expiry at now.
func (t Token) Expired(now time.Time) bool { return now.After(t.ExpiresAt) }

// Live reports whether the token is neither revoked nor expired.
func (t Token) Live(now time.Time) bool { return t.RevokedAt == nil && !t.Expired(now) }
