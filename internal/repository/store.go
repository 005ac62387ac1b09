package repository

import (
	"context"
	"time"

	"github.com/iliyamo/devhub-auth/internal/model"
)

// UserStore is the durable owner of user records. Every read filters
// soft-deleted rows; existence checks do not, so that deleted accounts
// keep their email and username occupied.
type UserStore interface {
	Create(ctx context.Context, u model.User) error
	GetByID(ctx context.Context, id string) (model.User, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	// ApplyPatch sets the given profile fields on a live user. Each field
	// remembers the time of the write that last set it; a field whose stored
	// time is newer than at is left alone, so a redelivered patch never
	// overwrites a later one. Replaying a patch is a no-op, and patching a
	// deleted or unknown user is not an error.
	ApplyPatch(ctx context.Context, id string, patch model.ProfilePatch, at time.Time) error
	// SoftDelete marks the user inactive. The first deletion time wins.
	SoftDelete(ctx context.Context, id string, at time.Time) error
	UpdatePassword(ctx context.Context, id, hash string) error
	Ping(ctx context.Context) error
}

// TokenStore persists refresh and reset tokens keyed by the SHA-256 digest
// of their value.
type TokenStore interface {
	Create(ctx context.Context, t model.Token) error
	// Get returns a non-revoked token, expired or not.
	Get(ctx context.Context, hash string) (model.Token, error)
	// Consume deletes a non-revoked token and reports whether this call was
	// the one that removed it. Two concurrent consumers of the same value
	// never both observe true.
	Consume(ctx context.Context, hash string) (bool, error)
	// Delete is idempotent.
	Delete(ctx context.Context, hash string) error
	// RevokeAllForUser revokes every live token of the user and returns
	// their hashes so callers can drop cached copies.
	RevokeAllForUser(ctx context.Context, userID string, at time.Time) ([]string, error)
	// DeleteExpired removes rows expired or revoked before the cutoff.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
