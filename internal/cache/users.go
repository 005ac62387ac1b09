package cache

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/iliyamo/devhub-auth/internal/metrics"
	"github.com/iliyamo/devhub-auth/internal/model"
)

// ErrGone is returned when the cache holds a tombstone for the user: the
// account was deleted and the store may not have caught up yet.
var ErrGone = errors.New("cache: user deleted")

// Loader reads a user from the credential store.
type Loader func(ctx context.Context, key string) (model.User, error)

// Users implements cache-aside reads of user records under user:<id> and
// user:email:<email>. Cache failures are logged and fall through to the
// loader; they never fail the read.
type Users struct {
	c   Cache
	ttl time.Duration
	log zerolog.Logger
}

func NewUsers(c Cache, ttl time.Duration, log zerolog.Logger) *Users {
	return &Users{c: c, ttl: ttl, log: log}
}

// TTL is the fixed lifetime of user entries.
func (u *Users) TTL() time.Duration { return u.ttl }

func (u *Users) ByID(ctx context.Context, id string, load Loader) (model.User, error) {
	return u.get(ctx, "user", UserKey(id), id, load)
}

func (u *Users) ByEmail(ctx context.Context, email string, load Loader) (model.User, error) {
	return u.get(ctx, "user_email", UserEmailKey(email), email, load)
}

func (u *Users) get(ctx context.Context, kind, key, arg string, load Loader) (model.User, error) {
	var user model.User
	err := GetJSON(ctx, u.c, key, &user)
	switch {
	case err == nil:
		if user.Deleted() {
			metrics.CacheLookups.WithLabelValues(kind, "tombstone").Inc()
			return model.User{}, ErrGone
		}
		metrics.CacheLookups.WithLabelValues(kind, "hit").Inc()
		return user, nil
	case errors.Is(err, ErrMiss):
		metrics.CacheLookups.WithLabelValues(kind, "miss").Inc()
	default:
		metrics.CacheLookups.WithLabelValues(kind, "error").Inc()
		u.log.Warn().Err(err).Str("key_kind", kind).Msg("cache read failed; using store")
	}

	user, err = load(ctx, arg)
	if err != nil {
		return model.User{}, err
	}
	u.Put(ctx, user)
	return user, nil
}

// Put caches user under both keys with a refreshed TTL.
func (u *Users) Put(ctx context.Context, user model.User) {
	u.set(ctx, UserKey(user.ID), user)
	u.set(ctx, UserEmailKey(user.Email), user)
}

// Tombstone caches a deleted copy of user under both keys so reads observe
// the deletion before the store does.
func (u *Users) Tombstone(ctx context.Context, user model.User, at time.Time) {
	user.IsActive = false
	user.DeletedAt = &at
	user.PasswordHash = ""
	u.Put(ctx, user)
}

// Invalidate drops both keys.
func (u *Users) Invalidate(ctx context.Context, user model.User) {
	if err := u.c.Delete(ctx, UserKey(user.ID), UserEmailKey(user.Email)); err != nil {
		u.log.Warn().Err(err).Str("user_id", user.ID).Msg("cache invalidate failed")
	}
}

func (u *Users) set(ctx context.Context, key string, user model.User) {
	if err := SetJSON(ctx, u.c, key, user, u.ttl); err != nil {
		u.log.Warn().Err(err).Str("user_id", user.ID).Msg("cache write failed")
	}
}
