// Package profile is the write-behind path for profile fields. A mutation is
// applied to the cached user view synchronously and handed to the broker as a
// pending update event; the sync worker makes it durable later.
//
// Trade-off: there is no outbox. A crash after the cache write and before the
// broker confirms the event loses the durable mutation, while the cache keeps
// serving it until the entry expires. Credentials and tokens never take this
// path.
package profile

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/iliyamo/devhub-auth/internal/apperr"
	"github.com/iliyamo/devhub-auth/internal/cache"
	"github.com/iliyamo/devhub-auth/internal/metrics"
	"github.com/iliyamo/devhub-auth/internal/model"
	"github.com/iliyamo/devhub-auth/internal/queue"
	"github.com/iliyamo/devhub-auth/internal/repository"
)

// Publisher hands events to the broker. *queue.Publisher satisfies it.
type Publisher interface {
	Publish(ctx context.Context, ev queue.Event) error
}

// Coordinator is the write-behind coordinator.
type Coordinator struct {
	users  repository.UserStore
	cache  cache.Cache
	ucache *cache.Users
	pub    Publisher
	log    zerolog.Logger
	now    func() time.Time
}

func NewCoordinator(users repository.UserStore, c cache.Cache, ucache *cache.Users, pub Publisher, log zerolog.Logger) *Coordinator {
	return &Coordinator{users: users, cache: c, ucache: ucache, pub: pub, log: log, now: time.Now}
}

func (co *Coordinator) WithClock(now func() time.Time) *Coordinator {
	co.now = now
	return co
}

// GetProfile reads the user through the cache. Deleted users are not found,
// including the ones whose deletion has not reached the store yet.
func (co *Coordinator) GetProfile(ctx context.Context, userID string) (model.UserSummary, error) {
	u, err := co.ucache.ByID(ctx, userID, co.users.GetByID)
	if err != nil {
		if absent(err) {
			return model.UserSummary{}, apperr.ErrUserNotFound
		}
		return model.UserSummary{}, apperr.Internal("profile: lookup user", err)
	}
	return u.Summary(), nil
}

// UpdateProfile merges patch into the cached view of the user, refreshes the
// entry's TTL, publishes the patch and returns the merged view. The store is
// only read (on a cold cache); the durable write is the worker's.
//
// The merge is a compare-and-set on user:<id>, so two concurrent updates of
// different fields both survive in the cache.
func (co *Coordinator) UpdateProfile(ctx context.Context, userID string, patch model.ProfilePatch) (model.UserSummary, error) {
	if err := patch.Validate(); err != nil {
		return model.UserSummary{}, apperr.Validation(err.Error())
	}

	var (
		merged model.User
		// errors produced by the merge itself, as opposed to cache failures
		mergeErr error
	)
	err := co.cache.Update(ctx, cache.UserKey(userID), co.ucache.TTL(), func(old []byte) ([]byte, error) {
		merged, mergeErr = co.current(ctx, userID, old)
		if mergeErr != nil {
			return nil, mergeErr
		}
		merged.Profile.Apply(patch)
		return json.Marshal(merged)
	})
	switch {
	case mergeErr != nil:
		if absent(mergeErr) {
			return model.UserSummary{}, apperr.ErrUserNotFound
		}
		return model.UserSummary{}, apperr.Internal("profile: load user", mergeErr)
	case err != nil:
		// Cache down or contended: merge against the store copy and skip the
		// cache write. The event still carries the patch.
		co.log.Warn().Err(err).Str("user_id", userID).Msg("cache merge failed; merging against store")
		u, lerr := co.users.GetByID(ctx, userID)
		if lerr != nil {
			if errors.Is(lerr, repository.ErrNotFound) {
				return model.UserSummary{}, apperr.ErrUserNotFound
			}
			return model.UserSummary{}, apperr.Internal("profile: load user", lerr)
		}
		u.Profile.Apply(patch)
		merged = u
		if derr := co.cache.Delete(ctx, cache.UserKey(userID)); derr != nil {
			co.log.Warn().Err(derr).Str("user_id", userID).Msg("cache delete failed")
		}
	}

	// Keep the login key coherent with the merged view.
	if err := cache.SetJSON(ctx, co.cache, cache.UserEmailKey(merged.Email), merged, co.ucache.TTL()); err != nil {
		co.log.Warn().Err(err).Str("user_id", userID).Msg("cache write failed")
	}

	ev := queue.NewProfileUpdated(userID, patch, co.now())
	if err := co.publish(ctx, ev); err != nil {
		co.ucache.Invalidate(ctx, merged)
		return model.UserSummary{}, apperr.Internal("profile: publish update", err)
	}
	return merged.Summary(), nil
}

// DeleteProfile soft-deletes the user. Tombstones replace both cache
// entries so reads observe the deletion at once; the worker marks the row
// inactive and revokes the user's tokens.
func (co *Coordinator) DeleteProfile(ctx context.Context, userID string) error {
	u, err := co.ucache.ByID(ctx, userID, co.users.GetByID)
	if err != nil {
		if absent(err) {
			return apperr.ErrUserNotFound
		}
		return apperr.Internal("profile: lookup user", err)
	}
	at := co.now().UTC()
	co.ucache.Tombstone(ctx, u, at)

	if err := co.publish(ctx, queue.NewUserDeleted(userID, at)); err != nil {
		co.ucache.Invalidate(ctx, u)
		return apperr.Internal("profile: publish delete", err)
	}
	return nil
}

// current decodes the cached view, or loads it from the store when the cache
// holds nothing.
func (co *Coordinator) current(ctx context.Context, userID string, old []byte) (model.User, error) {
	if old == nil {
		return co.users.GetByID(ctx, userID)
	}
	var u model.User
	if err := json.Unmarshal(old, &u); err != nil {
		co.log.Warn().Err(err).Str("user_id", userID).Msg("discarding undecodable cache entry")
		return co.users.GetByID(ctx, userID)
	}
	if u.Deleted() {
		return model.User{}, cache.ErrGone
	}
	return u, nil
}

func (co *Coordinator) publish(ctx context.Context, ev queue.Event) error {
	if err := co.pub.Publish(ctx, ev); err != nil {
		metrics.EventsPublished.WithLabelValues(ev.Type, "error").Inc()
		return err
	}
	metrics.EventsPublished.WithLabelValues(ev.Type, "ok").Inc()
	return nil
}

func absent(err error) bool {
	return errors.Is(err, repository.ErrNotFound) || errors.Is(err, cache.ErrGone)
}
