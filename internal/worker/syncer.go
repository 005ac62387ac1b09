// Package worker holds the background side of the service: the sync worker
// that makes write-behind events durable and the janitor that prunes dead
// token rows.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/iliyamo/devhub-auth/internal/metrics"
	"github.com/iliyamo/devhub-auth/internal/queue"
	"github.com/iliyamo/devhub-auth/internal/repository"
)

// Syncer applies pending update events to the credential store. Every
// mutation is idempotent, so a redelivered event is harmless. Profile
// fields are versioned by the event's OccurredAt: a requeued patch that
// comes back after a newer one for the same field is skipped.
type Syncer struct {
	users  repository.UserStore
	tokens repository.TokenStore
	log    zerolog.Logger
}

func NewSyncer(users repository.UserStore, tokens repository.TokenStore, log zerolog.Logger) *Syncer {
	return &Syncer{users: users, tokens: tokens, log: log}
}

// Handle is a queue.Handler.
func (s *Syncer) Handle(ctx context.Context, ev queue.Event) error {
	start := time.Now()
	err := s.apply(ctx, ev)
	metrics.EventProcessingDuration.WithLabelValues(ev.Type).Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		metrics.EventsProcessed.WithLabelValues(ev.Type).Inc()
		s.log.Debug().Str("event_id", ev.ID).Str("type", ev.Type).Str("user_id", ev.UserID).Msg("event applied")
	case errors.Is(err, queue.ErrPoison):
		metrics.EventsFailed.WithLabelValues(ev.Type, "poison").Inc()
	default:
		metrics.EventsFailed.WithLabelValues(ev.Type, "store_error").Inc()
	}
	return err
}

func (s *Syncer) apply(ctx context.Context, ev queue.Event) error {
	switch ev.Type {
	case queue.EventProfileUpdated:
		if err := ev.Fields.Validate(); err != nil {
			return fmt.Errorf("%w: %v", queue.ErrPoison, err)
		}
		// A missing or deleted user matches no row; the event is spent.
		if err := s.users.ApplyPatch(ctx, ev.UserID, ev.Fields, occurredAt(ev)); err != nil {
			return fmt.Errorf("apply profile patch: %w", err)
		}
		return nil

	case queue.EventUserDeleted:
		at := occurredAt(ev)
		if err := s.users.SoftDelete(ctx, ev.UserID, at); err != nil {
			return fmt.Errorf("soft delete: %w", err)
		}
		if _, err := s.tokens.RevokeAllForUser(ctx, ev.UserID, at); err != nil {
			return fmt.Errorf("revoke tokens: %w", err)
		}
		return nil

	default:
		return fmt.Errorf("%w: unknown event type %q", queue.ErrPoison, ev.Type)
	}
}

// occurredAt falls back to the arrival time for events published without
// a timestamp.
func occurredAt(ev queue.Event) time.Time {
	if ev.OccurredAt.IsZero() {
		return time.Now().UTC()
	}
	return ev.OccurredAt
}
