// Package queue defines the pending update events exchanged over RabbitMQ
// and the publisher/consumer pair that moves them.
package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/devhub-auth/internal/model"
)

// Event type tags.
const (
	EventProfileUpdated = "user.profile.updated"
	EventUserDeleted    = "user.deleted"
)

// Event is a pending durable mutation. It is produced after the cache write
// and acknowledged by the sync worker only once the store has applied it.
// Fields carries the patch only, never the merged view, so a replay can
// not resurrect values that a later event overwrote.
type Event struct {
	ID         string             `json:"id"`
	Type       string             `json:"type"`
	UserID     string             `json:"user_id"`
	Fields     model.ProfilePatch `json:"fields,omitempty"`
	OccurredAt time.Time          `json:"occurred_at"`
}

func NewProfileUpdated(userID string, fields model.ProfilePatch, at time.Time) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       EventProfileUpdated,
		UserID:     userID,
		Fields:     fields,
		OccurredAt: at.UTC(),
	}
}

func NewUserDeleted(userID string, at time.Time) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       EventUserDeleted,
		UserID:     userID,
		OccurredAt: at.UTC(),
	}
}

// DecodeEvent parses a message body and checks the envelope is usable.
func DecodeEvent(body []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return Event{}, fmt.Errorf("unmarshal event: %w", err)
	}
	if ev.Type == "" || ev.UserID == "" {
		return Event{}, fmt.Errorf("event %q: missing type or user id", ev.ID)
	}
	return ev, nil
}
