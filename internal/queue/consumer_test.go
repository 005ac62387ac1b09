package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/iliyamo/devhub-auth/internal/model"
)

type settle struct {
	acked   bool
	nacked  bool
	requeue bool
}

// fakeAck records how a delivery was settled.
type fakeAck struct{ s *settle }

func (f fakeAck) Ack(uint64, bool) error { f.s.acked = true; return nil }
func (f fakeAck) Nack(_ uint64, _ bool, requeue bool) error {
	f.s.nacked, f.s.requeue = true, requeue
	return nil
}
func (f fakeAck) Reject(_ uint64, requeue bool) error {
	f.s.nacked, f.s.requeue = true, requeue
	return nil
}

func delivery(t *testing.T, body []byte) (amqp.Delivery, *settle) {
	t.Helper()
	s := &settle{}
	return amqp.Delivery{Acknowledger: fakeAck{s}, DeliveryTag: 1, Body: body}, s
}

func eventBody(t *testing.T, ev Event) []byte {
	t.Helper()
	b, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func newTestConsumer(h Handler) *Consumer {
	return NewConsumer(ConsumerConfig{Queue: "user_updates", RetryDelay: time.Millisecond}, h, zerolog.New(io.Discard))
}

func TestDeliver_AcksAfterSuccess(t *testing.T) {
	var got Event
	c := newTestConsumer(func(_ context.Context, ev Event) error {
		got = ev
		return nil
	})
	ev := NewProfileUpdated("u1", model.ProfilePatch{model.FieldBio: "x"}, time.Now())
	d, s := delivery(t, eventBody(t, ev))

	c.Deliver(context.Background(), d)

	if !s.acked || s.nacked {
		t.Fatalf("expected ack only, got %+v", s)
	}
	if got.ID != ev.ID || got.Fields[model.FieldBio] != "x" {
		t.Fatalf("handler saw %+v", got)
	}
}

func TestDeliver_RequeuesOnHandlerError(t *testing.T) {
	c := newTestConsumer(func(context.Context, Event) error { return errors.New("store down") })
	d, s := delivery(t, eventBody(t, NewUserDeleted("u1", time.Now())))

	c.Deliver(context.Background(), d)

	if s.acked || !s.nacked || !s.requeue {
		t.Fatalf("expected nack with requeue, got %+v", s)
	}
}

func TestDeliver_DropsPoison(t *testing.T) {
	c := newTestConsumer(func(context.Context, Event) error {
		return fmt.Errorf("unknown type: %w", ErrPoison)
	})
	d, s := delivery(t, eventBody(t, Event{ID: "e1", Type: "user.renamed", UserID: "u1"}))

	c.Deliver(context.Background(), d)

	if s.acked || !s.nacked || s.requeue {
		t.Fatalf("expected nack without requeue, got %+v", s)
	}
}

func TestDeliver_DropsUndecodable(t *testing.T) {
	called := false
	c := newTestConsumer(func(context.Context, Event) error { called = true; return nil })

	for _, body := range [][]byte{[]byte("{not json"), []byte(`{"id":"e1"}`)} {
		d, s := delivery(t, body)
		c.Deliver(context.Background(), d)
		if s.acked || !s.nacked || s.requeue {
			t.Fatalf("body %q: expected drop, got %+v", body, s)
		}
	}
	if called {
		t.Fatal("handler must not see undecodable messages")
	}
}

func TestSleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if sleep(ctx, time.Hour) {
		t.Fatal("sleep must return false on a cancelled context")
	}
	if !sleep(context.Background(), time.Millisecond) {
		t.Fatal("sleep should complete")
	}
}

func TestRunStopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := NewConsumer(ConsumerConfig{URL: "amqp://127.0.0.1:1/", Queue: "q"}, nil, zerolog.New(io.Discard))
	if err := c.Run(ctx); err != nil {
		t.Fatalf("Run on cancelled context = %v", err)
	}
}
