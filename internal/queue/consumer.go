package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/iliyamo/devhub-auth/internal/metrics"
)

// ErrPoison marks a message that can never be applied. Such messages are
// rejected without requeue instead of cycling through redelivery forever.
var ErrPoison = errors.New("poison message")

// Handler applies one event. A nil return acks the message; an error
// wrapping ErrPoison drops it; any other error requeues it.
type Handler func(ctx context.Context, ev Event) error

// ConsumerConfig holds the broker settings of a Consumer.
type ConsumerConfig struct {
	URL        string
	Queue      string
	Prefetch   int
	RetryDelay time.Duration
}

// Consumer is the single long-lived consumption loop on one durable queue.
type Consumer struct {
	cfg    ConsumerConfig
	handle Handler
	log    zerolog.Logger
}

func NewConsumer(cfg ConsumerConfig, h Handler, log zerolog.Logger) *Consumer {
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 50
	}
	return &Consumer{cfg: cfg, handle: h, log: log}
}

// Run connects to RabbitMQ, declares the queue (durable) and consumes until
// ctx is cancelled. Broker failures are retried with exponential backoff
// capped at 30s.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return nil
		}
		conn, err := amqp.Dial(c.cfg.URL)
		if err != nil {
			c.log.Warn().Err(err).Dur("retry_in", backoff).Msg("failed to dial broker")
			if !sleep(ctx, backoff) {
				return nil
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		err = c.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return nil
		}
		c.log.Warn().Err(err).Msg("consume loop ended; reconnecting")
		if !sleep(ctx, 2*time.Second) {
			return nil
		}
	}
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		c.log.Warn().Err(err).Msg("set QoS failed")
	}
	if _, err := ch.QueueDeclare(c.cfg.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(c.cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}
	c.log.Info().Str("queue", c.cfg.Queue).Msg("consuming")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			c.Deliver(ctx, d)
		}
	}
}

// Deliver handles one delivery and settles it. Acknowledgement happens only
// after the handler succeeded.
func (c *Consumer) Deliver(ctx context.Context, d amqp.Delivery) {
	ev, err := DecodeEvent(d.Body)
	if err != nil {
		c.log.Error().Err(err).Str("message_id", d.MessageId).Msg("dropping undecodable message")
		metrics.EventsFailed.WithLabelValues("unknown", "decode").Inc()
		_ = d.Nack(false, false)
		return
	}
	log := c.log.With().Str("event_id", ev.ID).Str("type", ev.Type).Str("user_id", ev.UserID).Logger()

	err = c.handle(ctx, ev)
	switch {
	case err == nil:
		if ackErr := d.Ack(false); ackErr != nil {
			// The broker will redeliver; the handler is idempotent.
			log.Warn().Err(ackErr).Msg("ack failed")
		}
	case errors.Is(err, ErrPoison):
		log.Error().Err(err).Msg("dropping poison message")
		_ = d.Nack(false, false)
	default:
		log.Error().Err(err).Bool("redelivered", d.Redelivered).Msg("apply failed; requeueing")
		// Delay the requeue so a failing store is not hammered in a tight loop.
		sleep(ctx, c.cfg.RetryDelay)
		_ = d.Nack(false, true)
	}
}

// sleep waits for d or until ctx is done, reporting whether d elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
