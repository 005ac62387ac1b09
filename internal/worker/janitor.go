package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/iliyamo/devhub-auth/internal/metrics"
	"github.com/iliyamo/devhub-auth/internal/repository"
)

// Janitor periodically deletes expired and revoked token rows. Refresh and
// reset already delete expired tokens they run into; the janitor catches the
// ones nobody presents again.
type Janitor struct {
	tokens   repository.TokenStore
	interval time.Duration
	log      zerolog.Logger
	now      func() time.Time
}

func NewJanitor(tokens repository.TokenStore, interval time.Duration, log zerolog.Logger) *Janitor {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &Janitor{tokens: tokens, interval: interval, log: log, now: time.Now}
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (j *Janitor) Run(ctx context.Context) {
	t := time.NewTicker(j.interval)
	defer t.Stop()
	for {
		if _, err := j.Sweep(ctx); err != nil && ctx.Err() == nil {
			j.log.Error().Err(err).Msg("token sweep failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// Sweep deletes every token that expired or was revoked before now.
func (j *Janitor) Sweep(ctx context.Context) (int64, error) {
	n, err := j.tokens.DeleteExpired(ctx, j.now().UTC())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		metrics.JanitorDeleted.Add(float64(n))
		j.log.Info().Int64("deleted", n).Msg("pruned dead tokens")
	}
	return n, nil
}
