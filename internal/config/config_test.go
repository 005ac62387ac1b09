package config

import (
	"context"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := load(context.Background(), envconfig.MapLookuper(map[string]string{
		"JWT_SECRET": "s3cret",
	}))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.App.Port)
	assert.Equal(t, StoreMySQL, cfg.App.StoreDriver)
	assert.Equal(t, 15*time.Minute, cfg.Auth.AccessTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.Auth.RefreshTTL)
	assert.True(t, cfg.Auth.RotateRefresh)
	assert.False(t, cfg.Auth.SessionBoundUserCache)
	assert.Equal(t, time.Hour, cfg.Cache.UserTTL)
	assert.Equal(t, "user_updates", cfg.RabbitMQ.Queue)
	assert.Equal(t, 20, cfg.RateLimit.Capacity)
}

func TestLoadRequiresSecret(t *testing.T) {
	_, err := load(context.Background(), envconfig.MapLookuper(map[string]string{}))
	require.Error(t, err)
}

func TestLoadRejectsUnknownStore(t *testing.T) {
	_, err := load(context.Background(), envconfig.MapLookuper(map[string]string{
		"JWT_SECRET":   "x",
		"STORE_DRIVER": "postgres",
	}))
	require.Error(t, err)
}

func TestLoadStoreDriverCaseInsensitive(t *testing.T) {
	cfg, err := load(context.Background(), envconfig.MapLookuper(map[string]string{
		"JWT_SECRET":   "x",
		"STORE_DRIVER": " Mongo ",
	}))
	require.NoError(t, err)
	assert.Equal(t, StoreMongo, cfg.App.StoreDriver)
}

func TestRateLimitShorthands(t *testing.T) {
	cfg, err := load(context.Background(), envconfig.MapLookuper(map[string]string{
		"JWT_SECRET":              "x",
		"RATE_LIMIT_BURST":        "5",
		"RATE_LIMIT_REFILL_EVERY": "10s",
		"RATE_LIMIT_TTL":          "1s",
	}))
	require.NoError(t, err)

	rl := cfg.RateLimit
	assert.Equal(t, 5, rl.Capacity)
	assert.Equal(t, 1, rl.RefillTokens)
	assert.Equal(t, 10*time.Second, rl.RefillInterval)
	// TTL is raised to at least five refill intervals.
	assert.Equal(t, 50*time.Second, rl.TTL)
}
