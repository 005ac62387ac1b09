// Package cache implements the cache usage protocol in front of the
// credential store: namespaced keys, TTL capping for token entries, and an
// optimistic compare-and-set update used by the write-behind path.
//
// Entries are advisory. ErrMiss never means "record does not exist"; it
// means "ask the store".
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrMiss is returned by Get when the key is absent.
var ErrMiss = errors.New("cache: miss")

// ErrContention is returned by Update when the key kept changing under
// concurrent writers for every retry.
var ErrContention = errors.New("cache: update contention")

// Cache is the subset of a key/value store the services rely on.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores val with ttl. A non-positive ttl is a no-op: entries
	// without expiry are never written.
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	// Update atomically replaces key with fn(old). old is nil on a miss.
	Update(ctx context.Context, key string, ttl time.Duration, fn func(old []byte) ([]byte, error)) error
	Ping(ctx context.Context) error
}

func UserKey(id string) string { return "user:" + id }

// UserEmailKey normalizes email before building the key.
func UserEmailKey(email string) string {
	return "user:email:" + strings.ToLower(strings.TrimSpace(email))
}

// TokenKey expects the SHA-256 digest of the token value, not the raw value.
func TokenKey(hash string) string { return "token:" + hash }

// TokenTTL caps a token entry's TTL by its remaining lifetime.
func TokenTTL(expiresAt, now time.Time) time.Duration {
	d := expiresAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// GetJSON decodes the entry at key into dst.
func GetJSON(ctx context.Context, c Cache, key string, dst any) error {
	b, err := c.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return fmt.Errorf("cache: decode %s: %w", key, err)
	}
	return nil
}

func SetJSON(ctx context.Context, c Cache, key string, v any, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache: encode %s: %w", key, err)
	}
	return c.Set(ctx, key, b, ttl)
}

// Nop is used when Redis is disabled or unreachable: every read misses and
// every write is dropped.
type Nop struct{}

func (Nop) Get(context.Context, string) ([]byte, error) { return nil, ErrMiss }
func (Nop) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (Nop) Delete(context.Context, ...string) error { return nil }
func (Nop) Ping(context.Context) error { return nil }
func (Nop) Update(_ context.Context, _ string, _ time.Duration, fn func([]byte) ([]byte, error)) error {
	_, err := fn(nil)
	return err
}
