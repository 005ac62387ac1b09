package session

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/iliyamo/devhub-auth/internal/apperr"
	"github.com/iliyamo/devhub-auth/internal/cache"
	"github.com/iliyamo/devhub-auth/internal/metrics"
	"github.com/iliyamo/devhub-auth/internal/model"
	"github.com/iliyamo/devhub-auth/internal/repository"
)

func newUserID() string { return uuid.NewString() }

// lookupToken is the cache-aside read of token:<hash>.
func (m *Manager) lookupToken(ctx context.Context, hash string) (model.Token, error) {
	var tok model.Token
	err := cache.GetJSON(ctx, m.cache, cache.TokenKey(hash), &tok)
	switch {
	case err == nil:
		metrics.CacheLookups.WithLabelValues("token", "hit").Inc()
		return tok, nil
	case errors.Is(err, cache.ErrMiss):
		metrics.CacheLookups.WithLabelValues("token", "miss").Inc()
	default:
		metrics.CacheLookups.WithLabelValues("token", "error").Inc()
		m.log.Warn().Err(err).Msg("token cache read failed; using store")
	}

	tok, err = m.tokens.Get(ctx, hash)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Token{}, apperr.ErrInvalidToken
	}
	if err != nil {
		return model.Token{}, apperr.Internal("lookup token", err)
	}
	// reset tokens stay out of the cache
	if tok.Kind == model.TokenRefresh {
		m.cacheToken(ctx, tok)
	}
	return tok, nil
}

// cacheToken mirrors tok with a TTL capped by its remaining lifetime.
func (m *Manager) cacheToken(ctx context.Context, tok model.Token) {
	ttl := cache.TokenTTL(tok.ExpiresAt, m.now())
	if err := cache.SetJSON(ctx, m.cache, cache.TokenKey(tok.Hash), tok, ttl); err != nil {
		m.log.Warn().Err(err).Str("user_id", tok.UserID).Msg("token cache write failed")
	}
}

func (m *Manager) uncacheTokens(ctx context.Context, hashes ...string) {
	if len(hashes) == 0 {
		return
	}
	keys := make([]string, len(hashes))
	for i, h := range hashes {
		keys[i] = cache.TokenKey(h)
	}
	if err := m.cache.Delete(ctx, keys...); err != nil {
		m.log.Warn().Err(err).Int("tokens", len(keys)).Msg("token cache delete failed")
	}
}

// dropToken removes an expired token from both store and cache.
func (m *Manager) dropToken(ctx context.Context, hash string) error {
	if err := m.tokens.Delete(ctx, hash); err != nil {
		return apperr.Internal("delete expired token", err)
	}
	m.uncacheTokens(ctx, hash)
	return nil
}
