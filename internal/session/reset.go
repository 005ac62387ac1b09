package session

import (
	"context"
	"errors"
	"time"

	"github.com/iliyamo/devhub-auth/internal/apperr"
	"github.com/iliyamo/devhub-auth/internal/model"
	"github.com/iliyamo/devhub-auth/internal/repository"
	"github.com/iliyamo/devhub-auth/internal/utils"
)

// ResetTicket is a freshly issued password reset token. Delivery to the user
// is the caller's job.
type ResetTicket struct {
	UserID    string
	Token     string
	ExpiresAt time.Time
}

// RequestPasswordReset issues a single-use reset token for the account
// behind email. Unknown emails yield a zero ticket and no error, so callers
// can not test for accounts.
func (m *Manager) RequestPasswordReset(ctx context.Context, email string) (t ResetTicket, err error) {
	defer m.observe("password_reset_request", &err)

	u, err := m.users.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return ResetTicket{}, nil
	}
	if err != nil {
		return ResetTicket{}, apperr.Internal("reset: lookup user", err)
	}
	raw, tok, err := m.persistToken(ctx, u.ID, model.TokenReset, m.cfg.ResetTTL)
	if err != nil {
		return ResetTicket{}, err
	}
	return ResetTicket{UserID: u.ID, Token: raw, ExpiresAt: tok.ExpiresAt}, nil
}

// ResetPassword consumes a reset token and replaces the password hash. The
// update is synchronous; afterwards every session of the user is revoked and
// the cached user copies are dropped so the old hash can not serve a login.
func (m *Manager) ResetPassword(ctx context.Context, resetToken, newPassword string) (err error) {
	defer m.observe("password_reset", &err)

	hash := utils.HashToken(resetToken)
	tok, err := m.tokens.Get(ctx, hash)
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.ErrInvalidToken
	}
	if err != nil {
		return apperr.Internal("reset: lookup token", err)
	}
	if tok.Kind != model.TokenReset {
		return apperr.ErrInvalidToken
	}
	if tok.Expired(m.now()) {
		if err := m.tokens.Delete(ctx, hash); err != nil {
			return apperr.Internal("reset: delete expired token", err)
		}
		return apperr.ErrTokenExpired
	}

	u, err := m.users.GetByID(ctx, tok.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.ErrUserNotFound
	}
	if err != nil {
		return apperr.Internal("reset: lookup user", err)
	}

	consumed, err := m.tokens.Consume(ctx, hash)
	if err != nil {
		return apperr.Internal("reset: consume token", err)
	}
	if !consumed {
		return apperr.ErrInvalidToken
	}

	pw, err := utils.HashPassword(newPassword, m.cfg.BcryptCost)
	if err != nil {
		return apperr.Internal("reset: hash password", err)
	}
	if err := m.users.UpdatePassword(ctx, u.ID, pw); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.ErrUserNotFound
		}
		return apperr.Internal("reset: update password", err)
	}
	m.ucache.Invalidate(ctx, u)

	hashes, err := m.tokens.RevokeAllForUser(ctx, u.ID, m.now().UTC())
	if err != nil {
		return apperr.Internal("reset: revoke sessions", err)
	}
	m.uncacheTokens(ctx, hashes...)
	return nil
}
