// Package session issues, verifies, rotates and revokes credentials. It owns
// the cache-aside lookups of users (by id and email) and of tokens (by the
// hash of their value).
//
// Refresh token lifecycle:
//
//	issued -> consumed by refresh -> (new value issued)
//	issued -> expired (checked lazily on use) -> deleted
//	issued -> revoked by logout -> deleted
//
// No transition leads back to issued for the same value.
package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/iliyamo/devhub-auth/internal/apperr"
	"github.com/iliyamo/devhub-auth/internal/cache"
	"github.com/iliyamo/devhub-auth/internal/metrics"
	"github.com/iliyamo/devhub-auth/internal/model"
	"github.com/iliyamo/devhub-auth/internal/repository"
	"github.com/iliyamo/devhub-auth/internal/utils"
)

// Config holds the token lifetimes and policies.
type Config struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	ResetTTL   time.Duration
	BcryptCost int
	// Rotate issues a new refresh token on every refresh and consumes the
	// presented one.
	Rotate bool
	// SessionBoundUserCache drops user:<id> on logout.
	SessionBoundUserCache bool
}

// Manager is the session manager. It is safe for concurrent use; all
// cross-request coordination is delegated to the store and the cache.
type Manager struct {
	users  repository.UserStore
	tokens repository.TokenStore
	cache  cache.Cache
	ucache *cache.Users
	issuer *utils.TokenIssuer
	cfg    Config
	log    zerolog.Logger
	now    func() time.Time
}

func NewManager(
	users repository.UserStore,
	tokens repository.TokenStore,
	c cache.Cache,
	ucache *cache.Users,
	issuer *utils.TokenIssuer,
	cfg Config,
	log zerolog.Logger,
) *Manager {
	return &Manager{
		users:  users,
		tokens: tokens,
		cache:  c,
		ucache: ucache,
		issuer: issuer,
		cfg:    cfg,
		log:    log,
		now:    time.Now,
	}
}

// WithClock overrides the time source. The issuer should share it.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// Tokens is what the client receives after authenticating or refreshing.
type Tokens struct {
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token,omitempty"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at,omitempty"`
	TokenType        string    `json:"token_type"`
}

// AuthResult is returned by Login and Register.
type AuthResult struct {
	Tokens
	User model.UserSummary `json:"user"`
}

// RegisterInput carries a validated registration request.
type RegisterInput struct {
	Email    string
	Username string
	Password string
	Profile  model.Profile
}

// Identity is the verified subject of an access token.
type Identity struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	IssuedAt  time.Time `json:"iat"`
	ExpiresAt time.Time `json:"exp"`
}

// Login verifies credentials and issues an access/refresh pair. An unknown
// email and a wrong password fail identically, after one bcrypt comparison
// each.
func (m *Manager) Login(ctx context.Context, email, password string) (res AuthResult, err error) {
	defer m.observe("login", &err)

	u, err := m.ucache.ByEmail(ctx, email, m.users.GetByEmail)
	if err != nil {
		if !isAbsent(err) {
			return AuthResult{}, apperr.Internal("login: lookup user", err)
		}
		utils.VerifyPassword(utils.DummyHash(m.cfg.BcryptCost), password)
		return AuthResult{}, apperr.ErrInvalidCredentials
	}
	if !utils.VerifyPassword(u.PasswordHash, password) {
		return AuthResult{}, apperr.ErrInvalidCredentials
	}

	tokens, err := m.issue(ctx, u, true)
	if err != nil {
		return AuthResult{}, err
	}
	return AuthResult{Tokens: tokens, User: u.Summary()}, nil
}

// Register creates the user and then proceeds like Login. Uniqueness is
// checked against the store (a cache miss proves nothing) and enforced
// again by the store's unique keys on insert.
func (m *Manager) Register(ctx context.Context, in RegisterInput) (res AuthResult, err error) {
	defer m.observe("register", &err)

	email := strings.ToLower(strings.TrimSpace(in.Email))
	if _, err := m.ucache.ByEmail(ctx, email, m.users.GetByEmail); err == nil || errors.Is(err, cache.ErrGone) {
		return AuthResult{}, apperr.ErrEmailExists
	}
	taken, err := m.users.EmailExists(ctx, email)
	if err != nil {
		return AuthResult{}, apperr.Internal("register: email exists", err)
	}
	if taken {
		return AuthResult{}, apperr.ErrEmailExists
	}
	taken, err = m.users.UsernameExists(ctx, in.Username)
	if err != nil {
		return AuthResult{}, apperr.Internal("register: username exists", err)
	}
	if taken {
		return AuthResult{}, apperr.ErrUsernameExists
	}

	hash, err := utils.HashPassword(in.Password, m.cfg.BcryptCost)
	if err != nil {
		return AuthResult{}, apperr.Internal("register: hash password", err)
	}
	now := m.now().UTC()
	u := model.User{
		ID:           newUserID(),
		Email:        email,
		Username:     in.Username,
		PasswordHash: hash,
		Profile:      in.Profile,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	switch err := m.users.Create(ctx, u); {
	case errors.Is(err, repository.ErrEmailTaken):
		return AuthResult{}, apperr.ErrEmailExists
	case errors.Is(err, repository.ErrUsernameTaken):
		return AuthResult{}, apperr.ErrUsernameExists
	case err != nil:
		return AuthResult{}, apperr.Internal("register: create user", err)
	}
	m.ucache.Put(ctx, u)

	tokens, err := m.issue(ctx, u, true)
	if err != nil {
		return AuthResult{}, err
	}
	return AuthResult{Tokens: tokens, User: u.Summary()}, nil
}

// Refresh exchanges a refresh token for a new access token. With rotation
// on, the presented token is consumed with a conditional delete before the
// replacement is issued; of two concurrent refreshes with the same value
// only the one whose delete removed the row succeeds.
func (m *Manager) Refresh(ctx context.Context, refreshToken string) (t Tokens, err error) {
	defer m.observe("refresh", &err)

	hash := utils.HashToken(refreshToken)
	tok, err := m.lookupToken(ctx, hash)
	if err != nil {
		return Tokens{}, err
	}
	if tok.Kind != model.TokenRefresh {
		return Tokens{}, apperr.ErrInvalidToken
	}
	if tok.Expired(m.now()) {
		if err := m.dropToken(ctx, hash); err != nil {
			return Tokens{}, err
		}
		return Tokens{}, apperr.ErrTokenExpired
	}

	u, err := m.ucache.ByID(ctx, tok.UserID, m.users.GetByID)
	if err != nil {
		if isAbsent(err) {
			return Tokens{}, apperr.ErrInvalidToken
		}
		return Tokens{}, apperr.Internal("refresh: lookup user", err)
	}

	if !m.cfg.Rotate {
		return m.issue(ctx, u, false)
	}

	consumed, err := m.tokens.Consume(ctx, hash)
	if err != nil {
		return Tokens{}, apperr.Internal("refresh: consume token", err)
	}
	m.uncacheTokens(ctx, hash)
	if !consumed {
		m.log.Warn().Str("user_id", u.ID).Msg("refresh token already consumed")
		return Tokens{}, apperr.ErrInvalidToken
	}
	return m.issue(ctx, u, true)
}

// Logout deletes the refresh token from the store and the cache. Unknown or
// already deleted tokens succeed.
func (m *Manager) Logout(ctx context.Context, refreshToken string) (err error) {
	defer m.observe("logout", &err)

	hash := utils.HashToken(refreshToken)
	var userID string
	if m.cfg.SessionBoundUserCache {
		if tok, err := m.lookupToken(ctx, hash); err == nil {
			userID = tok.UserID
		}
	}
	if err := m.tokens.Delete(ctx, hash); err != nil {
		return apperr.Internal("logout: delete token", err)
	}
	m.uncacheTokens(ctx, hash)
	if userID != "" {
		if err := m.cache.Delete(ctx, cache.UserKey(userID)); err != nil {
			m.log.Warn().Err(err).Str("user_id", userID).Msg("cache delete failed")
		}
	}
	return nil
}

// LogoutAll revokes every live token of the user.
func (m *Manager) LogoutAll(ctx context.Context, userID string) (err error) {
	defer m.observe("logout_all", &err)

	hashes, err := m.tokens.RevokeAllForUser(ctx, userID, m.now().UTC())
	if err != nil {
		return apperr.Internal("logout all: revoke", err)
	}
	m.uncacheTokens(ctx, hashes...)
	if m.cfg.SessionBoundUserCache {
		if err := m.cache.Delete(ctx, cache.UserKey(userID)); err != nil {
			m.log.Warn().Err(err).Str("user_id", userID).Msg("cache delete failed")
		}
	}
	return nil
}

// VerifyAccess validates an access token and checks that its subject is
// still an active user.
func (m *Manager) VerifyAccess(ctx context.Context, accessToken string) (Identity, error) {
	claims, err := m.issuer.ParseAccess(accessToken)
	if err != nil {
		if errors.Is(err, utils.ErrAccessExpired) {
			return Identity{}, apperr.ErrTokenExpired
		}
		return Identity{}, apperr.ErrInvalidToken
	}
	if _, err := m.ucache.ByID(ctx, claims.Subject, m.users.GetByID); err != nil {
		if isAbsent(err) {
			return Identity{}, apperr.ErrInvalidToken
		}
		return Identity{}, apperr.Internal("verify: lookup user", err)
	}
	id := Identity{UserID: claims.Subject, Email: claims.Email}
	if claims.IssuedAt != nil {
		id.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		id.ExpiresAt = claims.ExpiresAt.Time
	}
	return id, nil
}

// issue mints an access token and, when withRefresh is set, a persisted
// refresh token mirrored into the cache. Persistence is synchronous: a lost
// refresh token row would lock the user out.
func (m *Manager) issue(ctx context.Context, u model.User, withRefresh bool) (Tokens, error) {
	access, err := m.issuer.NewAccess(u.ID, u.Email, m.cfg.AccessTTL)
	if err != nil {
		return Tokens{}, apperr.Internal("issue: access token", err)
	}
	out := Tokens{AccessToken: access.Token, AccessExpiresAt: access.Exp, TokenType: "Bearer"}
	if !withRefresh {
		return out, nil
	}

	raw, tok, err := m.persistToken(ctx, u.ID, model.TokenRefresh, m.cfg.RefreshTTL)
	if err != nil {
		return Tokens{}, err
	}
	m.cacheToken(ctx, tok)
	out.RefreshToken = raw
	out.RefreshExpiresAt = tok.ExpiresAt
	return out, nil
}

func (m *Manager) persistToken(ctx context.Context, userID string, kind model.TokenKind, ttl time.Duration) (string, model.Token, error) {
	opaque, err := m.issuer.NewOpaque(ttl)
	if err != nil {
		return "", model.Token{}, apperr.Internal("issue: random token", err)
	}
	tok := model.Token{
		Hash:      opaque.Hash,
		UserID:    userID,
		Kind:      kind,
		ExpiresAt: opaque.Exp,
		CreatedAt: m.now().UTC(),
	}
	if err := m.tokens.Create(ctx, tok); err != nil {
		if errors.Is(err, repository.ErrTokenExists) {
			return "", model.Token{}, apperr.ErrTokenExists
		}
		return "", model.Token{}, apperr.Internal("issue: persist token", err)
	}
	return opaque.Raw, tok, nil
}

func (m *Manager) observe(op string, err *error) {
	outcome := "ok"
	if *err != nil {
		var ae *apperr.Error
		if errors.As(*err, &ae) {
			outcome = ae.Code
		} else {
			outcome = "internal"
		}
	}
	metrics.SessionOps.WithLabelValues(op, outcome).Inc()
	if *err != nil && apperr.KindOf(*err) == apperr.KindInternal {
		m.log.Error().Err(*err).Str("op", op).Msg("session operation failed")
	}
}

// isAbsent reports whether err means the user does not exist or is deleted.
func isAbsent(err error) bool {
	return errors.Is(err, repository.ErrNotFound) || errors.Is(err, cache.ErrGone)
}
