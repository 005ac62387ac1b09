package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/devhub-auth/internal/model"
)

// TokenRepo persists refresh and reset tokens (single 'token_hash' key).
type TokenRepo struct{ DB *sql.DB }

func NewTokenRepo(db *sql.DB) *TokenRepo { return &TokenRepo{DB: db} }

var _ TokenStore = (*TokenRepo)(nil)

// Create inserts a token hash row.
func (r *TokenRepo) Create(ctx context.Context, t model.Token) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO tokens (token_hash, user_id, kind, expires_at, created_at) VALUES (?,?,?,?,?)",
		t.Hash, t.UserID, string(t.Kind), t.ExpiresAt.UTC(), t.CreatedAt.UTC())
	if err != nil {
		if _, dup := duplicateKey(err); dup {
			return ErrTokenExists
		}
		return fmt.Errorf("tokens: create: %w", err)
	}
	return nil
}

// Get returns a non-revoked token. Expiry is left to the caller, which must
// delete expired tokens it encounters.
func (r *TokenRepo) Get(ctx context.Context, hash string) (model.Token, error) {
	var (
		t    model.Token
		kind string
	)
	err := r.DB.QueryRowContext(ctx,
		"SELECT token_hash, user_id, kind, expires_at, created_at FROM tokens WHERE token_hash=? AND revoked_at IS NULL LIMIT 1",
		hash).Scan(&t.Hash, &t.UserID, &kind, &t.ExpiresAt, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Token{}, ErrNotFound
	}
	if err != nil {
		return model.Token{}, fmt.Errorf("tokens: get: %w", err)
	}
	t.Kind = model.TokenKind(kind)
	return t, nil
}

// Consume is a conditional delete: exactly one caller sees one affected row.
func (r *TokenRepo) Consume(ctx context.Context, hash string) (bool, error) {
	res, err := r.DB.ExecContext(ctx,
		"DELETE FROM tokens WHERE token_hash=? AND revoked_at IS NULL",
		hash)
	if err != nil {
		return false, fmt.Errorf("tokens: consume: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("tokens: consume: %w", err)
	}
	return n == 1, nil
}

func (r *TokenRepo) Delete(ctx context.Context, hash string) error {
	if _, err := r.DB.ExecContext(ctx, "DELETE FROM tokens WHERE token_hash=?", hash); err != nil {
		return fmt.Errorf("tokens: delete: %w", err)
	}
	return nil
}

// RevokeAllForUser revokes the user's active tokens in one transaction.
func (r *TokenRepo) RevokeAllForUser(ctx context.Context, userID string, at time.Time) ([]string, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("tokens: revoke all: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx,
		"SELECT token_hash FROM tokens WHERE user_id=? AND revoked_at IS NULL FOR UPDATE",
		userID)
	if err != nil {
		return nil, fmt.Errorf("tokens: revoke all: %w", err)
	}
	var hashes []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			rows.Close()
			return nil, fmt.Errorf("tokens: revoke all: %w", err)
		}
		hashes = append(hashes, h)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("tokens: revoke all: %w", err)
	}
	if len(hashes) == 0 {
		return nil, nil
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE tokens SET revoked_at=? WHERE user_id=? AND revoked_at IS NULL",
		at.UTC(), userID); err != nil {
		return nil, fmt.Errorf("tokens: revoke all: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("tokens: revoke all: %w", err)
	}
	return hashes, nil
}

// DeleteExpired uses the expires_at index.
func (r *TokenRepo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		"DELETE FROM tokens WHERE expires_at < ? OR revoked_at < ?",
		before.UTC(), before.UTC())
	if err != nil {
		return 0, fmt.Errorf("tokens: delete expired: %w", err)
	}
	return res.RowsAffected()
}
