package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/devhub-auth/internal/model"
)

const userColumns = "id,email,username,password_hash,name,bio,avatar_url,github_url,linkedin_url,twitter_url,is_active,deleted_at,created_at,updated_at"

// UserRepo is the MySQL UserStore.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

var _ UserStore = (*UserRepo)(nil)

// Create inserts u. Email is stored lower-cased.
func (r *UserRepo) Create(ctx context.Context, u model.User) error {
	p := u.Profile
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (id,email,username,password_hash,name,bio,avatar_url,github_url,linkedin_url,twitter_url,is_active,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?,?,1,?,?)",
		u.ID, normalizeEmail(u.Email), u.Username, u.PasswordHash,
		p.Name, p.Bio, p.AvatarURL, p.GithubURL, p.LinkedinURL, p.TwitterURL,
		u.CreatedAt, u.UpdatedAt)
	if err != nil {
		if key, dup := duplicateKey(err); dup {
			if strings.Contains(key, "username") {
				return ErrUsernameTaken
			}
			return ErrEmailTaken
		}
		return fmt.Errorf("users: create: %w", err)
	}
	return nil
}

// GetByEmail fetches a live user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? AND is_active=1 AND deleted_at IS NULL LIMIT 1",
		normalizeEmail(email))
	return scanUser(row)
}

// GetByID fetches a live user by id.
func (r *UserRepo) GetByID(ctx context.Context, id string) (model.User, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? AND is_active=1 AND deleted_at IS NULL LIMIT 1",
		id)
	return scanUser(row)
}

func (r *UserRepo) EmailExists(ctx context.Context, email string) (bool, error) {
	return r.exists(ctx, "SELECT 1 FROM users WHERE email=? LIMIT 1", normalizeEmail(email))
}

func (r *UserRepo) UsernameExists(ctx context.Context, username string) (bool, error) {
	return r.exists(ctx, "SELECT 1 FROM users WHERE username=? LIMIT 1", username)
}

func (r *UserRepo) exists(ctx context.Context, q string, arg any) (bool, error) {
	var one int
	err := r.DB.QueryRowContext(ctx, q, arg).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("users: exists: %w", err)
	}
	return true, nil
}

// ApplyPatch updates the whitelisted profile columns named by patch. Each
// column is written only when its <column>_updated_at is not after at.
// MySQL evaluates SET assignments left to right, so every value is assigned
// before its version column moves.
func (r *UserRepo) ApplyPatch(ctx context.Context, id string, patch model.ProfilePatch, at time.Time) error {
	if err := patch.Validate(); err != nil {
		return err
	}
	at = at.UTC()
	keys := patch.Keys()
	sets := make([]string, 0, 2*len(keys))
	args := make([]any, 0, 4*len(keys)+1)
	// k is one of the model.Field* names, which are column names.
	for _, k := range keys {
		v := k + "_updated_at"
		sets = append(sets, fmt.Sprintf("%s=IF(%s IS NULL OR %s<=?,?,%s)", k, v, v, k))
		args = append(args, at, patch[k])
	}
	for _, k := range keys {
		v := k + "_updated_at"
		sets = append(sets, fmt.Sprintf("%s=GREATEST(COALESCE(%s,?),?)", v, v))
		args = append(args, at, at)
	}
	args = append(args, id)

	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET "+strings.Join(sets, ",")+" WHERE id=? AND is_active=1 AND deleted_at IS NULL",
		args...)
	if err != nil {
		return fmt.Errorf("users: apply patch: %w", err)
	}
	return nil
}

func (r *UserRepo) SoftDelete(ctx context.Context, id string, at time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET is_active=0, deleted_at=COALESCE(deleted_at,?) WHERE id=?",
		at.UTC(), id)
	if err != nil {
		return fmt.Errorf("users: soft delete: %w", err)
	}
	return nil
}

func (r *UserRepo) UpdatePassword(ctx context.Context, id, hash string) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET password_hash=? WHERE id=? AND is_active=1 AND deleted_at IS NULL",
		hash, id)
	if err != nil {
		return fmt.Errorf("users: update password: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *UserRepo) Ping(ctx context.Context) error { return r.DB.PingContext(ctx) }

func scanUser(row *sql.Row) (model.User, error) {
	var (
		u         model.User
		deletedAt sql.NullTime
	)
	p := &u.Profile
	err := row.Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash,
		&p.Name, &p.Bio, &p.AvatarURL, &p.GithubURL, &p.LinkedinURL, &p.TwitterURL,
		&u.IsActive, &deletedAt, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, ErrNotFound
	}
	if err != nil {
		return model.User{}, fmt.Errorf("users: scan: %w", err)
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		u.DeletedAt = &t
	}
	return u, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
