// Package repotest provides in-memory credential stores for tests. They
// honour the same contracts as the MySQL and MongoDB stores: soft-deleted
// users are invisible to reads, uniqueness covers deleted rows, and Consume
// has exactly one winner.
package repotest

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/devhub-auth/internal/model"
	"github.com/iliyamo/devhub-auth/internal/repository"
)

// Users is an in-memory repository.UserStore.
type Users struct {
	mu   sync.Mutex
	rows map[string]model.User
	err  error
	// versions holds, per user and profile field, the time of the patch
	// that last set it.
	versions map[string]map[string]time.Time

	// Reads counts GetByID and GetByEmail calls.
	Reads int
}

func NewUsers() *Users {
	return &Users{rows: map[string]model.User{}, versions: map[string]map[string]time.Time{}}
}

var _ repository.UserStore = (*Users)(nil)

// FailWith makes every subsequent call return err (nil restores).
func (s *Users) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Row returns the stored row, deleted or not, bypassing every filter.
func (s *Users) Row(id string) (model.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.rows[id]
	return u, ok
}

func (s *Users) Create(_ context.Context, u model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	for _, r := range s.rows {
		if r.Email == u.Email {
			return repository.ErrEmailTaken
		}
		if r.Username == u.Username {
			return repository.ErrUsernameTaken
		}
	}
	u.IsActive = true
	s.rows[u.ID] = u
	return nil
}

func (s *Users) GetByID(_ context.Context, id string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Reads++
	if s.err != nil {
		return model.User{}, s.err
	}
	u, ok := s.rows[id]
	if !ok || u.Deleted() {
		return model.User{}, repository.ErrNotFound
	}
	return u, nil
}

func (s *Users) GetByEmail(_ context.Context, email string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Reads++
	if s.err != nil {
		return model.User{}, s.err
	}
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range s.rows {
		if u.Email == email && !u.Deleted() {
			return u, nil
		}
	}
	return model.User{}, repository.ErrNotFound
}

func (s *Users) EmailExists(_ context.Context, email string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range s.rows {
		if u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (s *Users) UsernameExists(_ context.Context, username string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	for _, u := range s.rows {
		if u.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (s *Users) ApplyPatch(_ context.Context, id string, patch model.ProfilePatch, at time.Time) error {
	if err := patch.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	u, ok := s.rows[id]
	if !ok || u.Deleted() {
		return nil
	}
	seen := s.versions[id]
	if seen == nil {
		seen = map[string]time.Time{}
		s.versions[id] = seen
	}
	newer := model.ProfilePatch{}
	for k, v := range patch {
		if last, ok := seen[k]; ok && last.After(at) {
			continue
		}
		newer[k] = v
		seen[k] = at
	}
	u.Profile.Apply(newer)
	s.rows[id] = u
	return nil
}

func (s *Users) SoftDelete(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	u, ok := s.rows[id]
	if !ok {
		return nil
	}
	u.IsActive = false
	if u.DeletedAt == nil {
		at = at.UTC()
		u.DeletedAt = &at
	}
	s.rows[id] = u
	return nil
}

func (s *Users) UpdatePassword(_ context.Context, id, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	u, ok := s.rows[id]
	if !ok || u.Deleted() {
		return repository.ErrNotFound
	}
	u.PasswordHash = hash
	s.rows[id] = u
	return nil
}

func (s *Users) Ping(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Tokens is an in-memory repository.TokenStore.
type Tokens struct {
	mu   sync.Mutex
	rows map[string]model.Token
	err  error
}

func NewTokens() *Tokens { return &Tokens{rows: map[string]model.Token{}} }

var _ repository.TokenStore = (*Tokens)(nil)

func (s *Tokens) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Row returns the stored token, revoked or not.
func (s *Tokens) Row(hash string) (model.Token, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.rows[hash]
	return t, ok
}

// ForUser returns every stored token of the user.
func (s *Tokens) ForUser(userID string) []model.Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Token
	for _, t := range s.rows {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out
}

func (s *Tokens) Create(_ context.Context, t model.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if _, dup := s.rows[t.Hash]; dup {
		return repository.ErrTokenExists
	}
	s.rows[t.Hash] = t
	return nil
}

func (s *Tokens) Get(_ context.Context, hash string) (model.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return model.Token{}, s.err
	}
	t, ok := s.rows[hash]
	if !ok || t.RevokedAt != nil {
		return model.Token{}, repository.ErrNotFound
	}
	return t, nil
}

func (s *Tokens) Consume(_ context.Context, hash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	t, ok := s.rows[hash]
	if !ok || t.RevokedAt != nil {
		return false, nil
	}
	delete(s.rows, hash)
	return true, nil
}

func (s *Tokens) Delete(_ context.Context, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	delete(s.rows, hash)
	return nil
}

func (s *Tokens) RevokeAllForUser(_ context.Context, userID string, at time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	var hashes []string
	for h, t := range s.rows {
		if t.UserID == userID && t.RevokedAt == nil {
			revoked := at
			t.RevokedAt = &revoked
			s.rows[h] = t
			hashes = append(hashes, h)
		}
	}
	return hashes, nil
}

func (s *Tokens) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	var n int64
	for h, t := range s.rows {
		if t.ExpiresAt.Before(before) || (t.RevokedAt != nil && t.RevokedAt.Before(before)) {
			delete(s.rows, h)
			n++
		}
	}
	return n, nil
}
