package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/devhub-auth/internal/model"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

var userCols = []string{"id", "email", "username", "password_hash", "name", "bio", "avatar_url",
	"github_url", "linkedin_url", "twitter_url", "is_active", "deleted_at", "created_at", "updated_at"}

func TestUserCreate_LowercasesEmail(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepo(db)
	now := time.Now()

	mock.ExpectExec(`^INSERT\s+INTO\s+users\b`).
		WithArgs("u1", "a@x.com", "alice", "hash", "", "", "", "", "", "", now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Create(context.Background(), model.User{
		ID: "u1", Email: " A@X.com", Username: "alice", PasswordHash: "hash",
		CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserCreate_DuplicateKeys(t *testing.T) {
	cases := []struct {
		key  string
		want error
	}{
		{"users.uq_users_email", ErrEmailTaken},
		{"users.uq_users_username", ErrUsernameTaken},
	}
	for _, tc := range cases {
		t.Run(tc.key, func(t *testing.T) {
			db, mock := newMock(t)
			mock.ExpectExec(`^INSERT\s+INTO\s+users\b`).
				WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'x' for key '" + tc.key + "'"})

			err := NewUserRepo(db).Create(context.Background(), model.User{ID: "u1", Email: "a@x.com", Username: "alice"})
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestUserGetByEmail_FiltersDeleted(t *testing.T) {
	db, mock := newMock(t)
	now := time.Now()

	mock.ExpectQuery(`FROM users WHERE email=\? AND is_active=1 AND deleted_at IS NULL`).
		WithArgs("a@x.com").
		WillReturnRows(sqlmock.NewRows(userCols).
			AddRow("u1", "a@x.com", "alice", "hash", "Alice", "bio", "", "", "", "", true, nil, now, now))

	u, err := NewUserRepo(db).GetByEmail(context.Background(), "A@x.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)
	assert.Equal(t, "Alice", u.Profile.Name)
	assert.Nil(t, u.DeletedAt)
	assert.True(t, u.IsActive)
}

func TestUserGetByID_NotFound(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(`FROM users WHERE id=\?`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := NewUserRepo(db).GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUserGetByID_DBError(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(`FROM users WHERE id=\?`).WillReturnError(errors.New("conn reset"))

	_, err := NewUserRepo(db).GetByID(context.Background(), "u1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "conn reset")
}

func TestUserEmailExists_IncludesDeleted(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(`^SELECT 1 FROM users WHERE email=\? LIMIT 1$`).
		WithArgs("a@x.com").
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectQuery(`^SELECT 1 FROM users WHERE username=\? LIMIT 1$`).
		WithArgs("bob").
		WillReturnError(sql.ErrNoRows)

	repo := NewUserRepo(db)
	ok, err := repo.EmailExists(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.UsernameExists(context.Background(), "bob")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUserApplyPatch_SortedWhitelistedColumns(t *testing.T) {
	db, mock := newMock(t)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec(`^` + regexp.QuoteMeta(
		"UPDATE users SET "+
			"bio=IF(bio_updated_at IS NULL OR bio_updated_at<=?,?,bio),"+
			"name=IF(name_updated_at IS NULL OR name_updated_at<=?,?,name),"+
			"bio_updated_at=GREATEST(COALESCE(bio_updated_at,?),?),"+
			"name_updated_at=GREATEST(COALESCE(name_updated_at,?),?) "+
			"WHERE id=? AND is_active=1 AND deleted_at IS NULL") + `$`).
		WithArgs(at, "x", at, "Alice", at, at, at, at, "u1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := NewUserRepo(db).ApplyPatch(context.Background(), "u1",
		model.ProfilePatch{model.FieldName: "Alice", model.FieldBio: "x"}, at)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserApplyPatch_RejectsUnknownField(t *testing.T) {
	db, mock := newMock(t)
	err := NewUserRepo(db).ApplyPatch(context.Background(), "u1", model.ProfilePatch{"password_hash": "x"}, time.Now())
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserApplyPatch_NoRowIsNotAnError(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec(`^UPDATE users SET bio=IF\(`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := NewUserRepo(db).ApplyPatch(context.Background(), "gone", model.ProfilePatch{model.FieldBio: "x"}, time.Now())
	assert.NoError(t, err)
}

func TestUserSoftDelete_KeepsFirstTimestamp(t *testing.T) {
	db, mock := newMock(t)
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	mock.ExpectExec(`^UPDATE users SET is_active=0, deleted_at=COALESCE\(deleted_at,\?\) WHERE id=\?$`).
		WithArgs(at, "u1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, NewUserRepo(db).SoftDelete(context.Background(), "u1", at))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserUpdatePassword_NotFound(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec(`^UPDATE users SET password_hash=\?`).
		WithArgs("h", "u1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := NewUserRepo(db).UpdatePassword(context.Background(), "u1", "h")
	assert.ErrorIs(t, err, ErrNotFound)
}
