package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/devhub-auth/internal/model"
)

func TestTokenCreate(t *testing.T) {
	db, mock := newMock(t)
	exp := time.Now().Add(7 * 24 * time.Hour).UTC()
	now := time.Now().UTC()

	mock.ExpectExec(`^INSERT\s+INTO\s+tokens\b`).
		WithArgs("h1", "u1", "refresh", exp, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := NewTokenRepo(db).Create(context.Background(), model.Token{
		Hash: "h1", UserID: "u1", Kind: model.TokenRefresh, ExpiresAt: exp, CreatedAt: now,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenCreate_Duplicate(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec(`^INSERT\s+INTO\s+tokens\b`).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'h1' for key 'tokens.PRIMARY'"})

	err := NewTokenRepo(db).Create(context.Background(), model.Token{Hash: "h1"})
	assert.ErrorIs(t, err, ErrTokenExists)
}

func TestTokenGet(t *testing.T) {
	db, mock := newMock(t)
	exp := time.Now().Add(time.Hour)
	created := time.Now()

	mock.ExpectQuery(`FROM tokens WHERE token_hash=\? AND revoked_at IS NULL`).
		WithArgs("h1").
		WillReturnRows(sqlmock.NewRows([]string{"token_hash", "user_id", "kind", "expires_at", "created_at"}).
			AddRow("h1", "u1", "refresh", exp, created))

	tok, err := NewTokenRepo(db).Get(context.Background(), "h1")
	require.NoError(t, err)
	assert.Equal(t, "u1", tok.UserID)
	assert.Equal(t, model.TokenRefresh, tok.Kind)
	assert.True(t, tok.ExpiresAt.Equal(exp))
}

func TestTokenGet_NotFound(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(`FROM tokens WHERE token_hash=\?`).WillReturnError(sql.ErrNoRows)

	_, err := NewTokenRepo(db).Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTokenConsume_SingleWinner(t *testing.T) {
	db, mock := newMock(t)
	q := `^DELETE FROM tokens WHERE token_hash=\? AND revoked_at IS NULL$`
	mock.ExpectExec(q).WithArgs("h1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs("h1").WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewTokenRepo(db)
	first, err := repo.Consume(context.Background(), "h1")
	require.NoError(t, err)
	second, err := repo.Consume(context.Background(), "h1")
	require.NoError(t, err)

	assert.True(t, first)
	assert.False(t, second)
}

func TestTokenDelete_Error(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec(`^DELETE FROM tokens WHERE token_hash=\?$`).WillReturnError(errors.New("db down"))

	err := NewTokenRepo(db).Delete(context.Background(), "h1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}

func TestTokenRevokeAllForUser(t *testing.T) {
	db, mock := newMock(t)
	at := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(`^SELECT token_hash FROM tokens WHERE user_id=\? AND revoked_at IS NULL FOR UPDATE$`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"token_hash"}).AddRow("h1").AddRow("h2"))
	mock.ExpectExec(`^UPDATE tokens SET revoked_at=\? WHERE user_id=\? AND revoked_at IS NULL$`).
		WithArgs(at, "u1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	hashes, err := NewTokenRepo(db).RevokeAllForUser(context.Background(), "u1", at)
	require.NoError(t, err)
	assert.Equal(t, []string{"h1", "h2"}, hashes)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenRevokeAllForUser_NothingLive(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`^SELECT token_hash FROM tokens`).
		WillReturnRows(sqlmock.NewRows([]string{"token_hash"}))
	mock.ExpectRollback()

	hashes, err := NewTokenRepo(db).RevokeAllForUser(context.Background(), "u1", time.Now())
	require.NoError(t, err)
	assert.Empty(t, hashes)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenDeleteExpired(t *testing.T) {
	db, mock := newMock(t)
	before := time.Now().UTC()
	mock.ExpectExec(`^DELETE FROM tokens WHERE expires_at < \? OR revoked_at < \?$`).
		WithArgs(before, before).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := NewTokenRepo(db).DeleteExpired(context.Background(), before)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
}
