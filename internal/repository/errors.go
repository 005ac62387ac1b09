// Package repository defines the credential store contracts and their MySQL
// implementation. The sentinel errors below are shared by every store
// implementation so that services can translate them without knowing the
// backend.
package repository

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

var (
	// ErrNotFound is returned when no live record matches. Soft-deleted
	// users and revoked tokens are reported as not found.
	ErrNotFound = errors.New("not found")

	ErrEmailTaken    = errors.New("email already exists")
	ErrUsernameTaken = errors.New("username already exists")
	ErrTokenExists   = errors.New("token value already exists")
)

const mysqlDuplicateEntry = 1062

// duplicateKey reports whether err is a MySQL unique violation and, if so,
// the offending key name as found in the error message.
func duplicateKey(err error) (string, bool) {
	var me *mysql.MySQLError
	if !errors.As(err, &me) || me.Number != mysqlDuplicateEntry {
		return "", false
	}
	// Message format: Duplicate entry 'x' for key 'users.uq_users_email'
	msg := me.Message
	if i := strings.LastIndex(msg, "for key '"); i >= 0 {
		return strings.TrimSuffix(msg[i+len("for key '"):], "'"), true
	}
	return msg, true
}
