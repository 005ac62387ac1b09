// Package apperr defines the error taxonomy shared by the session, profile
// and handler layers. Every error that crosses the HTTP boundary is either an
// *Error or gets rendered as an Internal one.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error by how the caller should react to it.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthorized
	KindConflict
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnauthorized:
		return "unauthorized"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// Error is a classified application error. Code is a stable machine-readable
// identifier, Message is safe to show to clients and Err (if any) is the
// underlying cause, which is never rendered.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return e.Code
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches two *Error values by code so sentinels work with errors.Is even
// after being wrapped with a cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

var (
	ErrInvalidCredentials = &Error{Kind: KindUnauthorized, Code: "invalid_credentials", Message: "invalid email or password"}
	ErrInvalidToken       = &Error{Kind: KindUnauthorized, Code: "invalid_token", Message: "invalid or revoked token"}
	ErrTokenExpired       = &Error{Kind: KindUnauthorized, Code: "token_expired", Message: "token expired"}
	ErrEmailExists        = &Error{Kind: KindConflict, Code: "email_exists", Message: "email already registered"}
	ErrUsernameExists     = &Error{Kind: KindConflict, Code: "username_exists", Message: "username already taken"}
	ErrTokenExists        = &Error{Kind: KindConflict, Code: "token_exists", Message: "token value already issued"}
	ErrUserNotFound       = &Error{Kind: KindNotFound, Code: "user_not_found", Message: "user not found"}
	ErrForbidden          = &Error{Kind: KindUnauthorized, Code: "forbidden", Message: "not allowed"}
)

// Validation builds a KindValidation error with a client-facing message.
func Validation(msg string) *Error {
	return &Error{Kind: KindValidation, Code: "validation_failed", Message: msg}
}

// Internal wraps a dependency failure. op names the failing step and is only
// used for logs.
func Internal(op string, err error) *Error {
	return &Error{Kind: KindInternal, Code: "internal", Message: "internal server error", Err: fmt.Errorf("%s: %w", op, err)}
}

// KindOf reports the kind of err; unclassified errors are Internal.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// HTTPStatus maps err to the status code used at the HTTP boundary.
func HTTPStatus(err error) int {
	var ae *Error
	if !errors.As(err, &ae) {
		return http.StatusInternalServerError
	}
	if ae.Code == ErrForbidden.Code {
		return http.StatusForbidden
	}
	switch ae.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
