package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{ErrInvalidCredentials, http.StatusUnauthorized},
		{ErrTokenExpired, http.StatusUnauthorized},
		{ErrEmailExists, http.StatusConflict},
		{ErrUserNotFound, http.StatusNotFound},
		{ErrForbidden, http.StatusForbidden},
		{Validation("email is required"), http.StatusBadRequest},
		{Internal("store", errors.New("boom")), http.StatusInternalServerError},
		{errors.New("plain"), http.StatusInternalServerError},
		{fmt.Errorf("wrapped: %w", ErrInvalidToken), http.StatusUnauthorized},
	}
	for _, tc := range cases {
		if got := HTTPStatus(tc.err); got != tc.want {
			t.Fatalf("HTTPStatus(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestInternalKeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Internal("redis get", cause)
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to be reachable via errors.Is")
	}
	if KindOf(err) != KindInternal {
		t.Fatalf("expected internal kind, got %v", KindOf(err))
	}
	if err.Message != "internal server error" {
		t.Fatalf("internal message must stay generic, got %q", err.Message)
	}
}

func TestSentinelMatchesByCode(t *testing.T) {
	wrapped := &Error{Kind: KindUnauthorized, Code: ErrTokenExpired.Code, Message: "x", Err: errors.New("lazy delete")}
	if !errors.Is(wrapped, ErrTokenExpired) {
		t.Fatalf("expected code match")
	}
	if errors.Is(wrapped, ErrInvalidToken) {
		t.Fatalf("different codes must not match")
	}
}
