package utils

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	ti := NewTokenIssuer("secret", "devhub-auth")

	at, err := ti.NewAccess("u1", "a@x.com", 15*time.Minute)
	if err != nil {
		t.Fatalf("NewAccess: %v", err)
	}
	claims, err := ti.ParseAccess(at.Token)
	if err != nil {
		t.Fatalf("ParseAccess: %v", err)
	}
	if claims.Subject != "u1" || claims.Email != "a@x.com" || claims.ID == "" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if d := time.Until(at.Exp); d < 14*time.Minute || d > 15*time.Minute {
		t.Fatalf("unexpected expiry in %v", d)
	}
}

func TestParseAccessRejects(t *testing.T) {
	ti := NewTokenIssuer("secret", "devhub-auth")
	good, _ := ti.NewAccess("u1", "a@x.com", time.Minute)

	t.Run("wrong secret", func(t *testing.T) {
		if _, err := NewTokenIssuer("other", "devhub-auth").ParseAccess(good.Token); err == nil {
			t.Fatal("expected signature error")
		}
	})

	t.Run("wrong issuer", func(t *testing.T) {
		if _, err := NewTokenIssuer("secret", "someone-else").ParseAccess(good.Token); err == nil {
			t.Fatal("expected issuer error")
		}
	})

	t.Run("expired", func(t *testing.T) {
		past := NewTokenIssuer("secret", "devhub-auth").WithClock(func() time.Time {
			return time.Now().Add(-time.Hour)
		})
		old, _ := past.NewAccess("u1", "a@x.com", time.Minute)
		if _, err := ti.ParseAccess(old.Token); !errors.Is(err, ErrAccessExpired) {
			t.Fatalf("want ErrAccessExpired, got %v", err)
		}
	})

	t.Run("alg none", func(t *testing.T) {
		claims := AccessClaims{Type: TypeAccess, RegisteredClaims: jwt.RegisteredClaims{
			Subject: "u1", Issuer: "devhub-auth", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}}
		raw, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
		if err != nil {
			t.Fatalf("sign none: %v", err)
		}
		if _, err := ti.ParseAccess(raw); err == nil {
			t.Fatal("unsigned token must be rejected")
		}
	})

	t.Run("not an access token", func(t *testing.T) {
		claims := AccessClaims{Type: "refresh", RegisteredClaims: jwt.RegisteredClaims{
			Subject: "u1", Issuer: "devhub-auth", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}}
		raw, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
		if _, err := ti.ParseAccess(raw); err == nil {
			t.Fatal("typ must be access")
		}
	})
}

func TestNewOpaque(t *testing.T) {
	ti := NewTokenIssuer("secret", "x")
	a, err := ti.NewOpaque(7 * 24 * time.Hour)
	if err != nil {
		t.Fatalf("NewOpaque: %v", err)
	}
	b, _ := ti.NewOpaque(time.Hour)

	if len(a.Raw) != 96 || a.Raw == b.Raw {
		t.Fatalf("unexpected raw tokens %q %q", a.Raw, b.Raw)
	}
	if a.Hash != HashToken(a.Raw) || a.Hash == a.Raw || len(a.Hash) != 64 {
		t.Fatalf("hash %q does not match raw", a.Hash)
	}
}

func TestPasswordHashing(t *testing.T) {
	h, err := HashPassword("secret1", bcrypt.MinCost)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !VerifyPassword(h, "secret1") {
		t.Fatal("correct password rejected")
	}
	if VerifyPassword(h, "secret2") {
		t.Fatal("wrong password accepted")
	}
}

func TestDummyHashIsStableAndValid(t *testing.T) {
	a := DummyHash(bcrypt.MinCost)
	if a == "" || a != DummyHash(bcrypt.MinCost) {
		t.Fatal("dummy hash must be computed once per cost")
	}
	if cost, err := bcrypt.Cost([]byte(a)); err != nil || cost != bcrypt.MinCost {
		t.Fatalf("dummy hash cost = %d, %v", cost, err)
	}
	if VerifyPassword(a, "anything") {
		t.Fatal("dummy hash must not match user input")
	}
}
