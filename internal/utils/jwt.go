package utils // package utils provides helper functions for token creation and hashing

import (
	"crypto/rand"   // secure random number generation
	"crypto/sha256" // SHA-256 hashing for opaque tokens
	"encoding/hex"  // hex encoding
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5" // JWT library for creating signed tokens
	"github.com/google/uuid"
)

// TypeAccess is the value of the "typ" claim on access tokens.
const TypeAccess = "access"

// ErrAccessExpired is returned by ParseAccess for a well-formed, correctly
// signed token whose exp is in the past.
var ErrAccessExpired = errors.New("access token expired")

// AccessToken represents a signed JWT access token along with its expiry.
// Access tokens are stateless and never persisted.
type AccessToken struct {
	Token string    // the serialized JWT string
	Exp   time.Time // the UTC expiration time
}

// OpaqueToken is a random refresh or reset token. Raw goes to the client
// once; only Hash is stored.
type OpaqueToken struct {
	Raw  string
	Hash string
	Exp  time.Time
}

// AccessClaims are the claims carried by access tokens.
type AccessClaims struct {
	Email string `json:"email"`
	Type  string `json:"typ"`
	jwt.RegisteredClaims
}

// TokenIssuer mints and verifies tokens with a single HS256 secret.
type TokenIssuer struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewTokenIssuer(secret, issuer string) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), issuer: issuer, now: time.Now}
}

// WithClock overrides the issuer's time source.
func (ti *TokenIssuer) WithClock(now func() time.Time) *TokenIssuer {
	ti.now = now
	return ti
}

// NewAccess builds and signs an HS256 JWT for a user. The JWT includes the
// standard claims sub, iss, exp, iat and a random jti, plus email and typ.
func (ti *TokenIssuer) NewAccess(userID, email string, ttl time.Duration) (AccessToken, error) {
	now := ti.now().UTC()
	exp := now.Add(ttl)
	claims := AccessClaims{
		Email: email,
		Type:  TypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    ti.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ti.secret)
	if err != nil {
		return AccessToken{}, fmt.Errorf("sign access token: %w", err)
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}

// ParseAccess verifies signature, algorithm, issuer, expiry and typ.
func (ti *TokenIssuer) ParseAccess(raw string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	tok, err := jwt.ParseWithClaims(raw, claims,
		func(t *jwt.Token) (any, error) { return ti.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(ti.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(ti.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrAccessExpired
		}
		return nil, err
	}
	if !tok.Valid || claims.Type != TypeAccess || claims.Subject == "" {
		return nil, errors.New("not an access token")
	}
	return claims, nil
}

// NewOpaque returns a cryptographically secure random token and its hash,
// expiring ttl from now.
func (ti *TokenIssuer) NewOpaque(ttl time.Duration) (OpaqueToken, error) {
	// 48 bytes -> 96 hex chars
	raw, err := randomHex(48)
	if err != nil {
		return OpaqueToken{}, err
	}
	return OpaqueToken{
		Raw:  raw,
		Hash: HashToken(raw),
		Exp:  ti.now().UTC().Add(ttl),
	}, nil
}

// HashToken returns the SHA-256 hash of a raw opaque token as a hex string.
// Storing only the hash prevents stolen database rows or cache entries from
// being replayed.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// randomHex returns a hex-encoded string generated from n bytes of
// cryptographically secure random data.
func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
