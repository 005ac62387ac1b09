package utils

import (
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword returns bcrypt hash using the given cost.
func HashPassword(plain string, cost int) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPassword safely compares bcrypt hash and plain password.
func VerifyPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// cost -> *dummyHash
var dummies sync.Map

type dummyHash struct {
	once sync.Once
	hash string
}

// DummyHash returns a fixed bcrypt hash of the given cost. Comparing against
// it costs the same as a real comparison, so an unknown account and a wrong
// password take the same time.
func DummyHash(cost int) string {
	v, _ := dummies.LoadOrStore(cost, &dummyHash{})
	d := v.(*dummyHash)
	d.once.Do(func() {
		b, err := bcrypt.GenerateFromPassword([]byte("devhub-auth-dummy-password"), cost)
		if err == nil {
			d.hash = string(b)
		}
	})
	return d.hash
}
