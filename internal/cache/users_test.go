package cache

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/iliyamo/devhub-auth/internal/model"
)

func countingLoader(u model.User, err error, calls *int) Loader {
	return func(context.Context, string) (model.User, error) {
		*calls++
		return u, err
	}
}

func TestUsersByEmail_MissThenHit(t *testing.T) {
	c, mr := newTestCache(t, "")
	users := NewUsers(c, time.Hour, zerolog.New(io.Discard))
	ctx := context.Background()
	want := model.User{ID: "u1", Email: "a@x.com", IsActive: true, PasswordHash: "h"}

	calls := 0
	load := countingLoader(want, nil, &calls)
	for i := 0; i < 2; i++ {
		got, err := users.ByEmail(ctx, "A@x.com", load)
		if err != nil || got.ID != "u1" || got.PasswordHash != "h" {
			t.Fatalf("ByEmail #%d = %+v, %v", i+1, got, err)
		}
	}
	if calls != 1 {
		t.Fatalf("store consulted %d times, want 1", calls)
	}
	if ttl := mr.TTL("user:email:a@x.com"); ttl != time.Hour {
		t.Fatalf("email key ttl = %v", ttl)
	}
	if !mr.Exists("user:u1") {
		t.Fatal("id key should be populated too")
	}
}

func TestUsersMissIsNotAbsence(t *testing.T) {
	c, _ := newTestCache(t, "")
	users := NewUsers(c, time.Hour, zerolog.New(io.Discard))

	calls := 0
	_, err := users.ByID(context.Background(), "u1", countingLoader(model.User{}, errNotFoundForTest, &calls))
	if !errors.Is(err, errNotFoundForTest) || calls != 1 {
		t.Fatalf("ByID = %v after %d loads", err, calls)
	}
}

var errNotFoundForTest = errors.New("not found")

func TestUsersTombstone(t *testing.T) {
	c, _ := newTestCache(t, "")
	users := NewUsers(c, time.Hour, zerolog.New(io.Discard))
	ctx := context.Background()
	u := model.User{ID: "u1", Email: "a@x.com", IsActive: true}

	users.Tombstone(ctx, u, time.Now())

	calls := 0
	load := countingLoader(u, nil, &calls)
	if _, err := users.ByID(ctx, "u1", load); !errors.Is(err, ErrGone) {
		t.Fatalf("want ErrGone, got %v", err)
	}
	if _, err := users.ByEmail(ctx, "a@x.com", load); !errors.Is(err, ErrGone) {
		t.Fatalf("want ErrGone, got %v", err)
	}
	if calls != 0 {
		t.Fatal("a tombstone must not fall through to the store")
	}
}

func TestUsersCorruptEntryFallsBackToStore(t *testing.T) {
	c, mr := newTestCache(t, "")
	users := NewUsers(c, time.Hour, zerolog.New(io.Discard))
	_ = mr.Set("user:u1", "{garbage")

	calls := 0
	got, err := users.ByID(context.Background(), "u1", countingLoader(model.User{ID: "u1", IsActive: true}, nil, &calls))
	if err != nil || got.ID != "u1" || calls != 1 {
		t.Fatalf("ByID = %+v, %v, calls=%d", got, err, calls)
	}
}

func TestUsersCacheDownFallsBackToStore(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	t.Cleanup(func() { rdb.Close() })
	users := NewUsers(NewRedis(rdb, ""), time.Hour, zerolog.New(io.Discard))

	calls := 0
	got, err := users.ByID(context.Background(), "u1", countingLoader(model.User{ID: "u1", IsActive: true}, nil, &calls))
	if err != nil || got.ID != "u1" {
		t.Fatalf("cache outage must not fail the read: %+v, %v", got, err)
	}
}
