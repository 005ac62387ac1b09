package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T, prefix string) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	return NewRedis(rdb, prefix), mr
}

func TestGetMissAndSet(t *testing.T) {
	c, mr := newTestCache(t, "auth")
	ctx := context.Background()

	if _, err := c.Get(ctx, UserKey("u1")); !errors.Is(err, ErrMiss) {
		t.Fatalf("want ErrMiss, got %v", err)
	}
	if err := c.Set(ctx, UserKey("u1"), []byte(`{"id":"u1"}`), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if !mr.Exists("auth:user:u1") {
		t.Fatal("expected prefixed key in redis")
	}
	if ttl := mr.TTL("auth:user:u1"); ttl != time.Minute {
		t.Fatalf("ttl = %v, want 1m", ttl)
	}
	b, err := c.Get(ctx, UserKey("u1"))
	if err != nil || string(b) != `{"id":"u1"}` {
		t.Fatalf("get = %q, %v", b, err)
	}
}

func TestSetWithoutTTLIsNoop(t *testing.T) {
	c, mr := newTestCache(t, "")
	if err := c.Set(context.Background(), TokenKey("h"), []byte("x"), 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	if mr.Exists("token:h") {
		t.Fatal("entries without expiry must never be written")
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	c, mr := newTestCache(t, "")
	ctx := context.Background()
	_ = c.Set(ctx, "a", []byte("1"), time.Minute)

	for i := 0; i < 2; i++ {
		if err := c.Delete(ctx, "a", "missing"); err != nil {
			t.Fatalf("delete #%d: %v", i+1, err)
		}
	}
	if mr.Exists("a") {
		t.Fatal("key should be gone")
	}
}

func TestEntriesExpire(t *testing.T) {
	c, mr := newTestCache(t, "")
	ctx := context.Background()
	_ = c.Set(ctx, "k", []byte("v"), time.Second)

	mr.FastForward(2 * time.Second)
	if _, err := c.Get(ctx, "k"); !errors.Is(err, ErrMiss) {
		t.Fatalf("want ErrMiss after expiry, got %v", err)
	}
}

func TestUpdateSeesNilOnMissAndRefreshesTTL(t *testing.T) {
	c, mr := newTestCache(t, "")
	ctx := context.Background()

	err := c.Update(ctx, "k", time.Hour, func(old []byte) ([]byte, error) {
		if old != nil {
			t.Fatalf("expected nil old value, got %q", old)
		}
		return []byte("1"), nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	mr.FastForward(30 * time.Minute)

	err = c.Update(ctx, "k", time.Hour, func(old []byte) ([]byte, error) {
		return append(old, '2'), nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ := mr.Get("k")
	if got != "12" {
		t.Fatalf("value = %q, want 12", got)
	}
	if ttl := mr.TTL("k"); ttl != time.Hour {
		t.Fatalf("ttl = %v, want refreshed 1h", ttl)
	}
}

func TestUpdateFnErrorLeavesValue(t *testing.T) {
	c, mr := newTestCache(t, "")
	ctx := context.Background()
	_ = c.Set(ctx, "k", []byte("keep"), time.Minute)

	boom := errors.New("boom")
	err := c.Update(ctx, "k", time.Minute, func([]byte) ([]byte, error) { return nil, boom })
	if !errors.Is(err, boom) {
		t.Fatalf("want boom, got %v", err)
	}
	if v, _ := mr.Get("k"); v != "keep" {
		t.Fatalf("value changed to %q", v)
	}
}

func TestConcurrentUpdatesAreNotLost(t *testing.T) {
	c, mr := newTestCache(t, "")
	ctx := context.Background()

	const writers = 4
	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := c.Update(ctx, "counter", time.Minute, func(old []byte) ([]byte, error) {
				return append(old, 'x'), nil
			})
			if err != nil && !errors.Is(err, ErrContention) {
				t.Errorf("update: %v", err)
				return
			}
			if err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	// Every successful update is reflected exactly once.
	got, _ := mr.Get("counter")
	if len(got) != ok {
		t.Fatalf("counter %q has %d writes, %d updates succeeded", got, len(got), ok)
	}
}

func TestTokenTTLCap(t *testing.T) {
	now := time.Now()
	if got := TokenTTL(now.Add(time.Hour), now); got != time.Hour {
		t.Fatalf("TokenTTL = %v, want 1h", got)
	}
	if got := TokenTTL(now.Add(-time.Second), now); got != 0 {
		t.Fatalf("TokenTTL for expired token = %v, want 0", got)
	}
}

func TestUserEmailKeyNormalizes(t *testing.T) {
	if got := UserEmailKey("  A@X.com "); got != "user:email:a@x.com" {
		t.Fatalf("UserEmailKey = %q", got)
	}
}

func TestNopAlwaysMisses(t *testing.T) {
	var c Cache = Nop{}
	ctx := context.Background()
	_ = c.Set(ctx, "k", []byte("v"), time.Minute)
	if _, err := c.Get(ctx, "k"); !errors.Is(err, ErrMiss) {
		t.Fatalf("want ErrMiss, got %v", err)
	}
	called := false
	_ = c.Update(ctx, "k", time.Minute, func(old []byte) ([]byte, error) {
		called = old == nil
		return []byte("v"), nil
	})
	if !called {
		t.Fatal("Update must run fn with a nil old value")
	}
}
