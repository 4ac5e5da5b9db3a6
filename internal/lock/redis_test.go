package lock

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func newTestRedisManager(t *testing.T) (*RedisLockManager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisLockManager(client, "test:", MinTTL, zap.NewNop()), mr
}

func TestRedisLockExclusive(t *testing.T) {
	m, _ := newTestRedisManager(t)
	defer m.Close()

	h1, err := m.AcquireTopicLock("orders")
	if err != nil || h1 == nil {
		t.Fatalf("first acquire failed: handle=%v err=%v", h1, err)
	}

	h2, err := m.AcquireTopicLock("orders")
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if h2 != nil {
		t.Fatal("expected second acquire to report the topic already held")
	}

	if err := h1.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}

	h3, err := m.AcquireTopicLock("orders")
	if err != nil || h3 == nil {
		t.Fatalf("acquire after release failed: handle=%v err=%v", h3, err)
	}
	h3.Release()
}

func TestRedisLockReleaseOnlyDeletesOwnToken(t *testing.T) {
	m, mr := newTestRedisManager(t)
	defer m.Close()

	h, err := m.AcquireTopicLock("orders")
	if err != nil || h == nil {
		t.Fatalf("acquire failed: handle=%v err=%v", h, err)
	}

	// Simulate the TTL expiring and a different process reacquiring the
	// same key before our stale handle's Release runs.
	mr.Del("test:orders")
	mr.Set("test:orders", "someone-elses-token")

	if err := h.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}

	val, err := mr.Get("test:orders")
	if err != nil {
		t.Fatalf("expected the other holder's key to survive our release: %v", err)
	}
	if val != "someone-elses-token" {
		t.Fatalf("release must not delete a different holder's token, got %q", val)
	}
}

func TestRedisLockMinTTLEnforced(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	m := NewRedisLockManager(client, "test:", time.Second, zap.NewNop())
	if m.ttl != MinTTL {
		t.Fatalf("expected ttl to be floored to MinTTL, got %v", m.ttl)
	}
}
