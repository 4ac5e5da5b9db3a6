package offsetstore

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/launix-de/restructure/internal/offsetset"
)

func TestFrameUnframeRoundTrip(t *testing.T) {
	plain := []byte(`{"version":1,"ranges":[{"topic":"a","partition":0,"from":0,"to":9}]}`)
	framed, err := frame(plain)
	if err != nil {
		t.Fatalf("frame: %v", err)
	}
	if len(framed) == 0 {
		t.Fatal("expected non-empty lz4 frame")
	}
	back, err := unframe(framed)
	if err != nil {
		t.Fatalf("unframe: %v", err)
	}
	if string(back) != string(plain) {
		t.Fatalf("round trip mismatch: got %q want %q", back, plain)
	}
}

func TestNewRedisStoreDefaultsKeyPrefix(t *testing.T) {
	s := NewRedisStore(nil, "", 0)
	if s.key("orders") != "restructure:offsets:orders" {
		t.Fatalf("unexpected key: %q", s.key("orders"))
	}
}

func TestRedisStoreRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(client, "test:", time.Hour)

	set := offsetset.New()
	tp := offsetset.TopicPartition{Topic: "orders", Partition: 2}
	set.Add(tp, offsetset.OffsetRange{From: 0, To: 9, LastProcessed: time.Now()})
	set.Add(tp, offsetset.OffsetRange{From: 10, To: 19, LastProcessed: time.Now()})

	if err := store.Write("orders", set); err != nil {
		t.Fatalf("write: %v", err)
	}

	loaded, err := store.Read("orders")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	ranges := loaded.Ranges(tp)
	if len(ranges) != 1 || ranges[0].From != 0 || ranges[0].To != 19 {
		t.Fatalf("expected a single coalesced range 0-19, got %+v", ranges)
	}
}

func TestRedisStoreReadMissingIsNilNil(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(client, "test:", time.Hour)

	set, err := store.Read("nonexistent")
	if err != nil || set != nil {
		t.Fatalf("expected (nil, nil) for a missing topic, got (%v, %v)", set, err)
	}
}
