package offsetstore

import (
	"os"
	"testing"
	"time"

	"github.com/launix-de/restructure/internal/offsetset"
)

func TestFileStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	fs := NewFileStore(dir)

	set := offsetset.New()
	tp := offsetset.TopicPartition{Topic: "orders", Partition: 0}
	set.Add(tp, offsetset.OffsetRange{From: 0, To: 9, LastProcessed: time.Now()})
	set.Add(tp, offsetset.OffsetRange{From: 10, To: 19, LastProcessed: time.Now()})

	if err := fs.Write("orders", set); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	loaded, err := fs.Read("orders")
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	ranges := loaded.Ranges(tp)
	if len(ranges) != 1 || ranges[0].From != 0 || ranges[0].To != 19 {
		t.Fatalf("expected a single coalesced range 0-19, got %+v", ranges)
	}
}

func TestFileStoreReadMissingIsNilNil(t *testing.T) {
	fs := NewFileStore(t.TempDir())
	set, err := fs.Read("nonexistent")
	if err != nil || set != nil {
		t.Fatalf("expected (nil, nil) for a missing topic, got (%v, %v)", set, err)
	}
}

func TestFileStoreWriteBacksUpPreviousFile(t *testing.T) {
	dir := t.TempDir()
	fs := NewFileStore(dir)
	tp := offsetset.TopicPartition{Topic: "a", Partition: 0}

	first := offsetset.New()
	first.Add(tp, offsetset.OffsetRange{From: 0, To: 0, LastProcessed: time.Now()})
	if err := fs.Write("a", first); err != nil {
		t.Fatalf("first write: %v", err)
	}

	second := offsetset.New()
	second.Add(tp, offsetset.OffsetRange{From: 0, To: 1, LastProcessed: time.Now()})
	if err := fs.Write("a", second); err != nil {
		t.Fatalf("second write: %v", err)
	}

	if _, err := os.Stat(fs.bakPath("a")); err != nil {
		t.Fatalf("expected backup file to exist: %v", err)
	}
}
