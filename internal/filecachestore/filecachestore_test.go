package filecachestore

import (
	"errors"
	"testing"
	"time"

	"github.com/launix-de/restructure/internal/filecache"
	localdriver "github.com/launix-de/restructure/internal/objectstore/local"
)

func openCache(t *testing.T, outDir, target string) *filecache.Cache {
	t.Helper()
	driver := localdriver.New(outDir)
	c, err := filecache.Open(filecache.Options{
		TempDir: t.TempDir(),
		Target:  target,
		Format:  "csv",
		Driver:  driver,
	})
	if err != nil {
		t.Fatalf("open %s: %v", target, err)
	}
	return c
}

func TestStoreOpensOnMissAndReusesOnHit(t *testing.T) {
	outDir := t.TempDir()
	opens := 0
	s := New(10, func(target string) (*filecache.Cache, error) {
		opens++
		return openCache(t, outDir, target), nil
	})

	resp, err := s.WriteRecord("a.csv", func(c *filecache.Cache) (bool, error) {
		return c.WriteRecord(map[string]any{"a": "1"})
	})
	if err != nil || resp != NoCacheAndWrite {
		t.Fatalf("expected NoCacheAndWrite, got resp=%v err=%v", resp, err)
	}

	resp, err = s.WriteRecord("a.csv", func(c *filecache.Cache) (bool, error) {
		return c.WriteRecord(map[string]any{"a": "2"})
	})
	if err != nil || resp != CacheAndWrite {
		t.Fatalf("expected CacheAndWrite, got resp=%v err=%v", resp, err)
	}
	if opens != 1 {
		t.Fatalf("expected exactly one open, got %d", opens)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestStoreEvictsColdestHalfWhenFull(t *testing.T) {
	outDir := t.TempDir()
	s := New(2, func(target string) (*filecache.Cache, error) {
		return openCache(t, outDir, target), nil
	})

	targets := []string{"a.csv", "b.csv"}
	for _, tgt := range targets {
		if _, err := s.WriteRecord(tgt, func(c *filecache.Cache) (bool, error) {
			return c.WriteRecord(map[string]any{"a": "1"})
		}); err != nil {
			t.Fatalf("write %s: %v", tgt, err)
		}
		time.Sleep(time.Millisecond)
	}

	if len(s.caches) != 2 {
		t.Fatalf("expected pool at capacity, got %d", len(s.caches))
	}

	// A third distinct target forces ensureCapacity to evict the coldest half.
	if _, err := s.WriteRecord("c.csv", func(c *filecache.Cache) (bool, error) {
		return c.WriteRecord(map[string]any{"a": "1"})
	}); err != nil {
		t.Fatalf("write c.csv: %v", err)
	}

	if _, stillPooled := s.caches["a.csv"]; stillPooled {
		t.Fatal("expected the coldest entry (a.csv) to have been evicted")
	}
	if _, pooled := s.caches["c.csv"]; !pooled {
		t.Fatal("expected the newly opened entry to be pooled")
	}

	s.Close()
}

func TestStoreReportsCacheAndNoWriteOnSchemaMismatch(t *testing.T) {
	outDir := t.TempDir()
	s := New(10, func(target string) (*filecache.Cache, error) {
		return openCache(t, outDir, target), nil
	})

	resp, err := s.WriteRecord("a.csv", func(c *filecache.Cache) (bool, error) {
		return c.WriteRecord(map[string]any{"a": "1"})
	})
	if err != nil || resp != NoCacheAndWrite {
		t.Fatalf("expected NoCacheAndWrite, got resp=%v err=%v", resp, err)
	}

	// Same (now pooled) target, a shape that doesn't match the pinned header:
	// a cache hit that the converter still rejects.
	resp, err = s.WriteRecord("a.csv", func(c *filecache.Cache) (bool, error) {
		return c.WriteRecord(map[string]any{"a": "1", "b": "2"})
	})
	if err != nil || resp != CacheAndNoWrite {
		t.Fatalf("expected CacheAndNoWrite, got resp=%v err=%v", resp, err)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestStoreWriteErrorRemovesAndClosesCache(t *testing.T) {
	outDir := t.TempDir()
	s := New(10, func(target string) (*filecache.Cache, error) {
		return openCache(t, outDir, target), nil
	})

	resp, err := s.WriteRecord("a.csv", func(c *filecache.Cache) (bool, error) {
		return false, errors.New("boom")
	})
	if err == nil || resp != NoCacheAndNoWrite {
		t.Fatalf("expected NoCacheAndNoWrite with error, got resp=%v err=%v", resp, err)
	}
	if _, pooled := s.caches["a.csv"]; pooled {
		t.Fatal("a cache that errored on write must be removed from the pool")
	}
}

func TestStoreOpenFailureReturnsNoCacheAndNoWrite(t *testing.T) {
	s := New(10, func(target string) (*filecache.Cache, error) {
		return nil, errors.New("cannot open")
	})

	resp, err := s.WriteRecord("a.csv", func(c *filecache.Cache) (bool, error) {
		t.Fatal("write must not be called when open fails")
		return false, nil
	})
	if err == nil || resp != NoCacheAndNoWrite {
		t.Fatalf("expected NoCacheAndNoWrite, got resp=%v err=%v", resp, err)
	}
}
