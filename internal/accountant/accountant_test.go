package accountant

import (
	"os"
	"sync"
	"testing"
	"time"

	"github.com/launix-de/restructure/internal/offsetset"
	"github.com/launix-de/restructure/internal/offsetstore"
)

type memBackend struct {
	mu   sync.Mutex
	sets map[string]*offsetset.Set
}

func newMemBackend() *memBackend {
	return &memBackend{sets: make(map[string]*offsetset.Set)}
}

func (m *memBackend) Read(topic string) (*offsetset.Set, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sets[topic], nil
}

func (m *memBackend) Write(topic string, set *offsetset.Set) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets[topic] = set
	return nil
}

func TestAccountantContainsReflectsLoadedState(t *testing.T) {
	backend := newMemBackend()
	tp := offsetset.TopicPartition{Topic: "orders", Partition: 0}
	preloaded := offsetset.New()
	preloaded.AddOffset(tp, 5, time.Now())
	backend.sets["orders"] = preloaded

	store := offsetstore.New(backend, nil)
	defer store.Close()

	a, err := New("orders", store, t.TempDir(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer a.Close()

	if !a.Contains(tp, 5) {
		t.Fatal("expected preloaded offset 5 to be contained")
	}
	if a.Contains(tp, 6) {
		t.Fatal("offset 6 was never processed")
	}
}

func TestAccountantProcessCommitsLedgerAndPersists(t *testing.T) {
	backend := newMemBackend()
	store := offsetstore.New(backend, nil)
	defer store.Close()

	a, err := New("orders", store, t.TempDir(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer a.Close()

	tp := offsetset.TopicPartition{Topic: "orders", Partition: 0}
	ledger := a.NewLedger()
	ledger.AddOffset(tp, 10, time.Now())
	a.Process(ledger)

	if !a.Contains(tp, 10) {
		t.Fatal("expected offset 10 to be committed after Process")
	}

	if err := a.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	persisted, _ := backend.Read("orders")
	if persisted == nil || !persisted.ContainsOffset(tp, 10) {
		t.Fatal("expected durable backend to contain offset 10 after flush")
	}
}

func TestAccountantCloseRemovesTempDir(t *testing.T) {
	backend := newMemBackend()
	store := offsetstore.New(backend, nil)

	parent := t.TempDir()
	a, err := New("orders", store, parent, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	dir := a.TempDir()

	if err := a.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := os.Stat(dir); err == nil {
		t.Fatal("expected temp directory to be removed after Close")
	}
}
