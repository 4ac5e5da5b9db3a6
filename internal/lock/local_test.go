package lock

import "testing"

func TestLocalLockExclusiveAcrossManagers(t *testing.T) {
	dir := t.TempDir()
	a := NewLocalLockManager(dir)
	b := NewLocalLockManager(dir)

	h1, err := a.AcquireTopicLock("orders")
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	if h1 == nil {
		t.Fatal("expected first acquire to succeed")
	}

	h2, err := b.AcquireTopicLock("orders")
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if h2 != nil {
		t.Fatal("expected second acquire to report the topic already held")
	}

	if err := h1.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}

	h3, err := b.AcquireTopicLock("orders")
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	if h3 == nil {
		t.Fatal("expected acquire to succeed once the first holder released")
	}
	h3.Release()
}

func TestLocalLockSequentialReentranceFromSameProcess(t *testing.T) {
	dir := t.TempDir()
	m := NewLocalLockManager(dir)

	h1, err := m.AcquireTopicLock("a")
	if err != nil || h1 == nil {
		t.Fatalf("first acquire failed: handle=%v err=%v", h1, err)
	}
	if err := h1.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}

	h2, err := m.AcquireTopicLock("a")
	if err != nil || h2 == nil {
		t.Fatalf("second acquire after release failed: handle=%v err=%v", h2, err)
	}
	h2.Release()
}

func TestLocalLockReleaseIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	m := NewLocalLockManager(dir)
	h, err := m.AcquireTopicLock("a")
	if err != nil || h == nil {
		t.Fatalf("acquire failed: handle=%v err=%v", h, err)
	}
	if err := h.Release(); err != nil {
		t.Fatalf("first release: %v", err)
	}
	if err := h.Release(); err != nil {
		t.Fatalf("second release should be a no-op, got: %v", err)
	}
}

func TestLocalLockDifferentTopicsDoNotContend(t *testing.T) {
	dir := t.TempDir()
	m := NewLocalLockManager(dir)
	h1, err := m.AcquireTopicLock("a")
	if err != nil || h1 == nil {
		t.Fatalf("acquire a: handle=%v err=%v", h1, err)
	}
	h2, err := m.AcquireTopicLock("b")
	if err != nil || h2 == nil {
		t.Fatalf("acquire b: handle=%v err=%v", h2, err)
	}
	h1.Release()
	h2.Release()
}
