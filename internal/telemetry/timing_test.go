package telemetry

import (
	"testing"
	"time"
)

func TestCollectorAccumulatesPerCategory(t *testing.T) {
	c := New()
	c.Record("orders", 1, 10*time.Millisecond)
	c.Record("orders", 2, 20*time.Millisecond)
	c.Record("clicks", 1, 5*time.Millisecond)

	report := c.Report()
	if len(report) != 2 {
		t.Fatalf("expected 2 categories, got %d", len(report))
	}

	byCategory := make(map[string]CategoryStat)
	for _, s := range report {
		byCategory[s.Category] = s
	}

	orders := byCategory["orders"]
	if orders.Total != 30*time.Millisecond {
		t.Errorf("orders total = %v, want 30ms", orders.Total)
	}
	if orders.Threads != 2 {
		t.Errorf("orders threads = %d, want 2", orders.Threads)
	}

	clicks := byCategory["clicks"]
	if clicks.Total != 5*time.Millisecond || clicks.Threads != 1 {
		t.Errorf("clicks = %+v, want total=5ms threads=1", clicks)
	}
}

func TestNoopCollectorDiscardsEverything(t *testing.T) {
	Noop.Record("orders", 1, time.Second)
	if got := Noop.Report(); got != nil {
		t.Errorf("expected nil report from Noop, got %v", got)
	}
}

func TestTrackRecordsElapsedTime(t *testing.T) {
	c := New()
	Track(c, "orders", 1, func() { time.Sleep(5 * time.Millisecond) })

	report := c.Report()
	if len(report) != 1 || report[0].Category != "orders" {
		t.Fatalf("expected one orders entry, got %v", report)
	}
	if report[0].Total <= 0 {
		t.Errorf("expected positive duration, got %v", report[0].Total)
	}
}
