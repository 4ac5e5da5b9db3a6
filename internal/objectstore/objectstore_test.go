package objectstore

import (
	"encoding/json"
	"testing"
)

func TestRegisterAndOpen(t *testing.T) {
	defer func() { delete(Registry, "test-driver") }()

	Register("test-driver", func(raw json.RawMessage) (Driver, error) {
		return nil, nil
	})

	if _, err := Open("test-driver", nil); err != nil {
		t.Fatalf("unexpected error opening registered driver: %v", err)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open("does-not-exist", nil); err == nil {
		t.Fatal("expected an error opening an unregistered driver")
	}
}

func TestRegisterDuplicatePanics(t *testing.T) {
	defer func() { delete(Registry, "dup") }()
	Register("dup", func(raw json.RawMessage) (Driver, error) { return nil, nil })

	defer func() {
		if recover() == nil {
			t.Fatal("expected Register to panic on duplicate name")
		}
	}()
	Register("dup", func(raw json.RawMessage) (Driver, error) { return nil, nil })
}
