package local

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/launix-de/restructure/internal/objectstore"
)

func TestListWalksTree(t *testing.T) {
	dir := t.TempDir()
	must(t, os.MkdirAll(filepath.Join(dir, "topic-a"), 0750))
	must(t, os.WriteFile(filepath.Join(dir, "topic-a", "a+0+0+1.avro"), []byte("x"), 0640))

	d := New(dir)
	var paths []string
	for e := range d.List("") {
		paths = append(paths, e.Path)
	}
	if len(paths) != 2 {
		t.Fatalf("expected 2 entries (dir + file), got %v", paths)
	}
}

func TestStatMissingReturnsErrNotExist(t *testing.T) {
	d := New(t.TempDir())
	if _, err := d.Stat("nonexistent"); err != objectstore.ErrNotExist {
		t.Fatalf("expected ErrNotExist, got %v", err)
	}
}

func TestStoreRenamesIntoPlace(t *testing.T) {
	dir := t.TempDir()
	d := New(dir)

	tmp := filepath.Join(t.TempDir(), "staged")
	must(t, os.WriteFile(tmp, []byte("hello"), 0640))

	if err := d.Store(tmp, "a/b/out.csv"); err != nil {
		t.Fatalf("store: %v", err)
	}

	r, err := d.NewReader("a/b/out.csv")
	if err != nil {
		t.Fatalf("read published file: %v", err)
	}
	defer r.Close()
	data, _ := io.ReadAll(r)
	if string(data) != "hello" {
		t.Fatalf("unexpected content: %q", data)
	}
}

func TestStoreBacksUpExistingTarget(t *testing.T) {
	dir := t.TempDir()
	d := New(dir)

	first := filepath.Join(t.TempDir(), "first")
	must(t, os.WriteFile(first, []byte("one"), 0640))
	must(t, d.Store(first, "out.csv"))

	second := filepath.Join(t.TempDir(), "second")
	must(t, os.WriteFile(second, []byte("two"), 0640))
	must(t, d.Store(second, "out.csv"))

	if _, err := os.Stat(filepath.Join(dir, "out.csv.old")); err != nil {
		t.Fatalf("expected a rescued backup of the previous target: %v", err)
	}
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}
