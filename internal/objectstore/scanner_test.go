package objectstore_test

import (
	"os"
	"testing"

	"github.com/launix-de/restructure/internal/objectstore"
	localpkg "github.com/launix-de/restructure/internal/objectstore/local"
)

func TestFindTopicPathsFindsGrandparentOfRecordFile(t *testing.T) {
	dir := t.TempDir()
	mustMkdir(t, dir+"/2024-01-01/orders/part-0")
	mustWrite(t, dir+"/2024-01-01/orders/part-0/a+0+0+1.avro", "x")
	mustMkdir(t, dir+"/2024-01-01/shipments/part-0")
	mustWrite(t, dir+"/2024-01-01/shipments/part-0/b+0+0+1.avro", "x")

	d := localpkg.New(dir)
	topics := objectstore.FindTopicPaths(d, "")

	if len(topics) != 2 {
		t.Fatalf("expected 2 topic directories, got %v", topics)
	}
	want := map[string]bool{"2024-01-01/orders": true, "2024-01-01/shipments": true}
	for _, topic := range topics {
		if !want[topic] {
			t.Errorf("unexpected topic path: %q", topic)
		}
	}
}

func TestFindTopicPathsPrunesTmpDirectories(t *testing.T) {
	dir := t.TempDir()
	mustMkdir(t, dir+"/2024-01-01/+tmp/part-0")
	mustWrite(t, dir+"/2024-01-01/+tmp/part-0/a+0+0+1.avro", "x")

	d := localpkg.New(dir)
	topics := objectstore.FindTopicPaths(d, "")
	if len(topics) != 0 {
		t.Fatalf("expected +tmp directories to be pruned, got %v", topics)
	}
}

func TestFindTopicPathsDeduplicates(t *testing.T) {
	dir := t.TempDir()
	mustMkdir(t, dir+"/2024-01-01/orders/part-0")
	mustWrite(t, dir+"/2024-01-01/orders/part-0/a+0+0+1.avro", "x")
	mustWrite(t, dir+"/2024-01-01/orders/part-0/a+0+2+3.avro", "x")

	d := localpkg.New(dir)
	topics := objectstore.FindTopicPaths(d, "")
	if len(topics) != 1 {
		t.Fatalf("expected exactly 1 deduplicated topic, got %v", topics)
	}
}

func TestListRecordFilesSkipsKnownAndCapsAfterFilter(t *testing.T) {
	dir := t.TempDir()
	mustMkdir(t, dir+"/orders")
	mustWrite(t, dir+"/orders/a+0+0+1.avro", "x")
	mustWrite(t, dir+"/orders/a+0+2+3.avro", "x")
	mustWrite(t, dir+"/orders/a+0+4+5.avro", "x")

	d := localpkg.New(dir)
	known := func(p string) bool { return p == "orders/a+0+0+1.avro" }

	var got []objectstore.Entry
	for e := range objectstore.ListRecordFiles(d, "orders", known, 1) {
		got = append(got, e)
	}
	if len(got) != 1 {
		t.Fatalf("expected the cap to apply after filtering out the known file, got %v", got)
	}
	if got[0].Path == "orders/a+0+0+1.avro" {
		t.Fatal("known file should have been filtered before the cap was applied")
	}
}

func mustMkdir(t *testing.T, p string) {
	t.Helper()
	if err := os.MkdirAll(p, 0750); err != nil {
		t.Fatal(err)
	}
}

func mustWrite(t *testing.T, p, content string) {
	t.Helper()
	if err := os.WriteFile(p, []byte(content), 0640); err != nil {
		t.Fatal(err)
	}
}
