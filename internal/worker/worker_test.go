package worker

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/linkedin/goavro/v2"

	"github.com/launix-de/restructure/internal/accountant"
	"github.com/launix-de/restructure/internal/filecache"
	"github.com/launix-de/restructure/internal/filecachestore"
	"github.com/launix-de/restructure/internal/objectstore"
	localdriver "github.com/launix-de/restructure/internal/objectstore/local"
	"github.com/launix-de/restructure/internal/offsetstore"
	"github.com/launix-de/restructure/internal/pathfactory"
)

const recordSchema = `{
  "type": "record",
  "name": "Envelope",
  "fields": [
    {"name": "key", "type": {"type": "record", "name": "Key", "fields": [
      {"name": "projectId", "type": "string"},
      {"name": "userId", "type": "string"}
    ]}},
    {"name": "value", "type": {"type": "record", "name": "Value", "fields": [
      {"name": "time", "type": "double"},
      {"name": "amount", "type": "long"}
    ]}}
  ]
}`

func writeContainerFile(t *testing.T, dir, name string, n int) string {
	t.Helper()
	p := filepath.Join(dir, name)
	f, err := os.Create(p)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()

	w, err := goavro.NewOCFWriter(goavro.OCFConfig{W: f, Schema: recordSchema})
	if err != nil {
		t.Fatalf("new ocf writer: %v", err)
	}
	for i := 0; i < n; i++ {
		rec := map[string]any{
			"key":   map[string]any{"projectId": "proj", "userId": "user"},
			"value": map[string]any{"time": 1493711175.0, "amount": int64(i)},
		}
		if err := w.Append([]any{rec}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	return p
}

func newTestWorker(t *testing.T, srcDir, outDir string) (*Worker, *accountant.Accountant) {
	t.Helper()
	srcDriver := localdriver.New(srcDir)
	outDriver := localdriver.New(outDir)
	backend := offsetstore.NewFileStore(t.TempDir())
	store := offsetstore.New(backend, nil)
	acc, err := accountant.New("orders", store, t.TempDir(), nil)
	if err != nil {
		t.Fatalf("accountant: %v", err)
	}

	cacheStore := filecachestore.New(10, func(target string) (*filecache.Cache, error) {
		return filecache.Open(filecache.Options{
			TempDir: acc.TempDir(),
			Target:  target,
			Format:  "csv",
			Driver:  outDriver,
		})
	})

	w := New(Config{
		Topic:        "orders",
		Accountant:   acc,
		CacheStore:   cacheStore,
		PathFactory:  pathfactory.New(pathfactory.Hourly),
		SourceDriver: srcDriver,
		OutputDriver: outDriver,
		OutputRoot:   "",
		Format:       "csv",
	})
	return w, acc
}

func TestWorkerProcessesFileAndPublishes(t *testing.T) {
	srcDir := t.TempDir()
	outDir := t.TempDir()
	writeContainerFile(t, srcDir, "orders+0+0+2.avro", 3)

	w, acc := newTestWorker(t, srcDir, outDir)

	info, err := os.Stat(filepath.Join(srcDir, "orders+0+0+2.avro"))
	if err != nil {
		t.Fatalf("stat: %v", err)
	}

	stats := w.Run([]objectstore.Entry{{Path: "orders+0+0+2.avro", Size: info.Size()}}, nil)
	if stats.FilesProcessed != 1 {
		t.Fatalf("expected 1 file processed, got %+v", stats)
	}
	if stats.RecordsProcessed != 3 {
		t.Fatalf("expected 3 records processed, got %+v", stats)
	}

	if err := w.cfg.CacheStore.Close(); err != nil {
		t.Fatalf("close cache store: %v", err)
	}
	if err := acc.Close(); err != nil {
		t.Fatalf("close accountant: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(outDir, "proj/user/orders/20170502_0700.csv"))
	if err != nil {
		t.Fatalf("read published output: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected non-empty published output")
	}
}
