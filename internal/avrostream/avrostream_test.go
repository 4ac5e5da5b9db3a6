package avrostream

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/linkedin/goavro/v2"
)

const testSchema = `{
  "type": "record",
  "name": "Envelope",
  "fields": [
    {"name": "key", "type": {"type": "record", "name": "Key", "fields": [
      {"name": "id", "type": "string"}
    ]}},
    {"name": "value", "type": {"type": "record", "name": "Value", "fields": [
      {"name": "time", "type": ["null", "double"], "default": null},
      {"name": "amount", "type": "long"}
    ]}}
  ]
}`

func writeOCF(t *testing.T, path string, records []map[string]any) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()

	w, err := goavro.NewOCFWriter(goavro.OCFConfig{W: f, Schema: testSchema})
	if err != nil {
		t.Fatalf("new ocf writer: %v", err)
	}
	for _, r := range records {
		if err := w.Append([]any{r}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
}

func TestReaderDecodesKeyValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a+0+0+0.avro")
	writeOCF(t, path, []map[string]any{
		{
			"key":   map[string]any{"id": "order-1"},
			"value": map[string]any{"time": goavro.Union("double", 1493711175.0), "amount": int64(42)},
		},
	})

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open file: %v", err)
	}
	r, err := Open(f)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer r.Close()

	rec, ok, err := r.Next()
	if err != nil || !ok {
		t.Fatalf("next: ok=%v err=%v", ok, err)
	}
	if rec.Key["id"] != "order-1" {
		t.Fatalf("expected key.id=order-1, got %#v", rec.Key)
	}
	if rec.Value["time"] != 1493711175.0 {
		t.Fatalf("expected unwrapped union time field, got %#v", rec.Value["time"])
	}

	_, ok, err = r.Next()
	if err != nil || ok {
		t.Fatalf("expected exhausted container, got ok=%v err=%v", ok, err)
	}
}

