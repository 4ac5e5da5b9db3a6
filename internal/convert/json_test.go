package convert

import (
	"bytes"
	"strings"
	"testing"
)

func TestJSONWriterAlwaysSucceeds(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONWriter(&buf)

	ok, err := w.WriteRecord(map[string]any{"a": map[string]any{"b": 1}})
	if err != nil || !ok {
		t.Fatalf("expected success: ok=%v err=%v", ok, err)
	}
	ok, err = w.WriteRecord(map[string]any{"totally": "different", "shape": true})
	if err != nil || !ok {
		t.Fatalf("JSON writer must never reject a shape: ok=%v err=%v", ok, err)
	}
	w.Close()

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 JSON lines, got %v", lines)
	}
}
