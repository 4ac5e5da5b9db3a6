package convert

import (
	"bytes"
	"strings"
	"testing"
)

func TestCSVWriterPinsHeaderOnFirstRecord(t *testing.T) {
	var buf bytes.Buffer
	w := NewCSVWriter(&buf, nil)

	ok, err := w.WriteRecord(map[string]any{"a": "1", "b": "2"})
	if err != nil || !ok {
		t.Fatalf("unexpected first write result: ok=%v err=%v", ok, err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header + one row, got %v", lines)
	}
	if lines[0] != "a,b" {
		t.Fatalf("unexpected header: %q", lines[0])
	}
}

func TestCSVWriterRejectsMismatchedShape(t *testing.T) {
	var buf bytes.Buffer
	w := NewCSVWriter(&buf, nil)

	if ok, err := w.WriteRecord(map[string]any{"a": "1", "b": "2"}); err != nil || !ok {
		t.Fatalf("unexpected pin write: ok=%v err=%v", ok, err)
	}
	ok, err := w.WriteRecord(map[string]any{"a": "1", "c": "3"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected mismatched column set to be rejected")
	}
}

func TestCSVWriterAppendUsesExistingHeaderPin(t *testing.T) {
	var buf bytes.Buffer
	w := NewCSVWriter(&buf, []string{"a", "b"})

	ok, err := w.WriteRecord(map[string]any{"a": "1", "b": "2"})
	if err != nil || !ok {
		t.Fatalf("unexpected write against pre-pinned header: ok=%v err=%v", ok, err)
	}
	w.Close()

	if strings.Contains(buf.String(), "a,b\n") {
		t.Fatal("append must not re-emit the header row")
	}
}

func TestReadCSVHeaderParsesFirstLine(t *testing.T) {
	cols, err := ReadCSVHeader(strings.NewReader("a,b,c\n1,2,3\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cols) != 3 || cols[0] != "a" || cols[2] != "c" {
		t.Fatalf("unexpected header: %v", cols)
	}
}
