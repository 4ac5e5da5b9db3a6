package convert

import "testing"

func TestFlattenNestedFieldsDotJoin(t *testing.T) {
	record := map[string]any{
		"a": map[string]any{
			"b": map[string]any{
				"c": "leaf",
			},
		},
	}
	flat := Flatten(record)
	if flat["a.b.c"] != "leaf" {
		t.Fatalf("expected a.b.c = leaf, got %+v", flat)
	}
}

func TestFlattenArrayByIndex(t *testing.T) {
	record := map[string]any{"a": []any{"x", "y"}}
	flat := Flatten(record)
	if flat["a.0"] != "x" || flat["a.1"] != "y" {
		t.Fatalf("unexpected flattened array: %+v", flat)
	}
}

func TestFlattenMapByKey(t *testing.T) {
	record := map[string]any{"tags": map[string]any{"env": "prod"}}
	flat := Flatten(record)
	if flat["tags.env"] != "prod" {
		t.Fatalf("unexpected flattened map: %+v", flat)
	}
}

func TestFlattenBytesAsRawString(t *testing.T) {
	record := map[string]any{"payload": []byte("raw")}
	flat := Flatten(record)
	if flat["payload"] != "raw" {
		t.Fatalf("unexpected bytes flattening: %+v", flat)
	}
}

func TestFlattenScalarsPassThrough(t *testing.T) {
	record := map[string]any{"n": int64(42), "f": 3.5, "ok": true}
	flat := Flatten(record)
	if flat["n"] != "42" || flat["f"] != "3.5" || flat["ok"] != "true" {
		t.Fatalf("unexpected scalar flattening: %+v", flat)
	}
}
