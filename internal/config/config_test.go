/*
Copyright (C) 2024-2026  Carl-Philip Hänsch

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
)

const sampleYAML = `
format: json
worker:
  numThreads: 4
  cacheSize: 250
  deduplicate: true
  deduplicateFields: ["projectId", "userId"]
topics:
  noisy-topic:
    exclude: true
  special-topic:
    deduplicate: true
    deduplicateFields: ["sessionId"]
source:
  type: local
  basePath: /data/in
target:
  type: local
  basePath: /data/out
`

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	p := filepath.Join(dir, "restructure.yaml")
	if err := os.WriteFile(p, []byte(content), 0640); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := writeConfig(t, t.TempDir(), sampleYAML)

	s, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if s.Format != "json" {
		t.Errorf("expected format json, got %q", s.Format)
	}
	if s.Compression != "none" {
		t.Errorf("expected default compression none, got %q", s.Compression)
	}
	if s.Worker.NumThreads != 4 {
		t.Errorf("expected numThreads 4, got %d", s.Worker.NumThreads)
	}
	if s.Worker.CacheSize != 250 {
		t.Errorf("expected cacheSize 250, got %d", s.Worker.CacheSize)
	}
	if s.Worker.MaxFilesPerTopic != 0 {
		t.Errorf("expected default maxFilesPerTopic 0, got %d", s.Worker.MaxFilesPerTopic)
	}
}

func TestIsExcluded(t *testing.T) {
	path := writeConfig(t, t.TempDir(), sampleYAML)
	s, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	s.ExcludeTopics = []string{"cli-excluded"}

	cases := map[string]bool{
		"noisy-topic":   true,
		"cli-excluded":  true,
		"special-topic": false,
		"orders":        false,
	}
	for topic, want := range cases {
		if got := s.IsExcluded(topic); got != want {
			t.Errorf("IsExcluded(%q) = %v, want %v", topic, got, want)
		}
	}
}

func TestDedupFieldsFor(t *testing.T) {
	path := writeConfig(t, t.TempDir(), sampleYAML)
	s, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	got := s.DedupFieldsFor("orders")
	want := []string{"projectId", "userId"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("DedupFieldsFor(orders) = %v, want %v (worker-wide default)", got, want)
	}

	got = s.DedupFieldsFor("special-topic")
	if len(got) != 1 || got[0] != "sessionId" {
		t.Errorf("DedupFieldsFor(special-topic) = %v, want per-topic override [sessionId]", got)
	}
}

func TestParsedCacheSizeBytes(t *testing.T) {
	w := WorkerConfig{CacheSizeBytes: "512MiB"}
	got, err := w.ParsedCacheSizeBytes()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got != 512*1024*1024 {
		t.Errorf("expected 512MiB in bytes, got %d", got)
	}

	empty := WorkerConfig{}
	got, err = empty.ParsedCacheSizeBytes()
	if err != nil || got != 0 {
		t.Errorf("expected (0, nil) for unset CacheSizeBytes, got (%d, %v)", got, err)
	}
}

func TestDriverConfigBuildsLocalDriver(t *testing.T) {
	path := writeConfig(t, t.TempDir(), sampleYAML)
	s, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	driver, err := s.Source.Build()
	if err != nil {
		t.Fatalf("build source driver: %v", err)
	}
	if driver == nil {
		t.Fatal("expected a non-nil driver")
	}
}

func TestWatchReloadsOnFileChange(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, sampleYAML)

	w, err := Watch(path, zap.NewNop())
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer w.Close()

	if w.Current().Format != "json" {
		t.Fatalf("expected initial format json, got %q", w.Current().Format)
	}

	updated := sampleYAML + "\ncompression: gzip\n"
	if err := os.WriteFile(path, []byte(updated), 0640); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if w.Current().Compression == "gzip" {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("expected reload to pick up compression: gzip, got %q", w.Current().Compression)
}
