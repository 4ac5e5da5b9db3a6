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

// Package config holds the engine's Settings-style configuration struct
// (spec.md §6's "Configuration file" + CLI surface), the way
// storage/settings.go holds the teacher's single global SettingsT: one
// struct, sane defaults, an explicit load step. Unlike the teacher's bare
// package-level var, Settings here is read through an atomic pointer so a
// hot reload (fsnotify, watch.go) can swap it out without a data race
// against the orchestrator's per-topic exclusion checks.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/docker/go-units"
	"gopkg.in/yaml.v3"

	"github.com/launix-de/restructure/internal/objectstore"
)

// TopicOverride is one entry of the YAML config's `topics` map: per-topic
// exclusion and deduplication overrides, per spec.md §6.
type TopicOverride struct {
	Exclude           bool     `yaml:"exclude"`
	Deduplicate       bool     `yaml:"deduplicate"`
	DeduplicateFields []string `yaml:"deduplicateFields"`
}

// ServiceConfig is the YAML `service` section: -S/--service + -i/--interval.
type ServiceConfig struct {
	Enabled         bool `yaml:"enabled"`
	IntervalSeconds int  `yaml:"intervalSeconds"`
}

// WorkerConfig is the YAML `worker` section: the per-run tuning knobs that
// also have CLI flags, plus a couple of YAML-only escape hatches.
type WorkerConfig struct {
	NumThreads        int      `yaml:"numThreads"`
	CacheSize         int      `yaml:"cacheSize"`
	MaxFilesPerTopic  int      `yaml:"maxFilesPerTopic"`
	FlushEveryOffsets int64    `yaml:"flushEveryOffsets"`
	Deduplicate       bool     `yaml:"deduplicate"`
	DeduplicateFields []string `yaml:"deduplicateFields"`

	// CacheSizeBytes is a human-readable byte budget ("512MiB", "2GB") —
	// an advisory escape hatch alongside the spec's count-based CacheSize.
	// ParsedCacheSizeBytes parses it, but nothing in the pipeline reads the
	// result; it is not consumed by the File Cache Store's own eviction policy, which stays count-based per spec.md §4.8
	// (see DESIGN.md's C8 entry for why count, not bytes).
	CacheSizeBytes string `yaml:"cacheSizeBytes"`
}

// ParsedCacheSizeBytes parses CacheSizeBytes via docker/go-units' human
// byte-size grammar ("512MiB", "2GB", ...). Returns 0, nil if unset.
func (w WorkerConfig) ParsedCacheSizeBytes() (int64, error) {
	if w.CacheSizeBytes == "" {
		return 0, nil
	}
	return units.RAMInBytes(w.CacheSizeBytes)
}

// PathsConfig is the YAML `paths` section: the positional/flag paths of
// spec.md §6.
type PathsConfig struct {
	InputPaths      []string `yaml:"inputPaths"`
	OutputDirectory string   `yaml:"outputDirectory"`
	TempDir         string   `yaml:"tempDir"`
	LockDirectory   string   `yaml:"lockDirectory"`
}

// DriverConfig names an objectstore driver and carries its raw config
// block, built lazily via Build so unknown/unused sections never need a
// dedicated Go type.
type DriverConfig struct {
	Type    string                 `yaml:"type"`
	Options map[string]interface{} `yaml:",inline"`
}

// RedisConfig is the YAML `redis` section, shared by the lock manager and
// an optional redis-backed offset store.
type RedisConfig struct {
	Addr       string `yaml:"addr"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	KeyPrefix  string `yaml:"keyPrefix"`
	TTLSeconds int    `yaml:"ttlSeconds"`
}

// Settings is the full configuration surface: CLI flags and YAML file
// sections merged into one struct, mirroring storage/settings.go's
// SettingsT but split by concern instead of flattened.
type Settings struct {
	LogLevel string `yaml:"logLevel"`

	Service     ServiceConfig            `yaml:"service"`
	Compression string                   `yaml:"compression"`
	Format      string                   `yaml:"format"`
	Worker      WorkerConfig             `yaml:"worker"`
	Paths       PathsConfig              `yaml:"paths"`
	Topics      map[string]TopicOverride `yaml:"topics"`
	Source      DriverConfig             `yaml:"source"`
	Target      DriverConfig             `yaml:"target"`
	Redis       RedisConfig              `yaml:"redis"`

	// ExcludeTopics comes from repeatable --exclude-topic flags, merged
	// with Topics[x].Exclude rather than replacing it.
	ExcludeTopics []string `yaml:"-"`
}

// Default returns the CLI's documented defaults (spec.md §6): format csv,
// compression none, one thread, a cache size of 100, unbounded
// per-topic file cap.
func Default() *Settings {
	return &Settings{
		LogLevel:    "info",
		Compression: "none",
		Format:      "csv",
		Worker: WorkerConfig{
			NumThreads:       1,
			CacheSize:        100,
			MaxFilesPerTopic: 0,
		},
		Topics: make(map[string]TopicOverride),
	}
}

// Load reads path as YAML, overlaying it onto Default() so an omitted
// section keeps its documented default rather than zeroing out.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	s := Default()
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if s.Topics == nil {
		s.Topics = make(map[string]TopicOverride)
	}
	return s, nil
}

// IsExcluded reports whether topic should be skipped, per spec.md §4.11
// step 1's "filter by the config's topic exclusion set" — the CLI's
// repeatable --exclude-topic flags and the YAML per-topic exclude override
// both contribute to the same set.
func (s *Settings) IsExcluded(topic string) bool {
	for _, t := range s.ExcludeTopics {
		if t == topic {
			return true
		}
	}
	if ov, ok := s.Topics[topic]; ok && ov.Exclude {
		return true
	}
	return false
}

// DedupFieldsFor resolves the effective dedup field list for topic: a
// per-topic override wins if present, otherwise the worker-wide default;
// nil means deduplication is disabled for this topic.
func (s *Settings) DedupFieldsFor(topic string) []string {
	enabled := s.Worker.Deduplicate
	fields := s.Worker.DeduplicateFields

	if ov, ok := s.Topics[topic]; ok {
		if ov.Deduplicate {
			enabled = true
		}
		if len(ov.DeduplicateFields) > 0 {
			fields = ov.DeduplicateFields
		}
	}
	if !enabled {
		return nil
	}
	if fields == nil {
		return []string{} // enabled with no field list: dedup on the full row
	}
	return fields
}

// Build constructs the named objectstore driver from d's options, per
// spec.md §6's `source`/`target` YAML sections (type + type-specific
// block).
func (d DriverConfig) Build() (objectstore.Driver, error) {
	raw, err := json.Marshal(d.Options)
	if err != nil {
		return nil, fmt.Errorf("config: marshaling %q driver options: %w", d.Type, err)
	}
	return objectstore.Open(d.Type, raw)
}
