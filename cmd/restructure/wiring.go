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

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/launix-de/restructure/internal/config"
	"github.com/launix-de/restructure/internal/filecache"
	"github.com/launix-de/restructure/internal/lock"
	"github.com/launix-de/restructure/internal/objectstore"
	"github.com/launix-de/restructure/internal/offsetstore"
)

// resolveSettings builds the effective Settings from flags and, if
// --config-file is set, a YAML file — per spec.md §6, -F overrides the
// individual value flags; the path flags (-o, --tmp-dir, --lock-directory)
// only fill in a path the YAML leaves unset, and the repeatable
// --exclude-topic flags and positional input paths are merged in regardless
// (config.Settings already documents ExcludeTopics as additive, not replaced).
func resolveSettings(f *flags, inputPaths []string) (*config.Settings, error) {
	var s *config.Settings
	if f.configFile != "" {
		loaded, err := config.Load(f.configFile)
		if err != nil {
			return nil, err
		}
		s = loaded
	} else {
		s = config.Default()
		s.Format = f.format
		s.Compression = f.compression
		s.Worker.NumThreads = f.numThreads
		s.Worker.CacheSize = f.cacheSize
		s.Worker.MaxFilesPerTopic = f.maxFilesPerTopic
		s.Worker.Deduplicate = f.deduplicate
		s.Worker.DeduplicateFields = f.dedupFields
		s.Service.Enabled = f.service
		s.Service.IntervalSeconds = f.intervalSeconds
		s.LogLevel = f.logLevel

		s.Source = config.DriverConfig{Type: "local", Options: map[string]interface{}{"basePath": ""}}
		if f.nameservice != "" {
			s.Source = config.DriverConfig{Type: "hdfs", Options: map[string]interface{}{"nameservice": f.nameservice}}
		}
		s.Target = config.DriverConfig{Type: "local", Options: map[string]interface{}{"basePath": f.outputDirectory}}
	}

	s.Paths.InputPaths = append(s.Paths.InputPaths, inputPaths...)
	if f.outputDirectory != "" && s.Paths.OutputDirectory == "" {
		s.Paths.OutputDirectory = f.outputDirectory
	}
	if f.tmpDir != "" && s.Paths.TempDir == "" {
		s.Paths.TempDir = f.tmpDir
	}
	if s.Paths.TempDir == "" {
		s.Paths.TempDir = os.TempDir()
	}
	if f.lockDirectory != "" && s.Paths.LockDirectory == "" {
		s.Paths.LockDirectory = f.lockDirectory
	}
	if s.Paths.LockDirectory == "" {
		s.Paths.LockDirectory = filepath.Join(s.Paths.TempDir, "locks")
	}
	s.ExcludeTopics = append(s.ExcludeTopics, f.excludeTopics...)

	if s.Paths.OutputDirectory == "" && s.Target.Type == "" {
		return nil, fmt.Errorf("restructure: -o/--output-directory or a config-file target section is required")
	}
	return s, nil
}

// redisClient builds a go-redis client from Settings.Redis, or nil if no
// redis section is configured.
func redisClient(s *config.Settings) *redis.Client {
	if s.Redis.Addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     s.Redis.Addr,
		Password: s.Redis.Password,
		DB:       s.Redis.DB,
	})
}

// buildLockManager picks a Redis-backed or local-file lock manager
// depending on whether Settings.Redis is configured, per spec.md §4.3's
// "for single-node/dev runs" vs. distributed-lock split.
func buildLockManager(s *config.Settings, log *zap.Logger) (lock.Manager, func() error, error) {
	rc := redisClient(s)
	if rc == nil {
		mgr := lock.NewLocalLockManager(s.Paths.LockDirectory)
		return mgr, mgr.Close, nil
	}
	ttl := time.Duration(s.Redis.TTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	mgr := lock.NewRedisLockManager(rc, s.Redis.KeyPrefix, ttl, log)
	return mgr, mgr.Close, nil
}

// buildOffsetStore picks a Redis-backed or per-topic-CSV-file offset
// backend, per spec.md §6's `redis` config section ("lock & optional
// offset backend").
func buildOffsetStore(s *config.Settings, log *zap.Logger) (*offsetstore.Store, error) {
	rc := redisClient(s)
	if rc != nil {
		ttl := time.Duration(s.Redis.TTLSeconds) * time.Second
		backend := offsetstore.NewRedisStore(rc, s.Redis.KeyPrefix, ttl)
		return offsetstore.New(backend, log), nil
	}

	dir := filepath.Join(s.Paths.OutputDirectory, "offsets")
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("restructure: creating offsets directory: %w", err)
	}
	backend := offsetstore.NewFileStore(dir)
	return offsetstore.New(backend, log), nil
}

func parseCompression(name string) (filecache.Compression, error) {
	switch name {
	case "", "none":
		return filecache.NoCompression, nil
	case "gzip":
		return filecache.GzipCompression, nil
	case "zip":
		return filecache.ZipCompression, nil
	default:
		return filecache.NoCompression, fmt.Errorf("restructure: unknown compression %q (want none, gzip, or zip)", name)
	}
}

func buildDrivers(s *config.Settings) (source, target objectstore.Driver, err error) {
	source, err = s.Source.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("restructure: building source driver: %w", err)
	}
	target, err = s.Target.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("restructure: building target driver: %w", err)
	}
	return source, target, nil
}
