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
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/launix-de/restructure/internal/config"
	"github.com/launix-de/restructure/internal/orchestrator"
	"github.com/launix-de/restructure/internal/pathfactory"
	"github.com/launix-de/restructure/internal/telemetry"
)

// runRun is the default (no subcommand) entrypoint: build every component
// from flags/config and either run once or loop forever in service mode,
// per spec.md §4.11.
func runRun(ctx context.Context, inputPaths []string, f *flags) error {
	s, err := resolveSettings(f, inputPaths)
	if err != nil {
		return err
	}

	log, err := telemetry.NewLogger(s.LogLevel)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	compression, err := parseCompression(s.Compression)
	if err != nil {
		return err
	}

	sourceDriver, targetDriver, err := buildDrivers(s)
	if err != nil {
		return err
	}
	if f.dryRun {
		targetDriver = dryRunDriver{targetDriver}
		log.Info("restructure: dry-run mode, publish step is a no-op")
	}

	lockMgr, closeLock, err := buildLockManager(s, log)
	if err != nil {
		return err
	}
	defer closeLock() //nolint:errcheck

	offsetStore, err := buildOffsetStore(s, log)
	if err != nil {
		return err
	}
	defer offsetStore.Close() //nolint:errcheck

	collector := telemetry.New()

	excludeTopic := s.IsExcluded
	dedupFieldsFor := s.DedupFieldsFor
	if f.configFile != "" && s.Service.Enabled {
		watcher, err := config.Watch(f.configFile, log)
		if err != nil {
			return err
		}
		defer watcher.Close() //nolint:errcheck
		excludeTopic = func(topic string) bool { return watcher.Current().IsExcluded(topic) }
		dedupFieldsFor = func(topic string) []string { return watcher.Current().DedupFieldsFor(topic) }
	}

	var status *orchestrator.Broadcaster
	if f.statusAddr != "" {
		status = orchestrator.NewBroadcaster(log)
		mux := http.NewServeMux()
		mux.Handle("/status", status)
		srv := &http.Server{Addr: f.statusAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Warn("restructure: status server stopped", zap.Error(err))
			}
		}()
		defer srv.Close()
		defer status.Close()
	}

	orch := orchestrator.New(orchestrator.Config{
		SourceDriver:      sourceDriver,
		SourceRoots:       s.Paths.InputPaths,
		OutputDriver:      targetDriver,
		OutputRoot:        "",
		LockManager:       lockMgr,
		OffsetStore:       offsetStore,
		PathFactory:       pathfactory.New(pathfactory.Hourly),
		NumThreads:        s.Worker.NumThreads,
		CacheSize:         s.Worker.CacheSize,
		MaxFilesPerTopic:  s.Worker.MaxFilesPerTopic,
		Format:            s.Format,
		Compression:       compression,
		DedupFields:       s.DedupFieldsFor(""),
		DedupFieldsFor:    dedupFieldsFor,
		FlushEveryOffsets: s.Worker.FlushEveryOffsets,
		ExcludeTopic:      excludeTopic,
		TempDir:           s.Paths.TempDir,
		Status:            status,
		Logger:            log,
		Telemetry:         collector,
	})

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if s.Service.Enabled {
		interval := time.Duration(s.Service.IntervalSeconds) * time.Second
		if interval <= 0 {
			interval = 60 * time.Second
		}
		return orch.RunLoop(runCtx, interval)
	}

	_, err = orch.Run(runCtx)
	return err
}
