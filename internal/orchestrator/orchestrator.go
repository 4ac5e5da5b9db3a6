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

// Package orchestrator implements the C11 contract of spec.md §4.11: scan
// topics, shuffle and filter them, then run one Worker per topic under a
// bounded-parallelism pool, skipping any topic already locked elsewhere.
package orchestrator

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"sync/atomic"
	"time"

	"github.com/jtolds/gls"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/launix-de/restructure/internal/accountant"
	"github.com/launix-de/restructure/internal/filecache"
	"github.com/launix-de/restructure/internal/filecachestore"
	"github.com/launix-de/restructure/internal/lock"
	"github.com/launix-de/restructure/internal/objectstore"
	"github.com/launix-de/restructure/internal/offsetset"
	"github.com/launix-de/restructure/internal/offsetstore"
	"github.com/launix-de/restructure/internal/pathfactory"
	"github.com/launix-de/restructure/internal/telemetry"
	"github.com/launix-de/restructure/internal/worker"
)

// Config wires one Orchestrator's dependencies. All fields are required
// unless noted.
type Config struct {
	SourceDriver objectstore.Driver
	SourceRoots  []string // one or more scanned input paths, per spec.md §6
	OutputDriver objectstore.Driver
	OutputRoot   string

	LockManager lock.Manager
	OffsetStore *offsetstore.Store
	PathFactory *pathfactory.Factory

	NumThreads       int // work-stealing pool size; 0 => 1
	CacheSize        int // per-topic File Cache Store capacity (-s/--cache-size)
	MaxFilesPerTopic int // 0 = unbounded

	Format            string
	Compression       filecache.Compression
	DedupFields       []string // fallback used when DedupFieldsFor is nil
	FlushEveryOffsets int64

	// DedupFieldsFor resolves the effective dedup fields for topic
	// (config.Settings.DedupFieldsFor), letting per-topic YAML overrides
	// win over the run-wide DedupFields default. Nil means every topic
	// uses DedupFields unconditionally.
	DedupFieldsFor func(topic string) []string

	// ExcludeTopic reports whether topic should be skipped. Called fresh
	// for every topic on every scan, so a config-reload hook (C3's fsnotify
	// watcher) can swap the underlying set without restarting a run.
	ExcludeTopic func(topic string) bool

	TempDir string

	Status *Broadcaster // optional; nil disables live status
	Logger *zap.Logger

	// Telemetry is the per-category timing collector of spec.md §4.11
	// step 3. Nil disables timing (telemetry.Noop): every Worker gets the
	// same Collector, each topic's dispatch tagged with a distinct thread
	// id so the final report's per-category thread count reflects how
	// many topic dispatches touched that category.
	Telemetry telemetry.Collector
}

// Totals aggregates per-topic Stats across a full Run, safe for concurrent
// update from every topic's goroutine.
type Totals struct {
	TopicsProcessed  atomic.Int64
	TopicsSkipped    atomic.Int64 // lock contention, per spec.md §7
	FilesProcessed   atomic.Int64
	FilesSkipped     atomic.Int64
	RecordsProcessed atomic.Int64
	RecordsSkipped   atomic.Int64
}

// Snapshot is a point-in-time copy of Totals, safe to marshal.
type Snapshot struct {
	TopicsProcessed  int64
	TopicsSkipped    int64
	FilesProcessed   int64
	FilesSkipped     int64
	RecordsProcessed int64
	RecordsSkipped   int64
}

func (t *Totals) snapshot() Snapshot {
	return Snapshot{
		TopicsProcessed:  t.TopicsProcessed.Load(),
		TopicsSkipped:    t.TopicsSkipped.Load(),
		FilesProcessed:   t.FilesProcessed.Load(),
		FilesSkipped:     t.FilesSkipped.Load(),
		RecordsProcessed: t.RecordsProcessed.Load(),
		RecordsSkipped:   t.RecordsSkipped.Load(),
	}
}

// Orchestrator runs one or more scan-and-dispatch passes over Config's
// source roots.
type Orchestrator struct {
	cfg       Config
	log       *zap.Logger
	closed    atomic.Bool
	threadSeq atomic.Int64
}

// New builds an Orchestrator from cfg.
func New(cfg Config) *Orchestrator {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Telemetry == nil {
		cfg.Telemetry = telemetry.Noop
	}
	return &Orchestrator{cfg: cfg, log: log}
}

// Close sets the cooperative cancellation flag of spec.md §5: already
// in-flight topics finish their current file, new topics are not started,
// and any running Run or RunLoop call returns once the in-flight workers
// drain.
func (o *Orchestrator) Close() { o.closed.Store(true) }

// IsClosed reports whether Close has been called. Passed to each Worker as
// its between-files cancellation check.
func (o *Orchestrator) IsClosed() bool { return o.closed.Load() }

// Run performs one full discover-and-dispatch pass: scan topics across all
// configured source roots, shuffle (already done by FindTopicPaths),
// exclude per config, then process up to NumThreads topics concurrently.
// It returns once every dispatched topic has completed or been skipped.
func (o *Orchestrator) Run(ctx context.Context) (Snapshot, error) {
	start := time.Now()
	topics := o.discoverTopics()

	var totals Totals
	numThreads := o.cfg.NumThreads
	if numThreads < 1 {
		numThreads = 1
	}

	sem := semaphore.NewWeighted(int64(numThreads))
	g, gctx := errgroup.WithContext(ctx)

	dispatched := 0
	for _, topic := range topics {
		if o.IsClosed() {
			break
		}
		if o.cfg.ExcludeTopic != nil && o.cfg.ExcludeTopic(topic) {
			continue
		}
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		dispatched++
		topic := topic
		g.Go(func() error {
			defer sem.Release(1)
			return o.runTopicSafe(topic, &totals)
		})
	}

	err := g.Wait()
	o.log.Info("orchestrator: run complete",
		zap.Int("topicsScanned", len(topics)),
		zap.Int("topicsDispatched", dispatched),
		zap.Duration("elapsed", time.Since(start)),
		zap.Int64("filesProcessed", totals.FilesProcessed.Load()),
		zap.Int64("recordsProcessed", totals.RecordsProcessed.Load()))

	if o.cfg.Telemetry != nil {
		telemetry.Report(o.log, o.cfg.Telemetry.Report())
	}

	return totals.snapshot(), err
}

// RunLoop implements spec.md §4.11's service mode: re-run Run at a fixed
// cadence until ctx is cancelled, then Close and let the in-flight run
// drain before returning.
func (o *Orchestrator) RunLoop(ctx context.Context, interval time.Duration) error {
	for {
		if _, err := o.Run(ctx); err != nil {
			o.log.Warn("orchestrator: run failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			o.Close()
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

// discoverTopics scans every configured source root and de-duplicates
// topics found under more than one root.
func (o *Orchestrator) discoverTopics() []string {
	seen := make(map[string]bool)
	var topics []string
	for _, root := range o.cfg.SourceRoots {
		for _, topic := range objectstore.FindTopicPaths(o.cfg.SourceDriver, root) {
			if !seen[topic] {
				seen[topic] = true
				topics = append(topics, topic)
			}
		}
	}
	return topics
}

// runTopicSafe launches the per-topic pipeline on a gls.Go goroutine (the
// teacher's panic-safe launcher, storage/scan.go), recovering any panic
// into an error forwarded over a channel exactly as scan.go's scanError
// does, instead of letting it cross the goroutine boundary silently.
func (o *Orchestrator) runTopicSafe(topic string, totals *Totals) error {
	done := make(chan error, 1)
	gls.Go(func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic processing topic %q: %v\n%s", topic, r, debug.Stack())
			}
		}()
		done <- o.runTopic(topic, totals)
	})
	return <-done
}

// runTopic implements spec.md §4.11 step 2 for a single topic.
func (o *Orchestrator) runTopic(topic string, totals *Totals) error {
	handle, err := o.cfg.LockManager.AcquireTopicLock(topic)
	if err != nil {
		o.log.Warn("orchestrator: lock acquisition error", zap.String("topic", topic), zap.Error(err))
		return nil
	}
	if handle == nil {
		totals.TopicsSkipped.Add(1)
		return nil
	}
	defer func() {
		if err := handle.Release(); err != nil {
			o.log.Warn("orchestrator: lock release failed", zap.String("topic", topic), zap.Error(err))
		}
	}()

	acc, err := accountant.New(topic, o.cfg.OffsetStore, o.cfg.TempDir, o.log)
	if err != nil {
		o.log.Error("orchestrator: failed to build accountant", zap.String("topic", topic), zap.Error(err))
		return err
	}
	defer func() {
		if err := acc.Close(); err != nil {
			o.log.Warn("orchestrator: accountant close failed", zap.String("topic", topic), zap.Error(err))
		}
	}()

	entries := o.listFilesLargestFirst(topic, acc)
	if len(entries) == 0 {
		return nil
	}

	dedupFields := o.cfg.DedupFields
	if o.cfg.DedupFieldsFor != nil {
		dedupFields = o.cfg.DedupFieldsFor(topic)
	}

	opener := func(target string) (*filecache.Cache, error) {
		return filecache.Open(filecache.Options{
			TempDir:     acc.TempDir(),
			Target:      target,
			Category:    topic,
			Format:      o.cfg.Format,
			Compression: o.cfg.Compression,
			Driver:      o.cfg.OutputDriver,
			DedupFields: dedupFields,
		})
	}
	cacheStore := filecachestore.New(o.cacheSize(), opener)

	w := worker.New(worker.Config{
		Topic:             topic,
		Accountant:        acc,
		CacheStore:        cacheStore,
		PathFactory:       o.cfg.PathFactory,
		SourceDriver:      o.cfg.SourceDriver,
		OutputDriver:      o.cfg.OutputDriver,
		OutputRoot:        o.cfg.OutputRoot,
		Format:            o.cfg.Format,
		Compression:       o.cfg.Compression,
		DedupFields:       dedupFields,
		FlushEveryOffsets: o.cfg.FlushEveryOffsets,
		Logger:            o.log,
		Telemetry:         o.cfg.Telemetry,
		ThreadID:          int(o.threadSeq.Add(1)),
	})

	stats := w.Run(entries, o.IsClosed)

	if err := cacheStore.Close(); err != nil {
		o.log.Warn("orchestrator: cache store close failed", zap.String("topic", topic), zap.Error(err))
	}

	totals.TopicsProcessed.Add(1)
	totals.FilesProcessed.Add(stats.FilesProcessed)
	totals.FilesSkipped.Add(stats.FilesSkipped)
	totals.RecordsProcessed.Add(stats.RecordsProcessed)
	totals.RecordsSkipped.Add(stats.RecordsSkipped)

	if o.cfg.Status != nil {
		o.cfg.Status.Publish(totals.snapshot())
	}
	return nil
}

// listFilesLargestFirst enumerates topic's unprocessed record files
// (already-committed ranges filtered out via the Accountant, per spec.md
// §4.11 step 2b) and sorts them largest-first: the longest-job-first
// scheduling hint that keeps the work-stealing pool busy until the very
// end instead of finishing on one straggler file.
func (o *Orchestrator) listFilesLargestFirst(topic string, acc *accountant.Accountant) []objectstore.Entry {
	known := func(path string) bool {
		tp, rng, _, err := offsetset.ParseFilename(path)
		if err != nil {
			return false
		}
		return acc.Contains(tp, rng.From) && acc.Contains(tp, rng.To)
	}

	var entries []objectstore.Entry
	for entry := range objectstore.ListRecordFiles(o.cfg.SourceDriver, topic, known, o.cfg.MaxFilesPerTopic) {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Size > entries[j].Size })
	return entries
}

func (o *Orchestrator) cacheSize() int {
	if o.cfg.CacheSize > 0 {
		return o.cfg.CacheSize
	}
	return 100 // spec.md §6's -s/--cache-size default
}
