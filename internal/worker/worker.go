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

// Package worker runs one topic's sequential restructure pipeline per
// spec.md §4.10: read each source file, skip already-committed offsets,
// route records through the Path Factory into the File Cache Store, and
// batch offset commits into the Accountant. Concurrency across topics is
// the Orchestrator's concern (C11); within one Worker everything runs on
// the calling goroutine.
package worker

import (
	"math/rand/v2"
	"path"
	"time"

	"go.uber.org/zap"

	"github.com/launix-de/restructure/internal/accountant"
	"github.com/launix-de/restructure/internal/avrostream"
	"github.com/launix-de/restructure/internal/filecache"
	"github.com/launix-de/restructure/internal/filecachestore"
	"github.com/launix-de/restructure/internal/objectstore"
	"github.com/launix-de/restructure/internal/offsetset"
	"github.com/launix-de/restructure/internal/pathfactory"
	"github.com/launix-de/restructure/internal/telemetry"
)

// flushEveryOffsets is the base batching threshold of spec.md §4.10's
// "every ≈500000 offsets"; Config.FlushEveryOffsets overrides it.
const flushEveryOffsets = 500_000

// maxAttempts bounds the Path Factory retry loop of spec.md §4.10 step 2c.
// A schema-drifted record always eventually lands in a freshly-created
// suffixed file (which has no pinned header yet), so this is a pathological
// safety cap, not an expected limit.
const maxAttempts = 1000

// Config wires one Worker's dependencies. All fields are required unless
// noted.
type Config struct {
	Topic             string
	Accountant        *accountant.Accountant
	CacheStore        *filecachestore.Store
	PathFactory       *pathfactory.Factory
	SourceDriver      objectstore.Driver // reads container files
	OutputDriver      objectstore.Driver // publishes bins.csv / schema.json
	OutputRoot        string
	Format            string // "csv" or "json"
	Compression       filecache.Compression
	DedupFields       []string // nil disables dedup
	FlushEveryOffsets int64    // 0 => flushEveryOffsets
	Logger            *zap.Logger

	// Telemetry is the per-category timing collector of spec.md §4.11
	// step 3's "print per-category timings if the timer is enabled". Nil
	// disables timing (treated as telemetry.Noop). ThreadID identifies
	// this Worker's dispatch slot in the collector's contributing-thread
	// count.
	Telemetry telemetry.Collector
	ThreadID  int
}

// Stats reports one Worker run's totals, aggregated by the Orchestrator
// into its own atomic counters.
type Stats struct {
	FilesProcessed   int64
	FilesSkipped     int64
	RecordsProcessed int64
	RecordsSkipped   int64
}

// Worker runs one topic's files to completion or until isClosed is
// observed between files.
type Worker struct {
	cfg     Config
	log     *zap.Logger
	sidecar *sidecar

	ledger        *offsetset.Set
	sinceFlush    int64
	nextFlushAt   int64
}

// New builds a Worker for cfg.Topic.
func New(cfg Config) *Worker {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Telemetry == nil {
		cfg.Telemetry = telemetry.Noop
	}
	w := &Worker{
		cfg:     cfg,
		log:     log,
		sidecar: newSidecar(cfg.OutputDriver, cfg.OutputRoot),
		ledger:  cfg.Accountant.NewLedger(),
	}
	w.nextFlushAt = w.jitteredThreshold()
	return w
}

// jitteredThreshold returns the next batched-flush offset count, within
// ±25% of the configured threshold, to desynchronize concurrent workers'
// flush cadences per spec.md §4.10.
func (w *Worker) jitteredThreshold() int64 {
	base := w.cfg.FlushEveryOffsets
	if base <= 0 {
		base = flushEveryOffsets
	}
	jitter := 0.75 + rand.Float64()*0.5 // [0.75, 1.25)
	return int64(float64(base) * jitter)
}

// Run processes files in order until exhausted or isClosed returns true
// (checked only between files, never mid-file, per spec.md §5's
// cancellation model). The caller is expected to have already sorted
// files largest-first (longest-job-first, per spec.md §4.11 step 2b).
func (w *Worker) Run(files []objectstore.Entry, isClosed func() bool) Stats {
	var stats Stats
	for _, entry := range files {
		if isClosed != nil && isClosed() {
			break
		}
		if w.processFile(entry, &stats) {
			stats.FilesProcessed++
		} else {
			stats.FilesSkipped++
		}
	}

	w.flushBatch()
	if err := w.sidecar.Flush(); err != nil {
		w.log.Warn("worker: sidecar flush failed", zap.String("topic", w.cfg.Topic), zap.Error(err))
	}
	return stats
}

// processFile runs the per-file pipeline of spec.md §4.10. Returns false
// if the file was skipped outright (bad filename, zero-length, or a file
// that could not be opened or decoded).
func (w *Worker) processFile(entry objectstore.Entry, stats *Stats) bool {
	tp, fileRange, _, err := offsetset.ParseFilename(entry.Path)
	if err != nil {
		w.log.Warn("worker: skipping file with unparseable name", zap.String("path", entry.Path), zap.Error(err))
		return false
	}

	if entry.Size == 0 {
		w.log.Warn("worker: skipping zero-length container file", zap.String("path", entry.Path))
		return false
	}

	src, err := w.cfg.SourceDriver.NewReader(entry.Path)
	if err != nil {
		w.log.Warn("worker: failed to open container file", zap.String("path", entry.Path), zap.Error(err))
		return false
	}

	reader, err := avrostream.Open(src)
	if err != nil {
		w.log.Warn("worker: failed to decode container file", zap.String("path", entry.Path), zap.Error(err))
		return false
	}
	defer reader.Close()

	offset := fileRange.From
	for {
		rec, ok, err := reader.Next()
		if err != nil {
			w.log.Warn("worker: record decode error, stopping file early", zap.String("path", entry.Path), zap.Error(err))
			break
		}
		if !ok {
			break
		}

		w.processRecord(tp, offset, rec, stats)
		offset++
	}

	w.ledger.Add(tp, fileRange)
	w.maybeFlush()
	return true
}

// processRecord implements spec.md §4.10 step 2: skip if already
// committed, else route and write, retrying with an incrementing attempt
// suffix until a compatible target accepts the record.
func (w *Worker) processRecord(tp offsetset.TopicPartition, offset int64, rec avrostream.Record, stats *Stats) {
	if w.cfg.Accountant.Contains(tp, offset) {
		stats.RecordsSkipped++
		return
	}

	record := mergeKeyValue(rec.Key, rec.Value)

	for attempt := 0; attempt <= maxAttempts; attempt++ {
		org := w.cfg.PathFactory.Route(w.cfg.Topic, rec.Key, rec.Value, attempt, w.outputExtension())
		target := org.RelativePath

		start := time.Now()
		resp, err := w.cfg.CacheStore.WriteRecord(target, func(c *filecache.Cache) (bool, error) {
			return c.WriteRecord(record)
		})
		w.cfg.Telemetry.Record(org.Category, w.cfg.ThreadID, time.Since(start))
		if err != nil {
			w.log.Warn("worker: write error, abandoning record", zap.String("target", target), zap.Error(err))
			return
		}

		switch resp {
		case filecachestore.CacheAndWrite, filecachestore.NoCacheAndWrite:
			stats.RecordsProcessed++
			w.sidecar.RecordBin(w.cfg.Topic, org.Category, org.TimeBin)
			if err := w.sidecar.EnsureSchema(path.Dir(target), w.cfg.Format, w.cfg.Compression.Extension()); err != nil {
				w.log.Warn("worker: schema.json emit failed", zap.String("dir", path.Dir(target)), zap.Error(err))
			}
			w.ledger.AddOffset(tp, offset, time.Now())
			w.sinceFlush++
			return
		case filecachestore.CacheAndNoWrite, filecachestore.NoCacheAndNoWrite:
			// Schema mismatch: retry at target's `_<attempt+1>` suffix.
			continue
		}
	}

	w.log.Error("worker: exhausted retry attempts for record, dropping",
		zap.String("topic", w.cfg.Topic), zap.Int64("offset", offset))
}

// outputExtension is the converter's extension plus any compression
// suffix, per spec.md §4.5 step 4.
func (w *Worker) outputExtension() string {
	base := ".csv"
	if w.cfg.Format == "json" {
		base = ".jsonl"
	}
	return base + w.cfg.Compression.Extension()
}

// maybeFlush triggers a batched Accountant commit + cache-store flush once
// the per-worker offset accumulator crosses its jittered threshold.
func (w *Worker) maybeFlush() {
	if w.sinceFlush < w.nextFlushAt {
		return
	}
	w.flushBatch()
}

func (w *Worker) flushBatch() {
	if err := w.cfg.CacheStore.Flush(); err != nil {
		w.log.Warn("worker: cache store flush failed", zap.String("topic", w.cfg.Topic), zap.Error(err))
	}
	if err := w.sidecar.Flush(); err != nil {
		w.log.Warn("worker: sidecar flush failed", zap.String("topic", w.cfg.Topic), zap.Error(err))
	}
	w.cfg.Accountant.Process(w.ledger)
	w.ledger = w.cfg.Accountant.NewLedger()
	w.sinceFlush = 0
	w.nextFlushAt = w.jitteredThreshold()
}

// mergeKeyValue flattens a decoded record's key/value halves into the
// single map convert.Flatten expects, nesting each half under its own
// top-level field so key and value columns never collide by name.
func mergeKeyValue(key, value map[string]any) map[string]any {
	out := make(map[string]any, 2)
	if key != nil {
		out["key"] = key
	}
	if value != nil {
		out["value"] = value
	}
	return out
}
