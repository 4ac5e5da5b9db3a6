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

// Package accountant implements the per-topic ledger of in-flight offsets
// and the persisted set they graduate into, per spec.md §4.9. Mutation is
// serialized the same way the teacher's storage/cache.go CacheManager
// serializes its own state: one owner, a mutex guarding the merge step.
package accountant

import (
	"os"
	"sync"

	"github.com/dc0d/onexit"
	"go.uber.org/zap"

	"github.com/launix-de/restructure/internal/offsetset"
	"github.com/launix-de/restructure/internal/offsetstore"
)

// Accountant owns one topic's persisted OffsetRangeSet (loaded from the
// Offset Store) and a private temporary directory for its worker's File
// Cache Store.
type Accountant struct {
	topic string
	store *offsetstore.Store
	log   *zap.Logger

	mu        sync.Mutex
	persisted *offsetset.Set

	tempDir string
}

// New loads topic's persisted set from store and allocates a private
// temporary directory under tempDirParent (an empty parent uses the OS
// default).
func New(topic string, store *offsetstore.Store, tempDirParent string, log *zap.Logger) (*Accountant, error) {
	if log == nil {
		log = zap.NewNop()
	}
	dir, err := os.MkdirTemp(tempDirParent, "restructure-"+sanitizeTempName(topic)+"-")
	if err != nil {
		return nil, err
	}
	a := &Accountant{
		topic:     topic,
		store:     store,
		log:       log,
		persisted: store.Load(topic),
		tempDir:   dir,
	}

	registerLive(a)

	return a, nil
}

// registry tracks every live Accountant so the single process-wide exit
// hook below can flush whichever ones are still open, instead of each
// Accountant.New call registering its own closure. In service mode
// (-S/--service), New runs once per topic per interval forever; a
// per-instance onexit.Register would leak a hook per pass, and at actual
// shutdown the stale hooks from already-Close'd Accountants would each
// fire with the snapshot they held at creation time, capable of
// overwriting the Offset Store with an older range set right as the
// process exits.
var registry = struct {
	mu   sync.Mutex
	live map[*Accountant]bool
}{live: make(map[*Accountant]bool)}

var registerOnexitOnce sync.Once

func registerLive(a *Accountant) {
	registry.mu.Lock()
	registry.live[a] = true
	registry.mu.Unlock()

	// A crash or an unexpected os.Exit should still attempt one last
	// coalesced write rather than silently dropping the current batch —
	// registered exactly once per process, mirroring the teacher's own
	// storage/settings.go InitSettings() call site.
	registerOnexitOnce.Do(func() {
		onexit.Register(flushAllLive)
	})
}

func flushAllLive() {
	registry.mu.Lock()
	accountants := make([]*Accountant, 0, len(registry.live))
	for a := range registry.live {
		accountants = append(accountants, a)
	}
	registry.mu.Unlock()

	for _, a := range accountants {
		if err := a.Flush(); err != nil {
			a.log.Warn("accountant: final exit-time flush failed", zap.String("topic", a.topic), zap.Error(err))
		}
	}
}

func unregisterLive(a *Accountant) {
	registry.mu.Lock()
	delete(registry.live, a)
	registry.mu.Unlock()
}

// TempDir is the worker's private scratch directory, removed on Close.
func (a *Accountant) TempDir() string { return a.tempDir }

// NewLedger returns a fresh, empty ledger for a batch of in-flight writes.
func (a *Accountant) NewLedger() *offsetset.Set {
	return offsetset.New()
}

// Contains reports whether offset of tp has already been committed —
// the crash-resume idempotence check of spec.md §4.10 step 2a.
func (a *Accountant) Contains(tp offsetset.TopicPartition, offset int64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.persisted.ContainsOffset(tp, offset)
}

// Process merges ledger's ranges into the persisted set and requests a
// coalesced durable write. The write is handed a clone: the offsetstore's
// own goroutine may still be reading a previously-triggered snapshot when
// the next Process call mutates a.persisted further.
func (a *Accountant) Process(ledger *offsetset.Set) {
	a.mu.Lock()
	for _, tp := range ledger.Partitions() {
		a.persisted.AddAll(tp, ledger.Ranges(tp))
	}
	snapshot := a.persisted.Clone()
	a.mu.Unlock()

	a.store.TriggerWrite(a.topic, snapshot)
}

// Flush forces a synchronous durable write of the current persisted set.
func (a *Accountant) Flush() error {
	a.mu.Lock()
	snapshot := a.persisted.Clone()
	a.mu.Unlock()
	return a.store.Flush(a.topic, snapshot)
}

// Close forces a final synchronous write, then recursively removes the
// private temporary directory.
func (a *Accountant) Close() error {
	unregisterLive(a)
	flushErr := a.store.CloseTopic(a.topic)
	rmErr := os.RemoveAll(a.tempDir)
	if flushErr != nil {
		return flushErr
	}
	return rmErr
}

func sanitizeTempName(topic string) string {
	out := make([]rune, 0, len(topic))
	for _, r := range topic {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-' || r == '_':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	if len(out) == 0 {
		return "topic"
	}
	return string(out)
}
