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

// Package offsetstore persists one offsetset.Set per topic. Both backends
// (file-per-topic and redis) share the same postponed-write shape: writes
// are requested with TriggerWrite and coalesced by a single dedicated
// goroutine per topic within a bounded window, the way the teacher's
// storage/cache.go CacheManager serializes all mutation through one
// goroutine reading an op channel.
package offsetstore

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/launix-de/restructure/internal/offsetset"
)

// CoalesceWindow bounds how long a TriggerWrite may wait before a write
// actually happens, per spec.md §4.2 ("the window is bounded (≤ 1 s)").
const CoalesceWindow = 1 * time.Second

// Backend is the durable persistence contract a Store backend must
// implement for a single topic.
type Backend interface {
	// Read loads the persisted ranges for topic, or returns (nil, nil) if
	// none exist yet. A read failure is logged by the caller and treated
	// as empty — it must never propagate as a hard error.
	Read(topic string) (*offsetset.Set, error)
	// Write persists the full current state of set for topic.
	Write(topic string, set *offsetset.Set) error
}

// Store is the C2 contract: one OffsetRangeSet per topic, with postponed,
// coalesced writes and a synchronous Close.
type Store struct {
	backend Backend
	log     *zap.Logger

	mu      sync.Mutex
	writers map[string]*topicWriter
}

func New(backend Backend, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{backend: backend, log: log, writers: make(map[string]*topicWriter)}
}

// Load reads the persisted set for topic. Read failures are logged and
// treated as an empty set: the cost is re-processing, never lost data.
func (s *Store) Load(topic string) *offsetset.Set {
	set, err := s.backend.Read(topic)
	if err != nil {
		s.log.Warn("offsetstore: read failed, starting from empty set", zap.String("topic", topic), zap.Error(err))
		return offsetset.New()
	}
	if set == nil {
		return offsetset.New()
	}
	return set
}

// TriggerWrite requests a coalesced, asynchronous persist of set for topic.
// Never blocks the caller.
func (s *Store) TriggerWrite(topic string, set *offsetset.Set) {
	s.writerFor(topic).trigger(set)
}

// Flush forces a synchronous write of set for topic right now, bypassing
// the coalescing window.
func (s *Store) Flush(topic string, set *offsetset.Set) error {
	return s.writerFor(topic).flushNow(set)
}

// CloseTopic stops and drains the writer for one topic, forcing a final
// synchronous write of whatever was last triggered.
func (s *Store) CloseTopic(topic string) error {
	s.mu.Lock()
	w, ok := s.writers[topic]
	delete(s.writers, topic)
	s.mu.Unlock()
	if !ok {
		return nil
	}
	return w.close()
}

// Close drains every outstanding per-topic writer, forcing a final
// synchronous write for each. Errors are aggregated, not short-circuited,
// so one failing topic does not prevent the others from being flushed.
func (s *Store) Close() error {
	s.mu.Lock()
	writers := make([]*topicWriter, 0, len(s.writers))
	for _, w := range s.writers {
		writers = append(writers, w)
	}
	s.writers = make(map[string]*topicWriter)
	s.mu.Unlock()

	var errs []error
	for _, w := range writers {
		if err := w.close(); err != nil {
			errs = append(errs, err)
		}
	}
	return joinErrors(errs)
}

func (s *Store) writerFor(topic string) *topicWriter {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.writers[topic]; ok {
		return w
	}
	w := newTopicWriter(topic, s.backend, s.log)
	s.writers[topic] = w
	return w
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	msg := "offsetstore: multiple close errors: "
	for i, e := range errs {
		if i > 0 {
			msg += "; "
		}
		msg += e.Error()
	}
	return &multiError{msg: msg, errs: errs}
}

type multiError struct {
	msg  string
	errs []error
}

func (m *multiError) Error() string { return m.msg }
func (m *multiError) Unwrap() []error { return m.errs }
