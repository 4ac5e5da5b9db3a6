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

package offsetstore

import (
	"go.uber.org/zap"

	"github.com/launix-de/restructure/internal/offsetset"
)

// topicWriter is a single dedicated goroutine owning all writes for one
// topic, modeled on storage/cache.go's CacheManager.run(): every request is
// an op sent over a channel, the goroutine alone touches the backend, and
// close() posts a shutdown sentinel and waits for the goroutine to drain.
type topicWriter struct {
	topic   string
	backend Backend
	log     *zap.Logger

	ops  chan writeOp
	done chan struct{}
}

type opKind int

const (
	opUpdate opKind = iota // new state arrived from the Accountant; (re)arm the debounce timer
	opTick                 // the debounce timer fired; flush whatever is pending now
	opForce                // synchronous flush, bypassing the timer
	opShutdown
)

type writeOp struct {
	kind   opKind
	set    *offsetset.Set
	result chan error
}

func newTopicWriter(topic string, backend Backend, log *zap.Logger) *topicWriter {
	w := &topicWriter{
		topic:   topic,
		backend: backend,
		log:     log,
		ops:     make(chan writeOp, 64),
		done:    make(chan struct{}),
	}
	go w.run()
	return w
}

// run is the single goroutine that owns pending and the backend for this
// topic. pending is only ever touched here, so the debounce timer's fired
// callback carries no state of its own — it just posts an opTick and lets
// this loop read whatever is current by the time it is processed.
func (w *topicWriter) run() {
	defer close(w.done)

	var pending *offsetset.Set
	var timer *debounceTimer

	flush := func() error {
		if pending == nil {
			return nil
		}
		if err := w.backend.Write(w.topic, pending); err != nil {
			w.log.Warn("offsetstore: write failed, will retry on next trigger",
				zap.String("topic", w.topic), zap.Error(err))
			// per spec: failure is logged; the next successful write supersedes it.
			return err
		}
		pending = nil
		return nil
	}

	for op := range w.ops {
		switch op.kind {
		case opShutdown:
			err := flush()
			if timer != nil {
				timer.stop()
			}
			if op.result != nil {
				op.result <- err
			}
			return

		case opForce:
			if op.set != nil {
				pending = op.set
			}
			if timer != nil {
				timer.stop()
				timer = nil
			}
			err := flush()
			if op.result != nil {
				op.result <- err
			}

		case opUpdate:
			pending = op.set
			if timer == nil {
				timer = newDebounceTimer(CoalesceWindow, func() {
					w.ops <- writeOp{kind: opTick}
				})
			}

		case opTick:
			timer = nil
			flush()
		}
	}
}

// trigger requests a coalesced write; it never blocks the caller beyond
// the channel send (the channel is generously buffered).
func (w *topicWriter) trigger(set *offsetset.Set) {
	w.ops <- writeOp{kind: opUpdate, set: set}
}

func (w *topicWriter) flushNow(set *offsetset.Set) error {
	result := make(chan error, 1)
	w.ops <- writeOp{kind: opForce, set: set, result: result}
	return <-result
}

func (w *topicWriter) close() error {
	result := make(chan error, 1)
	w.ops <- writeOp{kind: opShutdown, result: result}
	<-w.done
	return <-result
}
