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
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher holds the live Settings behind an atomic pointer and keeps it
// current by re-loading the config file on every fsnotify write/create
// event. In service mode the run command reads the topic exclusion set and
// the per-topic dedup fields from it on every scan; the service interval
// is read once at startup and does not change on reload. Most editors replace a file on save (write to
// a temp file, rename over the original) rather than writing in place, so
// both Write and Create/Rename events trigger a reload.
type Watcher struct {
	path    string
	current atomic.Pointer[Settings]
	watcher *fsnotify.Watcher
	log     *zap.Logger
	done    chan struct{}
}

// Watch loads path once, then starts a background goroutine that reloads
// it on every write, create or rename event and logs (without crashing) any reload that
// fails to parse — the last-known-good Settings stays live until a valid
// reload replaces it.
func Watch(path string, log *zap.Logger) (*Watcher, error) {
	if log == nil {
		log = zap.NewNop()
	}
	initial, err := Load(path)
	if err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(path); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{path: path, watcher: fw, log: log, done: make(chan struct{})}
	w.current.Store(initial)

	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			reloaded, err := Load(w.path)
			if err != nil {
				w.log.Warn("config: reload failed, keeping previous settings", zap.String("path", w.path), zap.Error(err))
				continue
			}
			w.current.Store(reloaded)
			w.log.Info("config: reloaded", zap.String("path", w.path))
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("config: watch error", zap.Error(err))
		case <-w.done:
			return
		}
	}
}

// Current returns the most recently loaded Settings.
func (w *Watcher) Current() *Settings {
	return w.current.Load()
}

// Close stops the reload goroutine and the underlying fsnotify watch.
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}
