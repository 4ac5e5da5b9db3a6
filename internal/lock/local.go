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

package lock

import (
	"os"
	"path/filepath"
	"sync"
)

// LocalLockManager is a single-node/dev substitute for RedisLockManager: an
// flock-based advisory lock per topic file under a directory, for
// --lock-directory runs where no redis is configured. Grounded on
// jpl-au-folio's fileLock: the mutex in fileHandle serializes the flock
// syscall against Close so a concurrent teardown cannot invalidate the fd
// mid-syscall.
type LocalLockManager struct {
	dir string

	mu    sync.Mutex
	files map[string]*os.File
}

func NewLocalLockManager(dir string) *LocalLockManager {
	return &LocalLockManager{dir: dir, files: make(map[string]*os.File)}
}

func (m *LocalLockManager) path(topic string) string {
	return filepath.Join(m.dir, topic+".lock")
}

// AcquireTopicLock tries a non-blocking exclusive flock; if already held,
// returns (nil, nil) per the Manager contract rather than an error.
func (m *LocalLockManager) AcquireTopicLock(topic string) (Handle, error) {
	lockPath := m.path(topic)
	if err := os.MkdirAll(filepath.Dir(lockPath), 0750); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0640)
	if err != nil {
		return nil, err
	}

	ok, err := tryFlock(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	if !ok {
		f.Close()
		return nil, nil
	}

	h := &localHandle{mgr: m, topic: topic, f: f}
	m.mu.Lock()
	m.files[topic] = f
	m.mu.Unlock()
	return h, nil
}

func (m *LocalLockManager) Close() error {
	m.mu.Lock()
	files := make([]*os.File, 0, len(m.files))
	for _, f := range m.files {
		files = append(files, f)
	}
	m.files = make(map[string]*os.File)
	m.mu.Unlock()

	var firstErr error
	for _, f := range files {
		if err := unflock(f); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

type localHandle struct {
	mgr   *LocalLockManager
	topic string

	mu sync.Mutex
	f  *os.File
}

func (h *localHandle) Release() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.f == nil {
		return nil
	}

	h.mgr.mu.Lock()
	delete(h.mgr.files, h.topic)
	h.mgr.mu.Unlock()

	err := unflock(h.f)
	if closeErr := h.f.Close(); err == nil {
		err = closeErr
	}
	h.f = nil
	return err
}
