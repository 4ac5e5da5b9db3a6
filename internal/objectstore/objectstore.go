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

// Package objectstore generalizes the teacher's storage.PersistenceEngine
// (storage/persistence.go) from column/log/schema nouns to path nouns: a
// pluggable backend for a possibly huge remote tree of record container
// files. Drivers register themselves by short name in an init(), the same
// shape as the teacher's storage.BackendRegistry (storage/persistence-ceph.go),
// so selecting a backend at runtime never needs a fully-qualified symbol.
package objectstore

import (
	"encoding/json"
	"errors"
	"io"
	"iter"
)

// ErrNotExist is returned by Stat for a path that does not exist.
var ErrNotExist = errors.New("objectstore: path does not exist")

// Entry is one listed path.
type Entry struct {
	Path  string
	IsDir bool
	Size  int64
}

// Driver is the contract a backend must implement. Modeled on
// storage.PersistenceEngine's read/write/remove shape, generalized to
// arbitrary relative paths instead of (shard, column) pairs.
type Driver interface {
	// List lazily walks path, yielding every entry beneath it (files and
	// directories). Implementations must stop as soon as yield returns
	// false (Go 1.23 range-over-func).
	List(path string) iter.Seq[Entry]
	NewReader(path string) (io.ReadCloser, error)
	// Stat returns the size of path, or ErrNotExist if it is absent.
	Stat(path string) (int64, error)
	// Store publishes local (a local filesystem path) to remote, atomically
	// where the backend supports it (rename), else falling back to a
	// non-atomic copy-then-delete.
	Store(local, remote string) error
	Move(src, dst string) error
	Delete(path string) error
	MkdirAll(path string) error
}

// Factory constructs a Driver from its raw JSON/YAML-decoded config block.
type Factory func(raw json.RawMessage) (Driver, error)

// Registry is the name -> Factory table, populated by each driver
// subpackage's init(). Custom backends register before Open is called
// (design notes §9: "Custom backends register before parse").
var Registry = make(map[string]Factory)

// Register adds a driver factory under name. Intended to be called from a
// driver package's init(). Panics on duplicate registration, since two
// drivers silently shadowing each other is always a build-time mistake.
func Register(name string, factory Factory) {
	if _, exists := Registry[name]; exists {
		panic("objectstore: driver already registered: " + name)
	}
	Registry[name] = factory
}

// Open constructs the named driver with its config block.
func Open(name string, raw json.RawMessage) (Driver, error) {
	factory, ok := Registry[name]
	if !ok {
		return nil, errors.New("objectstore: unknown driver: " + name)
	}
	return factory(raw)
}
