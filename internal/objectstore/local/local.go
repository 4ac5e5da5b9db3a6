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

// Package local is an os-based objectstore.Driver, adapted from the
// teacher's storage/persistence-files.go FileStorage: same base-path
// joining, same rename-based backup-before-overwrite idiom for schema.json
// (reused here for any publish target, not just schemas).
package local

import (
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"iter"
	"os"
	"path/filepath"

	"github.com/launix-de/restructure/internal/objectstore"
)

func init() {
	objectstore.Register("local", func(raw json.RawMessage) (objectstore.Driver, error) {
		var cfg struct {
			BasePath string `json:"basePath"`
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &cfg); err != nil {
				return nil, err
			}
		}
		return New(cfg.BasePath), nil
	})
}

type Driver struct {
	basePath string
}

func New(basePath string) *Driver {
	return &Driver{basePath: basePath}
}

func (d *Driver) abs(p string) string {
	return filepath.Join(d.basePath, p)
}

func (d *Driver) List(path string) iter.Seq[objectstore.Entry] {
	return func(yield func(objectstore.Entry) bool) {
		root := d.abs(path)
		_ = filepath.WalkDir(root, func(p string, entry fs.DirEntry, err error) error {
			if err != nil {
				return nil // best-effort walk: skip entries we can't stat
			}
			if p == root {
				return nil
			}
			rel, relErr := filepath.Rel(d.basePath, p)
			if relErr != nil {
				return nil
			}
			var size int64
			if !entry.IsDir() {
				if info, infoErr := entry.Info(); infoErr == nil {
					size = info.Size()
				}
			}
			if !yield(objectstore.Entry{Path: rel, IsDir: entry.IsDir(), Size: size}) {
				return filepath.SkipAll
			}
			return nil
		})
	}
}

func (d *Driver) NewReader(path string) (io.ReadCloser, error) {
	f, err := os.Open(d.abs(path))
	if errors.Is(err, os.ErrNotExist) {
		return nil, objectstore.ErrNotExist
	}
	return f, err
}

func (d *Driver) Stat(path string) (int64, error) {
	info, err := os.Stat(d.abs(path))
	if errors.Is(err, os.ErrNotExist) {
		return 0, objectstore.ErrNotExist
	}
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Store publishes local (already a local filesystem path, not relative to
// basePath) to remote (relative to basePath) by renaming it into place,
// after rescuing any pre-existing target the same way
// storage/persistence-files.go's WriteSchema rescues schema.json before
// overwriting it.
func (d *Driver) Store(local, remote string) error {
	target := d.abs(remote)
	if err := os.MkdirAll(filepath.Dir(target), 0750); err != nil {
		return err
	}
	if stat, err := os.Stat(target); err == nil && stat.Size() > 0 {
		os.Rename(target, target+".old")
	}
	if err := os.Rename(local, target); err != nil {
		// Rename fails across filesystems (EXDEV); fall back to a
		// non-atomic copy-then-remove, per spec.md §4.7's "falling back
		// to non-atomic move" clause.
		return copyThenRemove(local, target)
	}
	return nil
}

func copyThenRemove(local, target string) error {
	in, err := os.Open(local)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(target)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(local)
}

func (d *Driver) Move(src, dst string) error {
	target := d.abs(dst)
	if err := os.MkdirAll(filepath.Dir(target), 0750); err != nil {
		return err
	}
	return os.Rename(d.abs(src), target)
}

func (d *Driver) Delete(path string) error {
	return os.Remove(d.abs(path))
}

func (d *Driver) MkdirAll(path string) error {
	return os.MkdirAll(d.abs(path), 0750)
}
