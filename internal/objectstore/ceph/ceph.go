//go:build ceph

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

// Package ceph is an objectstore.Driver over RADOS via github.com/ceph/go-ceph,
// an additional S3-compatible-via-RADOS backend beyond spec.md's four named
// backends, adapted from storage/persistence-ceph.go. Gated behind the
// "ceph" build tag because librados is a cgo dependency, same as the
// teacher's split between persistence-ceph.go and persistence-ceph-stub.go.
package ceph

import (
	"bytes"
	"encoding/json"
	"io"
	"iter"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/ceph/go-ceph/rados"

	"github.com/launix-de/restructure/internal/objectstore"
)

func init() {
	objectstore.Register("ceph", func(raw json.RawMessage) (objectstore.Driver, error) {
		var cfg Config
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, err
		}
		return New(cfg), nil
	})
}

// Config mirrors the teacher's CephFactory fields.
type Config struct {
	UserName    string `json:"username"`
	ClusterName string `json:"cluster"`
	ConfFile    string `json:"confFile"`
	Pool        string `json:"pool"`
	Prefix      string `json:"prefix"`
}

type Driver struct {
	cfg Config

	mu     sync.Mutex
	conn   *rados.Conn
	ioctx  *rados.IOContext
	opened bool
}

func New(cfg Config) *Driver {
	return &Driver{cfg: cfg}
}

func (d *Driver) ensureOpen() *rados.IOContext {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.opened {
		return d.ioctx
	}

	conn, err := rados.NewConnWithClusterAndUser(d.cfg.ClusterName, d.cfg.UserName)
	if err != nil {
		panic("objectstore/ceph: failed to create connection: " + err.Error())
	}
	if err := conn.ReadConfigFile(d.cfg.ConfFile); err != nil {
		panic("objectstore/ceph: failed to read config: " + err.Error())
	}
	if err := conn.Connect(); err != nil {
		panic("objectstore/ceph: failed to connect: " + err.Error())
	}

	ioctx, err := conn.OpenIOContext(d.cfg.Pool)
	if err != nil {
		panic("objectstore/ceph: failed to open pool: " + err.Error())
	}

	d.conn = conn
	d.ioctx = ioctx
	d.opened = true
	return d.ioctx
}

func (d *Driver) oid(p string) string {
	pfx := strings.TrimSuffix(d.cfg.Prefix, "/")
	if pfx == "" {
		return p
	}
	return path.Join(pfx, p)
}

// List is a best-effort prefix scan: RADOS has no hierarchy, so this walks
// the pool's object iterator and filters client-side by prefix.
func (d *Driver) List(listPath string) iter.Seq[objectstore.Entry] {
	return func(yield func(objectstore.Entry) bool) {
		ioctx := d.ensureOpen()
		prefix := d.oid(listPath)
		iter, err := ioctx.Iter()
		if err != nil {
			return
		}
		defer iter.Close()

		for iter.Next() {
			name := iter.Value()
			if !strings.HasPrefix(name, prefix) {
				continue
			}
			stat, err := ioctx.Stat(name)
			size := int64(0)
			if err == nil {
				size = int64(stat.Size)
			}
			rel := strings.TrimPrefix(strings.TrimPrefix(name, d.oid("")), "/")
			if !yield(objectstore.Entry{Path: rel, IsDir: false, Size: size}) {
				return
			}
		}
	}
}

func (d *Driver) NewReader(p string) (io.ReadCloser, error) {
	ioctx := d.ensureOpen()
	oid := d.oid(p)
	stat, err := ioctx.Stat(oid)
	if err != nil {
		return nil, objectstore.ErrNotExist
	}
	buf := make([]byte, stat.Size)
	if _, err := ioctx.Read(oid, buf, 0); err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(buf)), nil
}

func (d *Driver) Stat(p string) (int64, error) {
	ioctx := d.ensureOpen()
	stat, err := ioctx.Stat(d.oid(p))
	if err != nil {
		return 0, objectstore.ErrNotExist
	}
	return int64(stat.Size), nil
}

func (d *Driver) Store(local, remote string) error {
	ioctx := d.ensureOpen()
	data, err := os.ReadFile(local)
	if err != nil {
		return err
	}
	if err := ioctx.WriteFull(d.oid(remote), data); err != nil {
		return err
	}
	return os.Remove(local)
}

func (d *Driver) Move(src, dst string) error {
	ioctx := d.ensureOpen()
	srcOid, dstOid := d.oid(src), d.oid(dst)
	stat, err := ioctx.Stat(srcOid)
	if err != nil {
		return err
	}
	buf := make([]byte, stat.Size)
	if _, err := ioctx.Read(srcOid, buf, 0); err != nil {
		return err
	}
	if err := ioctx.WriteFull(dstOid, buf); err != nil {
		return err
	}
	return ioctx.Delete(srcOid)
}

func (d *Driver) Delete(p string) error {
	ioctx := d.ensureOpen()
	return ioctx.Delete(d.oid(p))
}

// MkdirAll is a no-op: RADOS pools have no directory hierarchy.
func (d *Driver) MkdirAll(p string) error {
	return nil
}
