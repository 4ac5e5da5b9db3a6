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

// Package filecachestore is an LRU-by-last-use pool of filecache.Cache
// instances, bounded at maxFiles and evicting its coldest half when full —
// the same bulk-cleanup shape as the teacher's storage/cache.go
// CacheManager, adapted from a byte-budget policy to a count budget.
package filecachestore

import (
	"sort"

	"github.com/launix-de/restructure/internal/filecache"
)

// WriteResponse is the Cartesian of {cacheHit, success} per spec.md §3 —
// all four combinations are observable outcomes.
type WriteResponse int

const (
	CacheAndWrite WriteResponse = iota
	CacheAndNoWrite
	NoCacheAndWrite
	NoCacheAndNoWrite
)

// Opener constructs a fresh Cache for a target path not already pooled.
type Opener func(target string) (*filecache.Cache, error)

// Store pools filecache.Cache instances by target path, owned exclusively
// by one worker — per spec.md §5 there is no shared mutable state between
// workers, so this type is not internally synchronized.
type Store struct {
	maxFiles int
	open     Opener

	caches map[string]*filecache.Cache
}

// New returns an empty Store bounded at maxFiles entries.
func New(maxFiles int, open Opener) *Store {
	return &Store{maxFiles: maxFiles, open: open, caches: make(map[string]*filecache.Cache)}
}

// WriteRecord implements spec.md §4.8: look up or open the cache for
// target, write the record, and report which of the four WriteResponses
// occurred. A write that errors removes the cache from the pool and closes
// it. The Store does not mark the cache errored itself: a Cache whose own
// WriteRecord failed has already marked itself errored, so its Close
// discards the temp file instead of publishing a partial target.
func (s *Store) WriteRecord(target string, write func(c *filecache.Cache) (bool, error)) (WriteResponse, error) {
	c, hit := s.caches[target]
	if !hit {
		s.ensureCapacity()
		var err error
		c, err = s.open(target)
		if err != nil {
			return NoCacheAndNoWrite, err
		}
		s.caches[target] = c
	}

	ok, err := write(c)
	if err != nil {
		delete(s.caches, target)
		c.Close()
		return NoCacheAndNoWrite, err
	}

	switch {
	case hit && ok:
		return CacheAndWrite, nil
	case hit && !ok:
		return CacheAndNoWrite, nil
	case !hit && ok:
		return NoCacheAndWrite, nil
	default:
		return NoCacheAndNoWrite, nil
	}
}

// ensureCapacity closes the coldest half of the pool when it is full,
// mirroring storage/cache.go's cleanup(): sort by the C7 (lastUse, path)
// ordering ascending, then close the lower half. Per-cache close errors
// are aggregated rather than short-circuited.
func (s *Store) ensureCapacity() error {
	if s.maxFiles <= 0 || len(s.caches) < s.maxFiles {
		return nil
	}

	targets := make([]string, 0, len(s.caches))
	for t := range s.caches {
		targets = append(targets, t)
	}
	sort.Slice(targets, func(i, j int) bool {
		ci, cj := s.caches[targets[i]], s.caches[targets[j]]
		if !ci.LastUse().Equal(cj.LastUse()) {
			return ci.LastUse().Before(cj.LastUse())
		}
		return ci.Target() < cj.Target()
	})

	half := len(targets) / 2
	if half == 0 {
		half = 1
	}

	var errs []error
	for _, t := range targets[:half] {
		if err := s.caches[t].Close(); err != nil {
			errs = append(errs, err)
		}
		delete(s.caches, t)
	}
	return joinErrors(errs)
}

// Flush flushes every pooled cache's converter, aggregating errors.
func (s *Store) Flush() error {
	var errs []error
	for _, c := range s.caches {
		if err := c.Flush(); err != nil {
			errs = append(errs, err)
		}
	}
	return joinErrors(errs)
}

// Close closes every pooled cache (flush + publish), aggregating errors.
func (s *Store) Close() error {
	var errs []error
	for t, c := range s.caches {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(s.caches, t)
	}
	return joinErrors(errs)
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	msg := "filecachestore: multiple errors: "
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

func (m *multiError) Error() string   { return m.msg }
func (m *multiError) Unwrap() []error { return m.errs }
