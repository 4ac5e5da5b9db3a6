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

// Package offsetset implements the in-memory interval set that tracks which
// offsets of a (topic, partition) have already been processed.
//
// The outer topic/partition -> range-list map is a NonLockingReadMap: new
// partitions appear rarely, but every single record checks membership, so
// reads must never block on a write. Each partition's ranges live in a
// btree.BTreeG ordered by the range's starting offset, canonicalized on
// every insert so consecutive ranges are never overlapping or adjacent.
package offsetset

import (
	"fmt"
	"time"

	"github.com/google/btree"
	"github.com/launix-de/NonLockingReadMap"
)

// TopicPartition identifies a parallel shard of a topic.
type TopicPartition struct {
	Topic     string
	Partition int
}

func (tp TopicPartition) key() string {
	return fmt.Sprintf("%s\x00%020d", tp.Topic, tp.Partition)
}

// OffsetRange is a value type: [From, To] inclusive on both ends, plus the
// wall-clock time the range was last touched. No setters — ranges are
// replaced wholesale on merge, never mutated in place.
type OffsetRange struct {
	From          int64
	To            int64
	LastProcessed time.Time
}

// Size returns the number of offsets the range covers.
func (r OffsetRange) Size() int64 {
	return r.To - r.From + 1
}

func (r OffsetRange) less(other OffsetRange) bool {
	return r.From < other.From
}

// partitionRanges is the per-partition btree, wrapped to satisfy
// NonLockingReadMap.KeyGetter[string].
type partitionRanges struct {
	tp   TopicPartition
	tree *btree.BTreeG[OffsetRange]
}

func (p *partitionRanges) GetKey() string { return p.tp.key() }

func (p *partitionRanges) ComputeSize() uint {
	return 64 + uint(p.tree.Len())*40
}

func newPartitionRanges(tp TopicPartition) *partitionRanges {
	return &partitionRanges{tp: tp, tree: btree.NewG(32, OffsetRange.less)}
}

// Set is the offset range set for an entire topic (all its partitions).
// It is not internally synchronized for concurrent mutation — per spec, the
// Accountant that owns a Set mutates it single-threaded; the NonLockingReadMap
// only protects concurrent *reads* of the partition map against the rare
// concurrent insertion of a brand-new partition.
type Set struct {
	partitions NonLockingReadMap.NonLockingReadMap[partitionRanges, string]
}

// New returns an empty offset range set.
func New() *Set {
	return &Set{partitions: NonLockingReadMap.New[partitionRanges, string]()}
}

func (s *Set) partitionFor(tp TopicPartition, create bool) *partitionRanges {
	key := tp.key()
	if existing := s.partitions.Get(key); existing != nil {
		return existing
	}
	if !create {
		return nil
	}
	fresh := newPartitionRanges(tp)
	if prior := s.partitions.Set(fresh); prior != nil {
		return prior
	}
	return fresh
}

// Add merges a single range into the set, coalescing with any overlapping
// or touching (From-1/To+1 adjacent) neighbours.
func (s *Set) Add(tp TopicPartition, r OffsetRange) {
	p := s.partitionFor(tp, true)
	merged := r

	// absorb the left neighbour if it touches or overlaps
	p.tree.DescendLessOrEqual(OffsetRange{From: merged.From}, func(left OffsetRange) bool {
		if left.To+1 >= merged.From {
			merged = coalesce(left, merged)
			p.tree.Delete(left)
		}
		return false // only ever examine the one immediate left neighbour
	})

	// absorb every right neighbour that now touches or overlaps
	for {
		var hit *OffsetRange
		p.tree.AscendGreaterOrEqual(OffsetRange{From: merged.From}, func(right OffsetRange) bool {
			if right.From <= merged.To+1 {
				h := right
				hit = &h
			}
			return false
		})
		if hit == nil {
			break
		}
		merged = coalesce(*hit, merged)
		p.tree.Delete(*hit)
	}

	p.tree.ReplaceOrInsert(merged)
}

func coalesce(a, b OffsetRange) OffsetRange {
	from, to := a.From, a.To
	if b.From < from {
		from = b.From
	}
	if b.To > to {
		to = b.To
	}
	last := a.LastProcessed
	if b.LastProcessed.After(last) {
		last = b.LastProcessed
	}
	return OffsetRange{From: from, To: to, LastProcessed: last}
}

// AddAll merges many ranges in one call.
func (s *Set) AddAll(tp TopicPartition, ranges []OffsetRange) {
	for _, r := range ranges {
		s.Add(tp, r)
	}
}

// AddOffset is the Transaction-sized helper: add a single offset as a
// singleton range.
func (s *Set) AddOffset(tp TopicPartition, offset int64, at time.Time) {
	s.Add(tp, OffsetRange{From: offset, To: offset, LastProcessed: at})
}

// Contains reports whether some stored range fully covers r.
func (s *Set) Contains(tp TopicPartition, r OffsetRange) bool {
	p := s.partitionFor(tp, false)
	if p == nil {
		return false
	}
	found := false
	p.tree.DescendLessOrEqual(OffsetRange{From: r.From}, func(candidate OffsetRange) bool {
		found = candidate.From <= r.From && r.To <= candidate.To
		return false
	})
	return found
}

// ContainsOffset is the common case of Contains for a single offset.
func (s *Set) ContainsOffset(tp TopicPartition, offset int64) bool {
	return s.Contains(tp, OffsetRange{From: offset, To: offset})
}

// Ranges returns the canonical, ascending ranges for one partition.
func (s *Set) Ranges(tp TopicPartition) []OffsetRange {
	p := s.partitionFor(tp, false)
	if p == nil {
		return nil
	}
	out := make([]OffsetRange, 0, p.tree.Len())
	p.tree.Ascend(func(r OffsetRange) bool {
		out = append(out, r)
		return true
	})
	return out
}

// Size returns the number of disjoint intervals stored for tp.
func (s *Set) Size(tp TopicPartition) int {
	p := s.partitionFor(tp, false)
	if p == nil {
		return 0
	}
	return p.tree.Len()
}

// Partitions returns every TopicPartition with at least one stored range.
func (s *Set) Partitions() []TopicPartition {
	all := s.partitions.GetAll()
	out := make([]TopicPartition, 0, len(all))
	for _, p := range all {
		out = append(out, p.tp)
	}
	return out
}

// Clone returns an independent copy of s. Callers that hand a Set off to a
// goroutine that will read it later (e.g. a coalesced durable write) must
// clone first: Set is not safe for concurrent mutation and concurrent read.
func (s *Set) Clone() *Set {
	clone := New()
	for _, tp := range s.Partitions() {
		clone.AddAll(tp, s.Ranges(tp))
	}
	return clone
}
