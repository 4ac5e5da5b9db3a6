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

package filecache

import (
	"hash/fnv"
	"sort"
	"strings"
)

// dedupBloomSize/dedupBloomK mirror jpl-au-folio/bloom.go's sizing for
// ~10k entries at a ~1% false-positive rate; suppression here is
// deliberately best-effort (spec.md §1 non-goals: "duplicate suppression
// is best-effort"), so an occasional false-positive drop is acceptable.
const (
	dedupBloomSize = 11982
	dedupBloomK    = 7
)

// dedupFilter is a per-target-path bloom filter used to drop records
// that look like repeats of one already written, per the `-d/--deduplicate`
// flag and optional `deduplicateFields` restriction.
type dedupFilter struct {
	fields []string
	bits   []byte
}

func newDedupFilter(fields []string) *dedupFilter {
	sorted := append([]string(nil), fields...)
	sort.Strings(sorted)
	return &dedupFilter{fields: sorted, bits: make([]byte, dedupBloomSize)}
}

// Seen reports whether flat looks like a repeat, and records it as seen
// either way (so a borderline-hit record is not re-checked against its own
// insertion on a later duplicate).
func (d *dedupFilter) Seen(flat map[string]string) bool {
	key := d.key(flat)
	hit := d.contains(key)
	d.add(key)
	return hit
}

// key builds the dedup identity: the configured subset of fields, or the
// full flattened row when no subset was configured. Per spec.md §9's open
// question, the exact semantics of a subset match against a row with a
// different column set are left unresolved upstream; this implementation
// only ever compares the configured fields' string values (missing fields
// contribute an empty segment), which is the one behavior spec.md pins
// down unambiguously.
func (d *dedupFilter) key(flat map[string]string) string {
	var b strings.Builder
	if len(d.fields) == 0 {
		cols := make([]string, 0, len(flat))
		for c := range flat {
			cols = append(cols, c)
		}
		sort.Strings(cols)
		for _, c := range cols {
			b.WriteString(c)
			b.WriteByte('=')
			b.WriteString(flat[c])
			b.WriteByte('\x1f')
		}
		return b.String()
	}
	for _, f := range d.fields {
		b.WriteString(f)
		b.WriteByte('=')
		b.WriteString(flat[f])
		b.WriteByte('\x1f')
	}
	return b.String()
}

func (d *dedupFilter) contains(key string) bool {
	for _, pos := range d.positions(key) {
		if d.bits[pos/8]&(1<<(pos%8)) == 0 {
			return false
		}
	}
	return true
}

func (d *dedupFilter) add(key string) {
	for _, pos := range d.positions(key) {
		d.bits[pos/8] |= 1 << (pos % 8)
	}
}

func (d *dedupFilter) positions(key string) [dedupBloomK]uint {
	h64 := fnv.New64a()
	h64.Write([]byte(key))
	a := h64.Sum64()

	h32 := fnv.New32a()
	h32.Write([]byte(key))
	b := uint(h32.Sum32())

	nbits := uint(dedupBloomSize * 8)
	var pos [dedupBloomK]uint
	for i := range dedupBloomK {
		pos[i] = (uint(a) + uint(i)*b) % nbits
	}
	return pos
}
