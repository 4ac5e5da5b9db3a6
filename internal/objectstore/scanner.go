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

package objectstore

import (
	"iter"
	"math/rand/v2"
	"path"
	"strings"
)

// FindTopicPaths walks root lazily, pruning any directory literally named
// "+tmp" (a sink-side staging marker), and yields the topic directory for
// every *.avro record file found beneath root. Per spec.md §4.4 ("only the
// .avro anchor is load-bearing"), the topic directory is taken two levels
// above the record file itself, not above whatever directory happens to
// hold it directly — the depicted <root>/<date>/<topic>/<file>.avro
// layout is an illustration, not a depth guarantee; see DESIGN.md for why
// "grandparent of the record file" rather than "grandparent of its
// directory" is the reading used here. Results are de-duplicated and
// shuffled before dispatch so repeated runs rebalance contention across
// workers.
func FindTopicPaths(d Driver, root string) []string {
	seen := make(map[string]bool)
	var topics []string

	for entry := range d.List(root) {
		if entry.IsDir || !strings.HasSuffix(entry.Path, ".avro") {
			continue
		}
		if containsPrunedSegment(entry.Path) {
			continue
		}
		topic := path.Dir(path.Dir(entry.Path))
		if topic == "." || topic == "/" || topic == "" {
			continue
		}
		if !seen[topic] {
			seen[topic] = true
			topics = append(topics, topic)
		}
	}

	rand.Shuffle(len(topics), func(i, j int) { topics[i], topics[j] = topics[j], topics[i] })
	return topics
}

func containsPrunedSegment(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if seg == "+tmp" {
			return true
		}
	}
	return false
}

// ListRecordFiles yields every *.avro file within topicDir whose path is
// not already in known, capped at maxFiles (0 = unbounded). Per the open
// question resolved in DESIGN.md, the cap is applied *after* filtering by
// known offsets, not before — so a bounded run is reproducible regardless
// of how many already-seen files precede the cutoff in listing order.
func ListRecordFiles(d Driver, topicDir string, known func(path string) bool, maxFiles int) iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		count := 0
		for entry := range d.List(topicDir) {
			if entry.IsDir || !strings.HasSuffix(entry.Path, ".avro") {
				continue
			}
			if known != nil && known(entry.Path) {
				continue
			}
			if maxFiles > 0 && count >= maxFiles {
				return
			}
			count++
			if !yield(entry) {
				return
			}
		}
	}
}
