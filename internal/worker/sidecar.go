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

package worker

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path"
	"sort"
	"strconv"
	"time"

	"github.com/launix-de/restructure/internal/objectstore"
)

// binKey identifies one {topic, category, timeBin} bucket of the bins
// tally, per spec.md §4.10's "Sink side-effects".
type binKey struct {
	Topic    string
	Category string
	TimeBin  string
}

// sidecar batches the bins.csv tally the same way the Accountant batches
// offset commits: accumulated in memory, flushed out on the worker's own
// batched-flush cadence, never written per record. schema.json is written
// straight away, once per directory, on the first write into it.
type sidecar struct {
	driver      objectstore.Driver
	binsPath    string
	schemaDirs  map[string]bool
	bins        map[binKey]int64
}

func newSidecar(driver objectstore.Driver, outputRoot string) *sidecar {
	return &sidecar{
		driver:     driver,
		binsPath:   path.Join(outputRoot, "bins.csv"),
		schemaDirs: make(map[string]bool),
		bins:       make(map[binKey]int64),
	}
}

// RecordBin increments the tally for one successfully written record.
func (s *sidecar) RecordBin(topic, category, timeBin string) {
	s.bins[binKey{topic, category, timeBin}]++
}

// EnsureSchema emits a schema.json alongside dir (a project/user/topic
// relative path) the first time this worker writes into it, per spec.md
// §4.10's "Emit schema.json alongside each <project>/<user>/<topic>/ on
// first successful write".
func (s *sidecar) EnsureSchema(dir, format, compression string) error {
	if s.schemaDirs[dir] {
		return nil
	}
	s.schemaDirs[dir] = true

	doc := schemaDoc{
		Topic:       path.Base(dir),
		Format:      format,
		Compression: compression,
		GeneratedAt: time.Now().UTC(),
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp("", "restructure-schema-*.json")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	target := path.Join(dir, "schema.json")
	if err := s.driver.MkdirAll(dir); err != nil {
		return err
	}
	return s.driver.Store(tmp.Name(), target)
}

type schemaDoc struct {
	Topic       string    `json:"topic"`
	Format      string    `json:"format"`
	Compression string    `json:"compression"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// Flush (re-)publishes bins.csv as the union of any previously published
// tally plus everything accumulated since the last flush, then clears the
// in-memory accumulator.
func (s *sidecar) Flush() error {
	if len(s.bins) == 0 {
		return nil
	}

	existing, _ := s.readExisting()
	for k, v := range s.bins {
		existing[k] += v
	}

	keys := make([]binKey, 0, len(existing))
	for k := range existing {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Topic != keys[j].Topic {
			return keys[i].Topic < keys[j].Topic
		}
		if keys[i].Category != keys[j].Category {
			return keys[i].Category < keys[j].Category
		}
		return keys[i].TimeBin < keys[j].TimeBin
	})

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Write([]string{"topic", "category", "timeBin", "count"})
	for _, k := range keys {
		w.Write([]string{k.Topic, k.Category, k.TimeBin, strconv.FormatInt(existing[k], 10)})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}

	tmp, err := os.CreateTemp("", "restructure-bins-*.csv")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := s.driver.Store(tmp.Name(), s.binsPath); err != nil {
		return err
	}
	s.bins = make(map[binKey]int64)
	return nil
}

func (s *sidecar) readExisting() (map[binKey]int64, error) {
	out := make(map[binKey]int64)
	r, err := s.driver.NewReader(s.binsPath)
	if err != nil {
		return out, nil
	}
	defer r.Close()

	cr := csv.NewReader(r)
	rows, err := cr.ReadAll()
	if err != nil || len(rows) == 0 {
		return out, nil
	}
	for _, row := range rows[1:] {
		if len(row) != 4 {
			continue
		}
		count, err := strconv.ParseInt(row[3], 10, 64)
		if err != nil {
			continue
		}
		out[binKey{row[0], row[1], row[2]}] = count
	}
	return out, nil
}
