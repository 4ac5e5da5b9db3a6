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

package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/launix-de/restructure/internal/offsetset"
	"github.com/launix-de/restructure/internal/offsetstore"
)

// newMigrateOffsetsCmd builds `restructure migrate-offsets`: a one-time
// conversion of the legacy flat offsets.csv (spec.md §9's "Persisted state
// compatibility" note — the engine explicitly does not auto-migrate this)
// into the per-topic files the File-per-topic backend expects.
func newMigrateOffsetsCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate-offsets <legacy-offsets.csv>",
		Short: "Migrate a legacy flat offsets.csv into per-topic offset files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.outputDirectory == "" {
				return fmt.Errorf("restructure: -o/--output-directory is required")
			}
			return migrateOffsets(args[0], f.outputDirectory)
		},
	}
}

func migrateOffsets(legacyPath, outputDir string) error {
	bySet, err := readLegacyOffsets(legacyPath)
	if err != nil {
		return err
	}

	dir := filepath.Join(outputDir, "offsets")
	store := offsetstore.NewFileStore(dir)
	for topic, set := range bySet {
		if err := store.Write(topic, set); err != nil {
			return fmt.Errorf("restructure: writing migrated offsets for topic %q: %w", topic, err)
		}
	}
	fmt.Printf("migrated %d topic(s) from %s into %s\n", len(bySet), legacyPath, dir)
	return nil
}

// readLegacyOffsets parses the legacy flat file's
// `offsetFrom,offsetTo,topic,partition` rows (spec.md §4.2/§9) into one
// offsetset.Set per topic, tolerating and skipping a leading header row.
func readLegacyOffsets(path string) (map[string]*offsetset.Set, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("restructure: opening legacy offsets file: %w", err)
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1

	result := make(map[string]*offsetset.Set)
	first := true
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("restructure: reading legacy offsets file: %w", err)
		}
		if len(row) != 4 {
			continue
		}
		from, errFrom := strconv.ParseInt(row[0], 10, 64)
		to, errTo := strconv.ParseInt(row[1], 10, 64)
		if first {
			first = false
			if errFrom != nil || errTo != nil {
				continue // header row
			}
		}
		if errFrom != nil || errTo != nil || from > to {
			continue
		}
		topic := row[2]
		partition, err := strconv.Atoi(row[3])
		if err != nil {
			continue
		}

		set, ok := result[topic]
		if !ok {
			set = offsetset.New()
			result[topic] = set
		}
		tp := offsetset.TopicPartition{Topic: topic, Partition: partition}
		set.Add(tp, offsetset.OffsetRange{From: from, To: to, LastProcessed: time.Now()})
	}
	return result, nil
}
