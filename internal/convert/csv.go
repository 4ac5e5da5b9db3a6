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

package convert

import (
	"bufio"
	"encoding/csv"
	"io"
	"strings"

	"github.com/zeebo/xxh3"
)

// CSVWriter flattens records and writes them as rows of a pinned-header
// CSV file, generalizing the teacher's storage/csv.go header-driven column
// assumption from "table schema" to "pinned header fingerprint".
type CSVWriter struct {
	w        *csv.Writer
	buf      *bufio.Writer
	columns  []string
	pinned   bool
	fp       uint64
	closeErr error
}

// NewCSVWriter wraps w. If existingHeader is non-nil, the column pin is
// read from it (an append to an existing file) rather than from the first
// written record.
func NewCSVWriter(w io.Writer, existingHeader []string) *CSVWriter {
	buf := bufio.NewWriter(w)
	c := &CSVWriter{w: csv.NewWriter(buf), buf: buf}
	if existingHeader != nil {
		c.pin(existingHeader)
	}
	return c
}

func (c *CSVWriter) pin(columns []string) {
	c.columns = columns
	c.fp = fingerprint(columns)
	c.pinned = true
}

// WriteHeader writes the pinned header row. Call once, only when the
// target file did not previously exist or was empty (writeHeader = true
// in spec.md §4.7 terms).
func (c *CSVWriter) WriteHeader() error {
	return c.w.Write(c.columns)
}

// WriteRecord flattens record, pins the column set on first use, and
// writes a row. It returns false without writing anything if a pin
// already exists and this record's column set does not match exactly.
func (c *CSVWriter) WriteRecord(record map[string]any) (bool, error) {
	flat := Flatten(record)
	columns := sortedColumns(flat)

	if !c.pinned {
		c.pin(columns)
		if err := c.WriteHeader(); err != nil {
			return false, err
		}
	} else if fingerprint(columns) != c.fp {
		return false, nil
	}

	row := make([]string, len(c.columns))
	for i, col := range c.columns {
		row[i] = flat[col]
	}
	if err := c.w.Write(row); err != nil {
		return false, err
	}
	return true, nil
}

func (c *CSVWriter) Flush() error {
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		return err
	}
	return c.buf.Flush()
}

func (c *CSVWriter) Close() error {
	if err := c.Flush(); err != nil {
		c.closeErr = err
	}
	return c.closeErr
}

func (c *CSVWriter) Extension() string { return ".csv" }

// fingerprint hashes a sorted column list with xxh3 so comparing an
// incoming record's shape against the pinned header is a single uint64
// comparison instead of a slice-equality walk.
func fingerprint(columns []string) uint64 {
	return xxh3.HashString(strings.Join(columns, "\x00"))
}

// ReadCSVHeader reads the first line of an existing CSV file and splits it
// into column names, for the "append preserves the existing pin" path of
// spec.md §4.7.
func ReadCSVHeader(r io.Reader) ([]string, error) {
	cr := csv.NewReader(r)
	return cr.Read()
}
