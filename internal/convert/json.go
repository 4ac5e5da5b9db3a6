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
	"io"

	"github.com/goccy/go-json"
)

// JSONWriter writes one JSON document per record, hierarchy preserved
// verbatim — no schema pinning, so WriteRecord never rejects a shape.
// Uses goccy/go-json in place of encoding/json for the hot per-record
// marshal path, the same substitution jpl-au-folio makes for its header
// and record encoding.
type JSONWriter struct {
	buf *bufio.Writer
}

// NewJSONWriter wraps w.
func NewJSONWriter(w io.Writer) *JSONWriter {
	return &JSONWriter{buf: bufio.NewWriter(w)}
}

func (j *JSONWriter) WriteRecord(record map[string]any) (bool, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return false, err
	}
	if _, err := j.buf.Write(data); err != nil {
		return false, err
	}
	if err := j.buf.WriteByte('\n'); err != nil {
		return false, err
	}
	return true, nil
}

func (j *JSONWriter) Flush() error {
	return j.buf.Flush()
}

func (j *JSONWriter) Close() error {
	return j.Flush()
}

func (j *JSONWriter) Extension() string { return ".jsonl" }
