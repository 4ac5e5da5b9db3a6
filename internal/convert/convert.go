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

// Package convert flattens a decoded Avro record into one output row,
// in either a tabular (CSV, schema-pinned) or hierarchical (JSON-Lines,
// schema-free) shape.
package convert

// Writer accepts one flattened record per call. WriteRecord returns false
// when the record's shape is incompatible with a writer that has already
// pinned a column set — the caller must then retry the same record against
// a differently-suffixed target, per spec.md §4.6.
type Writer interface {
	WriteRecord(record map[string]any) (bool, error)
	Flush() error
	Close() error
}

// Extensioner reports a converter's file extension, without any
// compression suffix (that is layered on separately by the File Cache).
type Extensioner interface {
	Extension() string
}
