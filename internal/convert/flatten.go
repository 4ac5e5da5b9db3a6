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
	"fmt"
	"sort"
	"strconv"
)

// Flatten turns a decoded Avro record (nested maps, slices, and scalars, as
// produced by an Avro decoder once unions have resolved to their active
// branch) into a single-level column-name → cell-text map, per spec.md
// §4.6: fields dot-join (a.b.c), array elements index (a.0, a.1), map
// entries key (a.k), and bytes/fixed render as raw strings.
func Flatten(record map[string]any) map[string]string {
	out := make(map[string]string)
	flattenInto(out, "", record)
	return out
}

func flattenInto(out map[string]string, prefix string, v any) {
	switch val := v.(type) {
	case map[string]any:
		for k, child := range val {
			flattenInto(out, joinPath(prefix, k), child)
		}
	case []any:
		for i, child := range val {
			flattenInto(out, joinPath(prefix, strconv.Itoa(i)), child)
		}
	case []byte:
		out[prefix] = string(val)
	case nil:
		out[prefix] = ""
	default:
		out[prefix] = scalarToString(val)
	}
}

func joinPath(prefix, segment string) string {
	if prefix == "" {
		return segment
	}
	return prefix + "." + segment
}

func scalarToString(v any) string {
	switch n := v.(type) {
	case string:
		return n
	case bool:
		if n {
			return "true"
		}
		return "false"
	case float32:
		return strconv.FormatFloat(float64(n), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(n, 'g', -1, 64)
	case int:
		return strconv.Itoa(n)
	case int32:
		return strconv.FormatInt(int64(n), 10)
	case int64:
		return strconv.FormatInt(n, 10)
	default:
		return fmt.Sprintf("%v", n)
	}
}

// sortedColumns returns the keys of a flattened row's column set sorted
// for stable fingerprinting and header rendering.
func sortedColumns(flat map[string]string) []string {
	cols := make([]string, 0, len(flat))
	for k := range flat {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}
