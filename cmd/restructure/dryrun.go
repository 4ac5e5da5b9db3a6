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
	"github.com/launix-de/restructure/internal/objectstore"
)

// dryRunDriver wraps a target Driver and turns Store into a no-op, so a
// --dry-run run exercises the full discovery-and-conversion pipeline
// (including staging output to the File Cache's local temp files) without
// ever publishing the result, per SPEC_FULL.md's supplemental --dry-run
// feature. Everything else (reads, directory listing) delegates normally
// since dry-run only concerns the final publish step.
type dryRunDriver struct {
	objectstore.Driver
}

func (d dryRunDriver) Store(local, remote string) error {
	return nil
}
