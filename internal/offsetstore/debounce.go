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

package offsetstore

import "time"

// debounceTimer is a thin wrapper around time.AfterFunc: it fires callback
// once after window unless stopped first. It carries no state of its own
// about what to flush — that is topicWriter.run's job.
type debounceTimer struct {
	t *time.Timer
}

func newDebounceTimer(window time.Duration, callback func()) *debounceTimer {
	return &debounceTimer{t: time.AfterFunc(window, callback)}
}

func (d *debounceTimer) stop() {
	d.t.Stop()
}
