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

// Package lock implements the C3 contract: best-effort, advisory mutual
// exclusion per topic across processes sharing a backing store. Acquire is
// non-blocking — it returns (nil, nil) immediately if the topic is already
// held elsewhere, never waits. Reentrance is not required: two sequential
// acquire/release cycles from the same process both succeed.
package lock

// Handle is a scoped lock; Release is idempotent and must be safe to call
// from a defer in all code paths, including failure.
type Handle interface {
	Release() error
}

// Manager acquires per-topic locks. AcquireTopicLock returns a nil Handle
// (and nil error) when the topic is already held — callers skip the topic
// rather than treating this as an error.
type Manager interface {
	AcquireTopicLock(topic string) (Handle, error)
	Close() error
}
