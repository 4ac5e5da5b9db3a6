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

// Package filecache wraps one open output writer for one target path,
// staged through a local temp file and published atomically on close —
// the same temp-file-then-publish/rename lifecycle as the teacher's
// storage/persistence-files.go WriteSchema, generalized from a single
// schema.json to an arbitrary output target behind an objectstore.Driver.
package filecache

import (
	"io"
	"os"
	"path"
	"time"

	"github.com/launix-de/restructure/internal/convert"
	"github.com/launix-de/restructure/internal/objectstore"
)

// Cache is one C7 File Cache entry: a converter writing to a temp file
// destined for exactly one target path.
type Cache struct {
	target      string
	category    string
	compression Compression
	driver      objectstore.Driver
	dedup       *dedupFilter

	tempPath string
	tempFile *os.File
	writer   convert.Writer

	lastUse time.Time
	errored bool
}

// Options configure Cache construction.
type Options struct {
	TempDir      string
	Target       string
	Category     string
	Format       string // "csv" or "json"
	Compression  Compression
	Driver       objectstore.Driver
	DedupFields  []string // nil disables dedup
}

// Open allocates a temp file for target, recovers any existing published
// content (decompressing if necessary) so the converter can see a prior
// pinned header, and opens the converter with writeHeader set according to
// spec.md §4.7.
func Open(opts Options) (*Cache, error) {
	tmp, err := os.CreateTemp(opts.TempDir, "restructure-*.tmp")
	if err != nil {
		return nil, err
	}

	c := &Cache{
		target:      opts.Target,
		category:    opts.Category,
		compression: opts.Compression,
		driver:      opts.Driver,
		tempPath:    tmp.Name(),
		tempFile:    tmp,
		lastUse:     time.Now(),
	}
	if opts.DedupFields != nil {
		c.dedup = newDedupFilter(opts.DedupFields)
	}

	existingHeader, _, err := c.recoverExisting(opts)
	if err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, err
	}

	switch opts.Format {
	case "json":
		c.writer = convert.NewJSONWriter(c.tempFile)
	default:
		// existingHeader nil => the first WriteRecord call pins the
		// column set and writes the header lazily; non-nil => the pin
		// is read from the recovered file and no header is re-emitted.
		c.writer = convert.NewCSVWriter(c.tempFile, existingHeader)
	}

	return c, nil
}

// recoverExisting copies a previously-published target's bytes into the
// temp file (decompressing first) so a CSV writer can read back its pinned
// header and appends continue the same file. Returns the existing header
// columns (nil if the target did not exist or the format is not CSV with
// recoverable content) and whether a header still needs to be written.
func (c *Cache) recoverExisting(opts Options) ([]string, bool, error) {
	size, err := opts.Driver.Stat(opts.Target)
	if err == objectstore.ErrNotExist {
		return nil, true, nil
	}
	if err != nil {
		// A transient Stat failure (e.g. a flaky S3/Azure/HDFS call) is not
		// "the target doesn't exist": treating it as such would make the
		// writer pin a fresh header over a target that may already have
		// one, corrupting the append-path invariant. Propagate instead.
		return nil, true, err
	}
	if size == 0 {
		return nil, true, nil
	}

	src, err := opts.Driver.NewReader(opts.Target)
	if err != nil {
		return nil, true, err
	}
	defer src.Close()

	decompressed, err := decompressStream(src, opts.Compression, path.Base(opts.Target))
	if err != nil {
		return nil, true, err
	}
	defer decompressed.Close()

	data, err := io.ReadAll(decompressed)
	if err != nil {
		return nil, true, err
	}
	if len(data) == 0 {
		return nil, true, nil
	}

	if _, err := c.tempFile.Write(data); err != nil {
		return nil, true, err
	}

	if opts.Format == "json" {
		return nil, false, nil
	}

	header, err := convert.ReadCSVHeader(newBytesReader(data))
	if err != nil {
		return nil, false, nil
	}
	return header, false, nil
}

// WriteRecord flattens and writes one record, per spec.md §4.7: on
// success it advances lastUse. The caller (the Worker) owns the actual
// Ledger and is the one holding the record's (topic, partition, offset);
// it commits that into the Ledger only once WriteRecord reports ok, so a
// failed or rejected write never reaches the Ledger. The per-(category,
// timeBin) bins tally is likewise the caller's responsibility, which
// already knows both from the Path Factory's Organization.
func (c *Cache) WriteRecord(record map[string]any) (ok bool, err error) {
	if c.dedup != nil {
		flat := convert.Flatten(record)
		if c.dedup.Seen(flat) {
			c.lastUse = time.Now()
			return true, nil
		}
	}

	ok, err = c.writer.WriteRecord(record)
	if err != nil {
		c.errored = true
		return false, err
	}
	if !ok {
		return false, nil
	}

	c.lastUse = time.Now()
	return true, nil
}

// LastUse reports when this cache was last written to, for C8's
// (lastUse, path) eviction ordering.
func (c *Cache) LastUse() time.Time { return c.lastUse }

// Target is this cache's destination path, the tiebreaker in C8's
// eviction ordering.
func (c *Cache) Target() string { return c.target }

// Flush flushes the converter. The Ledger itself lives on the Worker, not
// the Cache (see WriteRecord) — persisting it via the Accountant is the
// caller's responsibility, matching spec.md §4.7's separation of "flush
// converter" from "persist Ledger via Accountant".
func (c *Cache) Flush() error {
	if c.writer == nil {
		return nil
	}
	return c.writer.Flush()
}

// Close flushes, closes the local streams, then publishes: an errored
// cache deletes its temp file instead of publishing a partial/corrupt
// target, matching spec.md §7's "mark cache errored (no publish on
// close)" policy. The temp file always holds plain (uncompressed) content;
// compression, if any, is applied once here rather than incrementally —
// see DESIGN.md for why that trades the original's member-concatenation
// trick for a simpler single-pass recompress with an identical decoded
// result.
func (c *Cache) Close() error {
	var flushErr error
	if c.writer != nil {
		flushErr = c.writer.Close()
	}
	if closeErr := c.tempFile.Close(); closeErr != nil && flushErr == nil {
		flushErr = closeErr
	}

	if c.errored || flushErr != nil {
		os.Remove(c.tempPath)
		return flushErr
	}

	publishPath := c.tempPath
	if c.compression != NoCompression {
		compressedPath, err := compressToTemp(c.tempPath, c.compression, path.Base(c.target))
		if err != nil {
			os.Remove(c.tempPath)
			return err
		}
		os.Remove(c.tempPath)
		publishPath = compressedPath
	}

	return c.driver.Store(publishPath, c.target)
}
