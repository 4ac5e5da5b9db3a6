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

package filecache

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
)

func openFile(p string) (*os.File, error) {
	return os.Open(p)
}

func createTempNear(p string) (*os.File, error) {
	return os.CreateTemp(filepath.Dir(p), "restructure-compressed-*.tmp")
}

// Compression selects the optional wrapper layered around a converter's
// raw output stream.
type Compression int

const (
	NoCompression Compression = iota
	GzipCompression
	ZipCompression
)

// Extension returns the compression's file-extension suffix, appended
// after the converter's own extension per spec.md §4.5 step 4.
func (c Compression) Extension() string {
	switch c {
	case GzipCompression:
		return ".gz"
	case ZipCompression:
		return ".zip"
	default:
		return ""
	}
}

// openWriter wraps dst with this compression, if any. entryName is only
// used by ZipCompression (the single archive member's name).
func (c Compression) openWriter(dst io.Writer, entryName string) (io.WriteCloser, error) {
	switch c {
	case GzipCompression:
		// klauspost/compress/gzip is a drop-in for compress/gzip. An
		// existing target is decompressed into the plain temp file on Open
		// and the whole file is recompressed through this writer in one
		// pass on Close, so repeated open/write/close cycles on the same
		// target leave a single gzip member holding every row.
		return gzip.NewWriter(dst), nil
	case ZipCompression:
		zw := zip.NewWriter(dst)
		w, err := zw.Create(entryName)
		if err != nil {
			zw.Close()
			return nil, err
		}
		return &zipEntryWriter{entry: w, archive: zw}, nil
	default:
		return nopCloser{dst}, nil
	}
}

// decompressStream recovers the logical record bytes of an existing
// published target given its raw stream. Zip needs random access to find
// its central directory, so it is buffered into memory first; gzip and
// plain streams decode straight through.
func decompressStream(raw io.Reader, c Compression, entryName string) (io.ReadCloser, error) {
	switch c {
	case GzipCompression:
		return gzip.NewReader(raw)
	case ZipCompression:
		data, err := io.ReadAll(raw)
		if err != nil {
			return nil, err
		}
		zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
		if err != nil {
			return nil, err
		}
		stem := strings.TrimSuffix(entryName, ".zip")
		for _, f := range zr.File {
			if f.Name == stem {
				return f.Open()
			}
		}
		return io.NopCloser(bytes.NewReader(nil)), nil
	default:
		return io.NopCloser(raw), nil
	}
}

// newBytesReader adapts a byte slice to io.Reader for ReadCSVHeader.
func newBytesReader(data []byte) io.Reader {
	return bytes.NewReader(data)
}

// compressToTemp reads plainPath fully and writes a freshly-compressed
// copy to a new temp file alongside it, returning that file's path.
func compressToTemp(plainPath string, c Compression, entryName string) (string, error) {
	src, err := openFile(plainPath)
	if err != nil {
		return "", err
	}
	defer src.Close()

	dst, err := createTempNear(plainPath)
	if err != nil {
		return "", err
	}

	stem := strings.TrimSuffix(entryName, c.Extension())
	cw, err := c.openWriter(dst, stem)
	if err != nil {
		dst.Close()
		os.Remove(dst.Name())
		return "", err
	}

	if _, err := io.Copy(cw, src); err != nil {
		cw.Close()
		dst.Close()
		os.Remove(dst.Name())
		return "", err
	}
	if err := cw.Close(); err != nil {
		dst.Close()
		os.Remove(dst.Name())
		return "", err
	}
	if err := dst.Close(); err != nil {
		os.Remove(dst.Name())
		return "", err
	}
	return dst.Name(), nil
}

// zipEntryWriter closes the archive (finalizing its central directory)
// when the logical writer is closed.
type zipEntryWriter struct {
	entry   io.Writer
	archive *zip.Writer
}

func (z *zipEntryWriter) Write(p []byte) (int, error) { return z.entry.Write(p) }
func (z *zipEntryWriter) Close() error                { return z.archive.Close() }

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
