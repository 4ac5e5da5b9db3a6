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

import (
	"encoding/csv"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/ulikunitz/xz"

	"github.com/launix-de/restructure/internal/offsetset"
)

// FileStore persists one CSV per topic under dir/<topic>.csv. Loads are fed
// through offsetset so overlapping or out-of-order rows self-heal into
// canonical ranges rather than being trusted verbatim.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

func (f *FileStore) csvPath(topic string) string {
	return filepath.Join(f.dir, topic+".csv")
}

func (f *FileStore) bakPath(topic string) string {
	return filepath.Join(f.dir, topic+".csv.xz.bak")
}

func (f *FileStore) Read(topic string) (*offsetset.Set, error) {
	file, err := os.Open(f.csvPath(topic))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = 4
	set := offsetset.New()
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		partition, err := strconv.Atoi(row[1])
		if err != nil {
			continue // corrupt row: skip, self-heals to whatever else is on disk
		}
		from, err1 := strconv.ParseInt(row[2], 10, 64)
		to, err2 := strconv.ParseInt(row[3], 10, 64)
		if err1 != nil || err2 != nil || from > to {
			continue
		}
		tp := offsetset.TopicPartition{Topic: row[0], Partition: partition}
		set.Add(tp, offsetset.OffsetRange{From: from, To: to, LastProcessed: time.Now()})
	}
	return set, nil
}

// Write preserves the previous file as an xz-compressed backup before
// overwriting, following the teacher's FileStorage.WriteSchema rename
// idiom (storage/persistence-files.go) — a crash-safety breadcrumb, not a
// requirement of correctness.
func (f *FileStore) Write(topic string, set *offsetset.Set) error {
	target := f.csvPath(topic)
	if err := os.MkdirAll(filepath.Dir(target), 0750); err != nil {
		return err
	}

	if err := f.backup(target, topic); err != nil {
		return err
	}

	tmp := target + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return err
	}

	w := csv.NewWriter(file)
	for _, tp := range set.Partitions() {
		for _, r := range set.Ranges(tp) {
			row := []string{
				tp.Topic,
				strconv.Itoa(tp.Partition),
				strconv.FormatInt(r.From, 10),
				strconv.FormatInt(r.To, 10),
			}
			if err := w.Write(row); err != nil {
				file.Close()
				os.Remove(tmp)
				return err
			}
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		file.Close()
		os.Remove(tmp)
		return err
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, target)
}

func (f *FileStore) backup(target, topic string) error {
	in, err := os.Open(target)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(f.bakPath(topic))
	if err != nil {
		return err
	}
	defer out.Close()

	xw, err := xz.NewWriter(out)
	if err != nil {
		return err
	}
	if _, err := io.Copy(xw, in); err != nil {
		xw.Close()
		return err
	}
	return xw.Close()
}
