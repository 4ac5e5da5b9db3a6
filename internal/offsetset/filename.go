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

package offsetset

import (
	"errors"
	"path"
	"strconv"
	"strings"
)

// ErrBadFilename is returned by ParseFilename when name does not match
// topic+partition+offsetFrom+offsetTo.ext.
var ErrBadFilename = errors.New("offsetset: filename does not match topic+partition+from+to.ext")

// ParseFilename extracts the TopicPartition and OffsetRange encoded into a
// record container file name: topic+partition+offsetFrom+offsetTo.ext
func ParseFilename(name string) (TopicPartition, OffsetRange, string, error) {
	base := path.Base(name)
	ext := path.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	if len(ext) > 0 {
		ext = ext[1:] // drop leading dot
	}

	parts := strings.Split(stem, "+")
	if len(parts) != 4 {
		return TopicPartition{}, OffsetRange{}, "", ErrBadFilename
	}
	topic := parts[0]
	if topic == "" {
		return TopicPartition{}, OffsetRange{}, "", ErrBadFilename
	}
	partition, err := strconv.Atoi(parts[1])
	if err != nil || partition < 0 {
		return TopicPartition{}, OffsetRange{}, "", ErrBadFilename
	}
	from, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return TopicPartition{}, OffsetRange{}, "", ErrBadFilename
	}
	to, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil {
		return TopicPartition{}, OffsetRange{}, "", ErrBadFilename
	}
	if from > to {
		return TopicPartition{}, OffsetRange{}, "", ErrBadFilename
	}

	return TopicPartition{Topic: topic, Partition: partition}, OffsetRange{From: from, To: to}, ext, nil
}
