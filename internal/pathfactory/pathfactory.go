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

// Package pathfactory maps a decoded (key, value) record pair plus a retry
// attempt number to the relative output path, dedup category, and record
// instant used by the rest of the pipeline.
package pathfactory

import (
	"math"
	"regexp"
	"strconv"
	"time"
)

// TimeBinLayout selects how a non-null record instant is formatted into a
// directory/file bucket name.
type TimeBinLayout int

const (
	// Hourly buckets records into YYYYMMDD_HH00 windows. Default.
	Hourly TimeBinLayout = iota
	// Monthly buckets records into YYYYMM windows.
	Monthly
)

const (
	unknownDateBin   = "unknown_date"
	unknownProject   = "unknown-project"
	unknownUser      = "unknown-user"
	unknownSource    = "unknown-source"
)

var invalidRun = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// Organization is the result of routing one record: the relative path it
// belongs under, the dedup/bin-tally category, and the record's instant
// (nil when neither the value's "time" nor the key's "start" field could be
// resolved).
type Organization struct {
	RelativePath string
	Category     string
	Time         *time.Time
	TimeBin      string
}

// Factory computes output routing for one topic's records.
type Factory struct {
	Layout TimeBinLayout
}

// New builds a Factory with the given time-bin layout.
func New(layout TimeBinLayout) *Factory {
	return &Factory{Layout: layout}
}

// Route implements spec.md §4.5: given the topic, the record's decoded key
// and value (as generic Avro maps), a retry attempt number, and the
// converter's file extension (including any compression suffix), it returns
// the relative path the record belongs under plus routing metadata.
func (f *Factory) Route(topic string, key, value map[string]any, attempt int, ext string) Organization {
	instant := f.recordInstant(key, value)
	timeBin := f.timeBin(instant)

	projectID := sanitizeOrDefault(stringField(key, "projectId"), unknownProject)
	userID := sanitizeOrDefault(stringField(key, "userId"), unknownUser)
	category := sanitizeOrDefault(firstNonEmpty(stringField(value, "sourceId"), stringField(key, "sourceId")), unknownSource)

	suffix := ""
	if attempt > 0 {
		suffix = "_" + strconv.Itoa(attempt)
	}

	relative := projectID + "/" + userID + "/" + topic + "/" + timeBin + suffix + ext

	return Organization{
		RelativePath: relative,
		Category:     category,
		Time:         instant,
		TimeBin:      timeBin,
	}
}

// recordInstant resolves the record's instant per spec.md §4.5 step 1: the
// value's floating-point "time" field (seconds since epoch) takes priority;
// failing that, the key's integer "start" field (millis since epoch); else
// nil.
func (f *Factory) recordInstant(key, value map[string]any) *time.Time {
	if seconds, ok := floatField(value, "time"); ok {
		millis := int64(math.Round(seconds * 1000))
		t := time.UnixMilli(millis).UTC()
		return &t
	}
	if millis, ok := intField(key, "start"); ok {
		t := time.UnixMilli(millis).UTC()
		return &t
	}
	return nil
}

// timeBin formats instant per spec.md §4.5 step 2, or returns the
// unknown-date sentinel bin when instant is nil.
func (f *Factory) timeBin(instant *time.Time) string {
	if instant == nil {
		return unknownDateBin
	}
	switch f.Layout {
	case Monthly:
		return instant.Format("200601")
	default:
		return hourlyBin(*instant)
	}
}

// hourlyBin renders YYYYMMDD_HH00 — the minute/second fields are always
// zeroed regardless of the instant's actual minute, per spec.md's
// fixed-width hourly bucket.
func hourlyBin(t time.Time) string {
	return t.Format("20060102") + "_" + t.Format("15") + "00"
}

func sanitizeOrDefault(raw, fallback string) string {
	sanitized := invalidRun.ReplaceAllString(raw, "")
	if sanitized == "" {
		return fallback
	}
	return sanitized
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func stringField(m map[string]any, name string) string {
	if m == nil {
		return ""
	}
	v, ok := m[name]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func floatField(m map[string]any, name string) (float64, bool) {
	if m == nil {
		return 0, false
	}
	v, ok := m[name]
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	}
	return 0, false
}

func intField(m map[string]any, name string) (int64, bool) {
	if m == nil {
		return 0, false
	}
	v, ok := m[name]
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	}
	return 0, false
}
