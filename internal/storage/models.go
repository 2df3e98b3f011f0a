package storage

import (
	"fmt"
	"strings"
	"time"
)

// TimestampLayout is the canonical textual form of a record timestamp.
const TimestampLayout = "2006-01-02T15:04:05"

// Record is one persisted transaction-count observation.
// Timestamp carries a naive wall-clock time (location UTC, second precision).
type Record struct {
	Timestamp time.Time
	Status    string
	Count     int64
}

// HourWindowQuery selects same-day, same-hour history strictly before a reference instant.
type HourWindowQuery struct {
	Status    string
	HourStart time.Time
	Before    time.Time
	Limit     int
}

// HourOfDayQuery selects history sharing the hour of day across calendar days.
type HourOfDayQuery struct {
	Status string
	Hour   int
	Before time.Time
	Limit  int
}

// FormatTimestamp renders ts in the canonical layout.
func FormatTimestamp(ts time.Time) string {
	return ts.Format(TimestampLayout)
}

// HourStart truncates ts to the top of its calendar hour.
func HourStart(ts time.Time) time.Time {
	return time.Date(ts.Year(), ts.Month(), ts.Day(), ts.Hour(), 0, 0, 0, ts.Location())
}

// Naive drops the location of ts, keeping its wall clock, and truncates to seconds.
func Naive(ts time.Time) time.Time {
	return time.Date(ts.Year(), ts.Month(), ts.Day(), ts.Hour(), ts.Minute(), ts.Second(), 0, time.UTC)
}

func (q HourWindowQuery) end() time.Time {
	end := q.HourStart.Add(time.Hour)
	if q.Before.Before(end) {
		return q.Before
	}
	return end
}

var timestampLayouts = []string{
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05-0700",
	TimestampLayout,
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTimestamp accepts ISO-8601 date-times with a T or space separator,
// optional fractional seconds and an optional offset. The offset is dropped:
// the wall clock is kept as a naive timestamp, truncated to seconds.
func ParseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if len(value) > 10 && value[10] == ' ' {
		value = value[:10] + "T" + value[11:]
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return Naive(ts), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", value)
}
