package model

import (
	"strings"
	"time"
)

// TimeLayout is the canonical timestamp format stored and served by
// the system: UTC, second precision, trailing Z. Lexicographic order
// of canonical timestamps equals chronological order.
const TimeLayout = "2006-01-02T15:04:05Z"

// UTCNow returns the current time in canonical form.
func UTCNow() string {
	return FormatTime(time.Now())
}

// FormatTime renders t in canonical form.
func FormatTime(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(TimeLayout)
}

// ParseTime parses a canonical or near-canonical timestamp. Unparseable
// input yields the current time rather than an error so that a single
// malformed upstream date never drops an event.
func ParseTime(value string) time.Time {
	text := strings.TrimSpace(value)
	if text == "" {
		return time.Now().UTC()
	}
	for _, layout := range []string{TimeLayout, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if parsed, err := time.Parse(layout, text); err == nil {
			return parsed.UTC()
		}
	}
	return time.Now().UTC()
}

// HourBucket truncates a timestamp to its UTC hour ("2006-01-02T15").
func HourBucket(value string) string {
	return FormatTime(ParseTime(value))[:13]
}
