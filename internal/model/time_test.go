package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatTimeTruncatesToSecondUTC(t *testing.T) {
	in := time.Date(2025, 6, 2, 14, 30, 45, 999_000_000, time.FixedZone("CEST", 2*3600))
	assert.Equal(t, "2025-06-02T12:30:45Z", FormatTime(in))
}

func TestParseTimeAcceptsCommonLayouts(t *testing.T) {
	cases := map[string]string{
		"2025-06-02T12:30:45Z":      "2025-06-02T12:30:45Z",
		"2025-06-02T14:30:45+02:00": "2025-06-02T12:30:45Z",
		"2025-06-02T12:30:45":       "2025-06-02T12:30:45Z",
		"2025-06-02":                "2025-06-02T00:00:00Z",
	}
	for input, want := range cases {
		assert.Equal(t, want, FormatTime(ParseTime(input)), "input %q", input)
	}
}

func TestParseTimeFallsBackToNow(t *testing.T) {
	before := time.Now().UTC().Add(-time.Minute)
	parsed := ParseTime("not a timestamp")
	assert.True(t, parsed.After(before))
}

func TestCanonicalTimestampsSortChronologically(t *testing.T) {
	earlier := FormatTime(time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC))
	later := FormatTime(time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC))
	assert.Less(t, earlier, later)
}

func TestHourBucket(t *testing.T) {
	assert.Equal(t, "2025-06-02T12", HourBucket("2025-06-02T12:59:59Z"))
	assert.Equal(t, "2025-06-02T12", HourBucket("2025-06-02T14:15:00+02:00"))
}

func TestNewEventDefaults(t *testing.T) {
	event := NewEvent()
	assert.NotEmpty(t, event.ID)
	assert.Equal(t, CategoryOther, event.Category)
	assert.Equal(t, GlobalLabel, event.Country)
	assert.Equal(t, GlobalLabel, event.Region)
	assert.Equal(t, 30, event.Severity)
	assert.Equal(t, 70, event.Confidence)
	assert.NotEmpty(t, event.OccurredAt)
}
