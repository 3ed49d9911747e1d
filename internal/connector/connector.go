// Package connector implements the external feed connectors that
// produce normalized event candidates: USGS earthquakes, NASA EONET,
// GDELT article search, configurable RSS/Atom sources, and optional
// key-gated connectors.
package connector

import (
	"context"
	"time"

	"github.com/jofongang/World-Monitor/internal/model"
)

// Result is the outcome of one connector run. Errors never escape a
// connector; every failure is surfaced here with zero events.
type Result struct {
	Name       string
	Events     []model.Event
	Err        string // empty means success
	DurationMs int
}

// OK reports whether the run completed without error.
func (r Result) OK() bool {
	return r.Err == ""
}

// Connector is one external feed family. Implementations must not
// panic and must not return partial event lists alongside an error.
type Connector interface {
	// Name identifies the connector in status rows and logs.
	Name() string
	// Enabled reports whether the connector can run at all (e.g. has
	// credentials). Disabled connectors are skipped with a logged
	// status rather than fetched.
	Enabled() bool
	// Fetch downloads and normalizes events no older than sinceHours.
	Fetch(ctx context.Context, sinceHours int) Result
}

func errorResult(name string, started time.Time, err error) Result {
	return Result{
		Name:       name,
		Events:     []model.Event{},
		Err:        err.Error(),
		DurationMs: int(time.Since(started).Milliseconds()),
	}
}

func okResult(name string, started time.Time, events []model.Event) Result {
	if events == nil {
		events = []model.Event{}
	}
	return Result{
		Name:       name,
		Events:     events,
		DurationMs: int(time.Since(started).Milliseconds()),
	}
}

func cutoffTime(now time.Time, sinceHours int) time.Time {
	if sinceHours < 1 {
		sinceHours = 1
	}
	return now.UTC().Add(-time.Duration(sinceHours) * time.Hour)
}

// withinWindow reports whether a canonical timestamp is not older than
// the cutoff. The boundary instant itself is included.
func withinWindow(occurredAt string, cutoff time.Time) bool {
	return !model.ParseTime(occurredAt).Before(cutoff)
}
