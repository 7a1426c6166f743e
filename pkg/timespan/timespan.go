// Package timespan provides the query time window type used by
// notebooklet runs and data providers.
package timespan

import (
	"fmt"
	"time"

	"github.com/araddon/dateparse"
)

// TimeSpan is a closed interval over which queries are executed.
type TimeSpan struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// New creates a TimeSpan from explicit start and end times.
// End defaults to now (UTC) when zero. Start must not be after End.
func New(start, end time.Time) (TimeSpan, error) {
	if end.IsZero() {
		end = time.Now().UTC()
	}

	if start.IsZero() {
		return TimeSpan{}, fmt.Errorf("timespan start must be specified")
	}

	if start.After(end) {
		return TimeSpan{}, fmt.Errorf("timespan start %s is after end %s", start, end)
	}

	return TimeSpan{Start: start.UTC(), End: end.UTC()}, nil
}

// FromPeriod creates a TimeSpan ending at `end` (now when zero) and
// starting `period` before it.
func FromPeriod(period time.Duration, end time.Time) (TimeSpan, error) {
	if period <= 0 {
		return TimeSpan{}, fmt.Errorf("timespan period must be positive")
	}

	if end.IsZero() {
		end = time.Now().UTC()
	}

	return TimeSpan{Start: end.Add(-period).UTC(), End: end.UTC()}, nil
}

// Parse builds a TimeSpan from datetime-like strings. Formats are
// detected permissively ("2024-01-02", "Jan 2 2024 15:04", RFC3339...).
// An empty end string means now.
func Parse(start, end string) (TimeSpan, error) {
	if start == "" {
		return TimeSpan{}, fmt.Errorf("timespan start must be specified")
	}

	startTime, err := dateparse.ParseAny(start)
	if err != nil {
		return TimeSpan{}, fmt.Errorf("parsing timespan start %q: %w", start, err)
	}

	endTime := time.Now().UTC()

	if end != "" {
		endTime, err = dateparse.ParseAny(end)
		if err != nil {
			return TimeSpan{}, fmt.Errorf("parsing timespan end %q: %w", end, err)
		}
	}

	return New(startTime, endTime)
}

// IsZero reports whether the span is unset.
func (ts TimeSpan) IsZero() bool {
	return ts.Start.IsZero() && ts.End.IsZero()
}

// Duration returns the length of the span.
func (ts TimeSpan) Duration() time.Duration {
	return ts.End.Sub(ts.Start)
}

// Contains reports whether t falls within the span (inclusive).
func (ts TimeSpan) Contains(t time.Time) bool {
	return !t.Before(ts.Start) && !t.After(ts.End)
}

// String renders the span in RFC3339.
func (ts TimeSpan) String() string {
	return fmt.Sprintf("%s - %s", ts.Start.Format(time.RFC3339), ts.End.Format(time.RFC3339))
}
