package ingestion

import (
	"strings"
	"time"
)

// primaryDateLayout is the layout the observed producers emit most often
// (MM/DD/YYYY). It is tried first and on its own, because several fallback
// layouts are ambiguous with it and order decides the interpretation.
const primaryDateLayout = "01/02/2006"

// fallbackDateLayouts are tried in order when the primary layout fails.
// The list is fixed; adding a layout changes how ambiguous values parse, so
// extensions belong at the end.
var fallbackDateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006/01/02",
	"01-02-2006",
	"Jan 2, 2006",
	"2 Jan 2006",
	"02.01.2006",
}

// DateResolver resolves raw date strings to event dates.
//
// Resolution is total: a value that matches no layout, or is empty, resolves
// to the current wall-clock date with defaulted=true. The resolver never
// returns an error; the caller decides whether a defaulted date is worth a
// warning (the pipeline logs one per affected row).
//
// The clock is injectable for tests; a nil clock uses time.Now.
type DateResolver struct {
	now func() time.Time
}

// NewDateResolver creates a resolver using the given clock, or time.Now
// when clock is nil.
func NewDateResolver(clock func() time.Time) *DateResolver {
	if clock == nil {
		clock = time.Now
	}

	return &DateResolver{now: clock}
}

// Resolve parses raw into an event date.
//
// Order:
//  1. primary layout MM/DD/YYYY
//  2. fallbackDateLayouts, first match wins
//  3. current wall-clock date, defaulted=true
//
// All results are normalized to midnight UTC; the store column is a DATE and
// time-of-day from datetime-bearing layouts is discarded deliberately.
func (d *DateResolver) Resolve(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)

	if raw != "" {
		if t, err := time.Parse(primaryDateLayout, raw); err == nil {
			return truncateToDate(t), false
		}

		for _, layout := range fallbackDateLayouts {
			if t, err := time.Parse(layout, raw); err == nil {
				return truncateToDate(t), false
			}
		}
	}

	return truncateToDate(d.now()), true
}

// truncateToDate drops the time-of-day component, keeping the calendar date
// as written in the source value.
func truncateToDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
