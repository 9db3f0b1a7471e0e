package model

import (
	"fmt"
	"time"
)

// DateLayout is the wire and key format for calendar dates.
const DateLayout = "2006-01-02"

// Date normalizes t to a calendar date: midnight UTC of t's year, month and
// day as observed in t's own location.  All dates handled by the booking
// core are normalized this way so that equality and map keys are stable.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD string into a normalized date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	return Date(t), nil
}

// DateKey formats a date as YYYY-MM-DD.
func DateKey(t time.Time) string { return t.Format(DateLayout) }

// DateRange is a half-open interval [Start, End) of calendar dates.  A stay
// from the 10th to the 12th covers the nights of the 10th and 11th.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// NewDateRange builds a normalized range.  It does not enforce Start < End;
// callers that need a valid stay should check Valid.
func NewDateRange(start, end time.Time) DateRange {
	return DateRange{Start: Date(start), End: Date(end)}
}

// ParseDateRange parses two YYYY-MM-DD strings and requires start < end.
func ParseDateRange(start, end string) (DateRange, error) {
	s, err := ParseDate(start)
	if err != nil {
		return DateRange{}, fmt.Errorf("start date: %w", err)
	}
	e, err := ParseDate(end)
	if err != nil {
		return DateRange{}, fmt.Errorf("end date: %w", err)
	}
	r := DateRange{Start: s, End: e}
	if !r.Valid() {
		return DateRange{}, fmt.Errorf("start date %s must be before end date %s", start, end)
	}
	return r, nil
}

// Valid reports whether the range is non-empty.
func (r DateRange) Valid() bool { return r.Start.Before(r.End) }

// Nights returns End-Start in whole days.  Empty or inverted ranges return
// zero or a negative count.
func (r DateRange) Nights() int {
	return int(r.End.Sub(r.Start).Hours() / 24)
}

// StayDates enumerates every date in [Start, End) in ascending order.
func (r DateRange) StayDates() []time.Time {
	n := r.Nights()
	if n <= 0 {
		return nil
	}
	dates := make([]time.Time, 0, n)
	for d := r.Start; d.Before(r.End); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d)
	}
	return dates
}

// Contains reports whether d falls inside [Start, End).
func (r DateRange) Contains(d time.Time) bool {
	d = Date(d)
	return !d.Before(r.Start) && d.Before(r.End)
}

// Equal reports whether both ranges cover the same dates.
func (r DateRange) Equal(o DateRange) bool {
	return r.Start.Equal(o.Start) && r.End.Equal(o.End)
}

func (r DateRange) String() string {
	return "[" + DateKey(r.Start) + ", " + DateKey(r.End) + ")"
}
