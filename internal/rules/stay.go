// Package rules holds the business constraints a stay must satisfy before
// it reaches the ledger.
package rules

import (
	"time"

	"github.com/iliyamo/campsite-reservation/internal/calendar"
	"github.com/iliyamo/campsite-reservation/internal/model"
)

const (
	// DefaultMaxStayNights is the longest stay a single reservation may hold.
	DefaultMaxStayNights = 3
	// DefaultMaxAdvanceDays bounds how far ahead a stay may start.  A month
	// is taken as 31 days, so a start on day 30 is the latest allowed.
	DefaultMaxAdvanceDays = 31
	// DefaultWindowDays is the span of an availability query with no range.
	DefaultWindowDays = 30
)

// StayRules validates date ranges against the campsite's booking policy.
type StayRules struct {
	cal            *calendar.Calendar
	MaxStayNights  int
	MaxAdvanceDays int
	WindowDays     int
}

// New returns rules with the default limits.
func New(cal *calendar.Calendar) *StayRules {
	return &StayRules{
		cal:            cal,
		MaxStayNights:  DefaultMaxStayNights,
		MaxAdvanceDays: DefaultMaxAdvanceDays,
		WindowDays:     DefaultWindowDays,
	}
}

// ValidateBookingRange reports whether r may be booked: between 1 and
// MaxStayNights nights, starting strictly after today and strictly before
// today+MaxAdvanceDays.
func (s *StayRules) ValidateBookingRange(r *model.DateRange) bool {
	if r == nil {
		return false
	}
	nights := r.Nights()
	if nights <= 0 || nights > s.MaxStayNights {
		return false
	}
	today := s.cal.Today()
	return s.startsAfter(r.Start, today) && r.Start.Before(today.AddDate(0, 0, s.MaxAdvanceDays))
}

// ValidateAvailabilityRange requires a non-empty range starting after
// today and ending no later than Horizon.
func (s *StayRules) ValidateAvailabilityRange(r *model.DateRange) bool {
	if r == nil || !r.Valid() {
		return false
	}
	today := s.cal.Today()
	return s.startsAfter(r.Start, today) && !r.End.After(s.horizon(today))
}

// Horizon is the exclusive end of the last stay that could ever be
// booked: a stay of MaxStayNights starting on the last allowed day.
func (s *StayRules) Horizon() time.Time { return s.horizon(s.cal.Today()) }

// DefaultAvailabilityRange is [today+1, today+WindowDays), cut at Horizon.
func (s *StayRules) DefaultAvailabilityRange() model.DateRange {
	today := s.cal.Today()
	end := today.AddDate(0, 0, s.WindowDays)
	if h := s.horizon(today); end.After(h) {
		end = h
	}
	return model.DateRange{Start: today.AddDate(0, 0, 1), End: end}
}

func (s *StayRules) horizon(today time.Time) time.Time {
	return today.AddDate(0, 0, s.MaxAdvanceDays+s.MaxStayNights-1)
}

// Today exposes the calendar date the rules evaluate against.
func (s *StayRules) Today() time.Time { return s.cal.Today() }

func (s *StayRules) startsAfter(start, today time.Time) bool {
	return !start.IsZero() && start.After(today)
}
