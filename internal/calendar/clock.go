// Package calendar supplies "today" for the campsite's fixed timezone.
package calendar

import (
	"fmt"
	"time"
	_ "time/tzdata" // the campsite zone must resolve on hosts without zoneinfo

	"github.com/iliyamo/campsite-reservation/internal/model"
)

// Clock abstracts the wall clock so date rules can be tested.
type Clock interface {
	Now() time.Time
}

// RealClock reads the system clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// FixedClock always returns the same instant.
type FixedClock struct{ At time.Time }

func (f FixedClock) Now() time.Time { return f.At }

// Calendar answers date questions in one location.
type Calendar struct {
	clock Clock
	loc   *time.Location
}

// New returns a Calendar for the given clock and location.  A nil clock uses
// the system clock; a nil location uses UTC.
func New(clock Clock, loc *time.Location) *Calendar {
	if clock == nil {
		clock = RealClock{}
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Calendar{clock: clock, loc: loc}
}

// NewInZone loads the named IANA timezone and returns a Calendar for it.
func NewInZone(clock Clock, zone string) (*Calendar, error) {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", zone, err)
	}
	return New(clock, loc), nil
}

// Today returns the current calendar date in the campsite's timezone,
// normalized with model.Date.
func (c *Calendar) Today() time.Time {
	return model.Date(c.clock.Now().In(c.loc))
}

// Location returns the campsite's timezone.
func (c *Calendar) Location() *time.Location { return c.loc }
