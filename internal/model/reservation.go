package model

import (
	"encoding/json"
	"time"
)

// Status is the lifecycle state of a reservation.  The only transition is
// CONFIRMED -> CANCELLED; a cancelled reservation never changes again.
type Status string

const (
	StatusConfirmed Status = "CONFIRMED"
	StatusCancelled Status = "CANCELLED"
)

// Reservation records one stay on the campsite.  Values are immutable once
// stored by the ledger: a status change stores a new copy, and a date change
// cancels this record and creates a new one, so the full history of a
// holder's bookings is preserved.
//
// Fields:
//
//	ID        - opaque unique identifier, assigned at creation.
//	Email     - holder of the reservation; lookups are filtered by it.
//	StartDate - first night of the stay (inclusive).
//	EndDate   - departure date (exclusive).
//	Status    - CONFIRMED or CANCELLED.
//	CreatedAt - creation timestamp (UTC).
//	UpdatedAt - last status change (UTC).
type Reservation struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Range returns the reservation's stay as a DateRange.
func (r Reservation) Range() DateRange {
	return DateRange{Start: r.StartDate, End: r.EndDate}
}

// Confirmed reports whether the reservation still claims its dates.
func (r Reservation) Confirmed() bool { return r.Status == StatusConfirmed }

// MarshalJSON writes StartDate and EndDate as YYYY-MM-DD date keys, the
// same shape the HTTP API returns.
func (r Reservation) MarshalJSON() ([]byte, error) {
	type plain Reservation
	return json.Marshal(struct {
		plain
		StartDate string `json:"start_date"`
		EndDate   string `json:"end_date"`
	}{plain: plain(r), StartDate: DateKey(r.StartDate), EndDate: DateKey(r.EndDate)})
}
