// Package repository defines error types that are reused across the
// booking store and its callers.  These sentinel values allow higher
// layers such as the reservation service and the HTTP handlers to
// distinguish between different failure scenarios with errors.Is.
package repository

import "errors"

// ErrConflict is returned when a stay overlaps a date already claimed by
// a CONFIRMED reservation.  Nothing is written when it is returned.
// Handlers should translate this into an HTTP 409 response.
var ErrConflict = errors.New("campsite not available for the selected dates")

// ErrNotFound is returned when no reservation matches the id and email
// pair.  A reservation held by someone else is reported the same way so
// that ids cannot be probed.  Handlers translate this into HTTP 404.
var ErrNotFound = errors.New("no reservation found for the id and email provided")

// ErrCancelled is returned when a cancelled reservation is modified.
// Cancellation is terminal; the holder must book again.
var ErrCancelled = errors.New("reservation is already cancelled")
