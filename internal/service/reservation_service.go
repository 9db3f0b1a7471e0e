// Package service orchestrates reservation requests: it validates stays
// against the campsite rules, commits them through the booking ledger and
// then propagates the outcome to the availability cache and the event
// publisher.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/iliyamo/campsite-reservation/internal/model"
	"github.com/iliyamo/campsite-reservation/internal/queue"
	"github.com/iliyamo/campsite-reservation/internal/repository"
)

// ErrInvalidRange is returned when a date range violates the stay rules.
var ErrInvalidRange = errors.New("invalid date range")

// Ledger is the authoritative reservation store.
type Ledger interface {
	Create(ctx context.Context, email string, r model.DateRange) (model.Reservation, repository.Commit, error)
	Modify(ctx context.Context, existing model.Reservation, r model.DateRange) (model.Reservation, model.Reservation, repository.Commit, error)
	Cancel(ctx context.Context, existing model.Reservation) (model.Reservation, repository.Commit, error)
	Lookup(ctx context.Context, id, email string) (model.Reservation, error)
	ListByEmail(ctx context.Context, email string) ([]model.Reservation, error)
}

// AvailabilityCache is the eventually consistent read side.  Its mark
// methods are fire-and-forget.
type AvailabilityCache interface {
	MarkBooked(commit repository.Commit, r model.DateRange)
	MarkFree(commit repository.Commit, r model.DateRange)
	Apply(commit repository.Commit, free, booked model.DateRange)
	Available(ctx context.Context, r model.DateRange) ([]time.Time, error)
}

// EventPublisher receives committed reservation changes.  Publish must not
// block.
type EventPublisher interface {
	Publish(ev queue.ReservationEvent) bool
}

// Rules validates stay ranges.
type Rules interface {
	ValidateBookingRange(r *model.DateRange) bool
	ValidateAvailabilityRange(r *model.DateRange) bool
	DefaultAvailabilityRange() model.DateRange
}

// ReservationService is the single entry point for reservation requests.
// Only the ledger decides whether a stay is committed; cache and event
// propagation happen afterwards and their failures never reach callers.
type ReservationService struct {
	ledger Ledger
	cache  AvailabilityCache
	rules  Rules
	events EventPublisher
}

// NewReservationService wires the service.  events may be nil.
func NewReservationService(ledger Ledger, cache AvailabilityCache, rules Rules, events EventPublisher) *ReservationService {
	return &ReservationService{ledger: ledger, cache: cache, rules: rules, events: events}
}

// Book reserves r for email.
func (s *ReservationService) Book(ctx context.Context, email string, r model.DateRange) (model.Reservation, error) {
	if !s.rules.ValidateBookingRange(&r) {
		return model.Reservation{}, ErrInvalidRange
	}
	res, commit, err := s.ledger.Create(ctx, email, r)
	if err != nil {
		return model.Reservation{}, err
	}
	s.cache.MarkBooked(commit, res.Range())
	s.publish(queue.NewReservationEvent(queue.EventConfirmed, res, commit.Version))
	return res, nil
}

// Modify moves reservation id to r and returns the cancelled original and
// its replacement, in that order.  Moving a stay onto the dates it already
// holds changes nothing and returns the current reservation twice.
func (s *ReservationService) Modify(ctx context.Context, id, email string, r model.DateRange) ([]model.Reservation, error) {
	if !s.rules.ValidateBookingRange(&r) {
		return nil, ErrInvalidRange
	}
	existing, err := s.ledger.Lookup(ctx, id, email)
	if err != nil {
		return nil, err
	}
	old, next, commit, err := s.ledger.Modify(ctx, existing, r)
	if err != nil {
		return nil, err
	}
	if commit.Written() {
		s.cache.Apply(commit, old.Range(), next.Range())
		ev := queue.NewReservationEvent(queue.EventModified, next, commit.Version)
		ev.PreviousID = old.ID
		s.publish(ev)
	}
	return []model.Reservation{old, next}, nil
}

// Cancel cancels reservation id.  Cancelling twice returns the same
// cancelled record and has no further effect.
func (s *ReservationService) Cancel(ctx context.Context, id, email string) (model.Reservation, error) {
	existing, err := s.ledger.Lookup(ctx, id, email)
	if err != nil {
		return model.Reservation{}, err
	}
	if !existing.Confirmed() {
		return existing, nil
	}
	res, commit, err := s.ledger.Cancel(ctx, existing)
	if err != nil {
		return model.Reservation{}, err
	}
	if commit.Written() {
		s.cache.MarkFree(commit, res.Range())
		s.publish(queue.NewReservationEvent(queue.EventCancelled, res, commit.Version))
	}
	return res, nil
}

// Get returns reservation id held by email.
func (s *ReservationService) Get(ctx context.Context, id, email string) (model.Reservation, error) {
	return s.ledger.Lookup(ctx, id, email)
}

// ListByEmail returns every reservation held by email, newest first.
func (s *ReservationService) ListByEmail(ctx context.Context, email string) ([]model.Reservation, error) {
	return s.ledger.ListByEmail(ctx, email)
}

// Availability lists the free dates in r, or in the default window when r
// is nil.  The answer comes from the cache and may briefly lag recent
// bookings.
func (s *ReservationService) Availability(ctx context.Context, r *model.DateRange) ([]time.Time, error) {
	if r == nil {
		def := s.rules.DefaultAvailabilityRange()
		r = &def
	}
	if !s.rules.ValidateAvailabilityRange(r) {
		return nil, ErrInvalidRange
	}
	return s.cache.Available(ctx, *r)
}

func (s *ReservationService) publish(ev queue.ReservationEvent) {
	if s.events != nil {
		s.events.Publish(ev)
	}
}
