package repository

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/iliyamo/campsite-reservation/internal/calendar"
	"github.com/iliyamo/campsite-reservation/internal/model"
)

// ErrEmptyRange is returned when a range covers no nights.  The service
// validates ranges before they get here, so this only guards direct use.
var ErrEmptyRange = errors.New("date range covers no nights")

// Commit identifies one successful mutation of the ledger.  Versions are
// assigned inside the critical section and strictly increase, so they
// order every change to the occupied dates.  The zero Commit means nothing
// was written (idempotent cancel, no-op modify).
type Commit struct {
	Version uint64
}

// Written reports whether the call changed the ledger.
func (c Commit) Written() bool { return c.Version != 0 }

// Snapshot is a consistent copy of the occupied dates at Version.
type Snapshot struct {
	Version uint64
	Booked  map[string]struct{}
}

// BookingLedger is the authoritative store of reservations and of the
// dates they occupy.  It is the only component allowed to decide whether
// a stay may be committed.
//
// Writers (Create, Modify, Cancel) serialize on a single mutex that covers
// the whole campsite: a multi-day range check followed by its mutation must
// be atomic with respect to every other writer, which per-date locks cannot
// give.  The lock is held only for the check and the in-memory update.
//
// Reservation records live in a sync.Map and are replaced, never mutated,
// so Lookup and ListByEmail take no lock and never observe a torn record.
type BookingLedger struct {
	mu       sync.Mutex
	occupied map[string]string // date key -> id of the CONFIRMED reservation claiming it
	version  atomic.Uint64 // bumped only while mu is held
	records  sync.Map // id -> model.Reservation

	clock calendar.Clock
	newID func() string
}

// LedgerOption customizes a BookingLedger.
type LedgerOption func(*BookingLedger)

// WithClock sets the clock used for CreatedAt/UpdatedAt stamps.
func WithClock(c calendar.Clock) LedgerOption {
	return func(l *BookingLedger) { l.clock = c }
}

// WithIDGenerator replaces the UUID generator.
func WithIDGenerator(f func() string) LedgerOption {
	return func(l *BookingLedger) { l.newID = f }
}

// NewBookingLedger returns an empty ledger.
func NewBookingLedger(opts ...LedgerOption) *BookingLedger {
	l := &BookingLedger{
		occupied: make(map[string]string),
		clock:    calendar.RealClock{},
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Create books r for email.  Every stay date is checked against the
// occupied set; if any is taken ErrConflict is returned and nothing
// changes.  Otherwise a CONFIRMED reservation is stored and its dates are
// claimed.
func (l *BookingLedger) Create(ctx context.Context, email string, r model.DateRange) (model.Reservation, Commit, error) {
	if err := ctx.Err(); err != nil {
		return model.Reservation{}, Commit{}, err
	}
	dates := dateKeys(r)
	if len(dates) == 0 {
		return model.Reservation{}, Commit{}, ErrEmptyRange
	}
	now := l.clock.Now().UTC()
	res := model.Reservation{
		ID:        l.newID(),
		Email:     email,
		StartDate: r.Start,
		EndDate:   r.End,
		Status:    model.StatusConfirmed,
		CreatedAt: now,
		UpdatedAt: now,
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.occupiedLocked(dates, "") {
		return model.Reservation{}, Commit{}, ErrConflict
	}
	version := l.version.Add(1)
	l.records.Store(res.ID, res)
	l.claimLocked(dates, res.ID)
	return res, Commit{Version: version}, nil
}

// Modify moves existing to r.  The new range is checked against the
// occupied set ignoring the dates existing itself holds, so shrinking or
// shifting a stay over its own nights never conflicts.  On success the old
// record is cancelled, its dates released, and a new CONFIRMED record is
// created for r; both are returned.  On ErrConflict nothing changes.
//
// If r equals the current stay the call is a no-op: the stored record is
// returned as both old and new with a zero Commit.
func (l *BookingLedger) Modify(ctx context.Context, existing model.Reservation, r model.DateRange) (model.Reservation, model.Reservation, Commit, error) {
	var none model.Reservation
	if err := ctx.Err(); err != nil {
		return none, none, Commit{}, err
	}
	newDates := dateKeys(r)
	if len(newDates) == 0 {
		return none, none, Commit{}, ErrEmptyRange
	}
	now := l.clock.Now().UTC()
	next := model.Reservation{
		ID:        l.newID(),
		Email:     existing.Email,
		StartDate: r.Start,
		EndDate:   r.End,
		Status:    model.StatusConfirmed,
		CreatedAt: now,
		UpdatedAt: now,
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Re-read under the lock: the caller's copy may predate a concurrent
	// cancel or modify.
	cur, ok := l.load(existing.ID)
	if !ok || cur.Email != existing.Email {
		return none, none, Commit{}, ErrNotFound
	}
	if !cur.Confirmed() {
		return none, none, Commit{}, ErrCancelled
	}
	if cur.Range().Equal(r) {
		return cur, cur, Commit{}, nil
	}
	if l.occupiedLocked(newDates, cur.ID) {
		return none, none, Commit{}, ErrConflict
	}

	version := l.version.Add(1)
	cancelled := cur
	cancelled.Status = model.StatusCancelled
	cancelled.UpdatedAt = now
	l.records.Store(cancelled.ID, cancelled)
	l.releaseLocked(dateKeys(cur.Range()), cur.ID)
	l.records.Store(next.ID, next)
	l.claimLocked(newDates, next.ID)
	return cancelled, next, Commit{Version: version}, nil
}

// Cancel cancels existing and releases its dates.  Cancelling a
// reservation that is already CANCELLED returns the stored record with a
// zero Commit.
func (l *BookingLedger) Cancel(ctx context.Context, existing model.Reservation) (model.Reservation, Commit, error) {
	if err := ctx.Err(); err != nil {
		return model.Reservation{}, Commit{}, err
	}
	now := l.clock.Now().UTC()

	l.mu.Lock()
	defer l.mu.Unlock()

	cur, ok := l.load(existing.ID)
	if !ok || cur.Email != existing.Email {
		return model.Reservation{}, Commit{}, ErrNotFound
	}
	if !cur.Confirmed() {
		return cur, Commit{}, nil
	}
	version := l.version.Add(1)
	cancelled := cur
	cancelled.Status = model.StatusCancelled
	cancelled.UpdatedAt = now
	l.records.Store(cancelled.ID, cancelled)
	l.releaseLocked(dateKeys(cur.Range()), cur.ID)
	return cancelled, Commit{Version: version}, nil
}

// Lookup returns the reservation with the given id if it belongs to email.
// Confirmed and cancelled records are both returned.
func (l *BookingLedger) Lookup(ctx context.Context, id, email string) (model.Reservation, error) {
	if err := ctx.Err(); err != nil {
		return model.Reservation{}, err
	}
	res, ok := l.load(id)
	if !ok || res.Email != email {
		return model.Reservation{}, ErrNotFound
	}
	return res, nil
}

// ListByEmail returns every reservation held by email, newest first.
func (l *BookingLedger) ListByEmail(ctx context.Context, email string) ([]model.Reservation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]model.Reservation, 0)
	l.records.Range(func(_, v any) bool {
		if res := v.(model.Reservation); res.Email == email {
			out = append(out, res)
		}
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Snapshot copies the occupied dates and the version they reflect.
func (l *BookingLedger) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	booked := make(map[string]struct{}, len(l.occupied))
	for d := range l.occupied {
		booked[d] = struct{}{}
	}
	return Snapshot{Version: l.version.Load(), Booked: booked}
}

// Version returns the version of the latest commit without taking the
// writer lock.
func (l *BookingLedger) Version() uint64 { return l.version.Load() }

func (l *BookingLedger) load(id string) (model.Reservation, bool) {
	v, ok := l.records.Load(id)
	if !ok {
		return model.Reservation{}, false
	}
	return v.(model.Reservation), true
}

// occupiedLocked reports whether any date is claimed by a reservation
// other than self.  Callers must hold l.mu.
func (l *BookingLedger) occupiedLocked(dates []string, self string) bool {
	for _, d := range dates {
		if owner, ok := l.occupied[d]; ok && owner != self {
			return true
		}
	}
	return false
}

func (l *BookingLedger) claimLocked(dates []string, id string) {
	for _, d := range dates {
		l.occupied[d] = id
	}
}

// releaseLocked frees only the dates still owned by id.
func (l *BookingLedger) releaseLocked(dates []string, id string) {
	for _, d := range dates {
		if l.occupied[d] == id {
			delete(l.occupied, d)
		}
	}
}

func dateKeys(r model.DateRange) []string {
	dates := r.StayDates()
	keys := make([]string, len(dates))
	for i, d := range dates {
		keys[i] = model.DateKey(d)
	}
	return keys
}
