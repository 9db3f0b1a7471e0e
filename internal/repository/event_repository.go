package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/iliyamo/campsite-reservation/internal/queue"
)

// EventRepo stores consumed reservation events in the reservation_events
// table.  It is an append-only audit trail; the booking ledger never reads
// it.
type EventRepo struct {
	db *sql.DB
}

// NewEventRepo returns a new EventRepo bound to the given database.
func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

// EventRecord mirrors one row of reservation_events.
type EventRecord struct {
	ID            uint64
	EventType     string
	ReservationID string
	PreviousID    sql.NullString
	Email         string
	StartDate     time.Time
	EndDate       time.Time
	Status        string
	Version       uint64
	OccurredAt    time.Time
	RecordedAt    time.Time
}

// Insert records ev.  Redelivered events are ignored: the table is unique
// on (reservation_id, version, event_type).
func (r *EventRepo) Insert(ctx context.Context, ev queue.ReservationEvent) error {
	occurred, err := time.Parse(time.RFC3339, ev.OccurredAt)
	if err != nil {
		return fmt.Errorf("occurred_at: %w", err)
	}
	var prev sql.NullString
	if ev.PreviousID != "" {
		prev = sql.NullString{String: ev.PreviousID, Valid: true}
	}
	const q = `INSERT IGNORE INTO reservation_events
		(event_type, reservation_id, previous_id, email, start_date, end_date, status, version, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, q,
		string(ev.Type), ev.ReservationID, prev, ev.Email, ev.StartDate, ev.EndDate, ev.Status, ev.Version, occurred.UTC(),
	); err != nil {
		return fmt.Errorf("insert reservation event: %w", err)
	}
	return nil
}

// ListByReservation returns the recorded events of one reservation in
// version order.
func (r *EventRepo) ListByReservation(ctx context.Context, reservationID string) ([]EventRecord, error) {
	const q = `SELECT id, event_type, reservation_id, previous_id, email, start_date, end_date, status, version, occurred_at, recorded_at
		FROM reservation_events WHERE reservation_id = ? OR previous_id = ? ORDER BY version, id`
	rows, err := r.db.QueryContext(ctx, q, reservationID, reservationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EventRecord
	for rows.Next() {
		var e EventRecord
		if err := rows.Scan(&e.ID, &e.EventType, &e.ReservationID, &e.PreviousID, &e.Email,
			&e.StartDate, &e.EndDate, &e.Status, &e.Version, &e.OccurredAt, &e.RecordedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
