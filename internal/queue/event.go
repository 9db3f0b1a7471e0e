// Package queue defines the reservation events exchanged over the message
// broker, the publisher the server uses to emit them and the consumer that
// drains them into audit sinks.
package queue

import (
	"time"

	"github.com/iliyamo/campsite-reservation/internal/model"
)

// EventType names what happened to a reservation.
type EventType string

const (
	EventConfirmed EventType = "reservation.confirmed"
	EventModified  EventType = "reservation.modified"
	EventCancelled EventType = "reservation.cancelled"
)

// DefaultQueueName is the durable queue events are published to when no
// other name is configured.
const DefaultQueueName = "reservation.events"

// ReservationEvent is published after a reservation change has been
// committed.  It carries enough information for downstream consumers to
// log or audit the change without querying the server.
//
// Fields:
//
//	Type          - confirmed, modified or cancelled.
//	ReservationID - the reservation the event is about; for a modify this
//	                is the newly created reservation.
//	PreviousID    - for a modify, the reservation that was cancelled.
//	Email         - holder of the reservation.
//	StartDate     - first night (YYYY-MM-DD).
//	EndDate       - departure date (YYYY-MM-DD, exclusive).
//	Status        - status after the change.
//	Version       - ledger version of the commit that produced the event.
//	OccurredAt    - RFC 3339 timestamp of the change.
type ReservationEvent struct {
	Type          EventType `json:"type"`
	ReservationID string    `json:"reservation_id"`
	PreviousID    string    `json:"previous_id,omitempty"`
	Email         string    `json:"email"`
	StartDate     string    `json:"start_date"`
	EndDate       string    `json:"end_date"`
	Status        string    `json:"status"`
	Version       uint64    `json:"version"`
	OccurredAt    string    `json:"occurred_at"`
}

// NewReservationEvent builds an event describing res after a commit at
// version.
func NewReservationEvent(t EventType, res model.Reservation, version uint64) ReservationEvent {
	return ReservationEvent{
		Type:          t,
		ReservationID: res.ID,
		Email:         res.Email,
		StartDate:     model.DateKey(res.StartDate),
		EndDate:       model.DateKey(res.EndDate),
		Status:        string(res.Status),
		Version:       version,
		OccurredAt:    res.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
