package repository_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/iliyamo/campsite-reservation/internal/queue"
	"github.com/iliyamo/campsite-reservation/internal/repository"
)

func newMockRepo(t *testing.T) (*repository.EventRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return repository.NewEventRepo(db), mock
}

func modifiedEvent() queue.ReservationEvent {
	return queue.ReservationEvent{
		Type:          queue.EventModified,
		ReservationID: "res-2",
		PreviousID:    "res-1",
		Email:         "a@example.com",
		StartDate:     "2025-03-10",
		EndDate:       "2025-03-11",
		Status:        "CONFIRMED",
		Version:       4,
		OccurredAt:    "2025-03-01T12:00:00Z",
	}
}

func TestEventRepoInsert(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT IGNORE INTO reservation_events")).
		WithArgs("reservation.modified", "res-2", "res-1", "a@example.com", "2025-03-10", "2025-03-11", "CONFIRMED", 4, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := repo.Insert(context.Background(), modifiedEvent()); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestEventRepoInsertErrors(t *testing.T) {
	repo, mock := newMockRepo(t)

	bad := modifiedEvent()
	bad.OccurredAt = "yesterday"
	if err := repo.Insert(context.Background(), bad); err == nil {
		t.Fatal("expected an error for a malformed timestamp")
	}

	dbErr := errors.New("connection reset")
	mock.ExpectExec(regexp.QuoteMeta("INSERT IGNORE INTO reservation_events")).WillReturnError(dbErr)
	if err := repo.Insert(context.Background(), modifiedEvent()); !errors.Is(err, dbErr) {
		t.Fatalf("expected wrapped driver error, got %v", err)
	}
}

func TestEventRepoListByReservation(t *testing.T) {
	repo, mock := newMockRepo(t)
	day := func(s string) time.Time { d, _ := time.Parse("2006-01-02", s); return d }
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"id", "event_type", "reservation_id", "previous_id", "email", "start_date", "end_date", "status", "version", "occurred_at", "recorded_at"}).
		AddRow(1, "reservation.confirmed", "res-1", nil, "a@example.com", day("2025-03-10"), day("2025-03-12"), "CONFIRMED", 1, at, at).
		AddRow(2, "reservation.modified", "res-2", "res-1", "a@example.com", day("2025-03-10"), day("2025-03-11"), "CONFIRMED", 4, at, at)
	mock.ExpectQuery(regexp.QuoteMeta("FROM reservation_events WHERE reservation_id = ? OR previous_id = ?")).
		WithArgs("res-1", "res-1").
		WillReturnRows(rows)

	got, err := repo.ListByReservation(context.Background(), "res-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].PreviousID.Valid || !got[1].PreviousID.Valid || got[1].PreviousID.String != "res-1" {
		t.Fatalf("unexpected previous ids %+v %+v", got[0].PreviousID, got[1].PreviousID)
	}
	if got[1].Version != 4 || !got[1].EndDate.Equal(day("2025-03-11")) {
		t.Fatalf("unexpected row %+v", got[1])
	}
}
