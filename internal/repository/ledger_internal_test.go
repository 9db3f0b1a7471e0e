package repository

import (
	"context"
	"testing"
	"time"

	"github.com/iliyamo/campsite-reservation/internal/model"
)

func TestVersionDoesNotWaitForWriters(t *testing.T) {
	l := NewBookingLedger()
	start, _ := model.ParseDate("2025-03-10")
	if _, _, err := l.Create(context.Background(), "a@example.com", model.NewDateRange(start, start.AddDate(0, 0, 2))); err != nil {
		t.Fatalf("create: %v", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	got := make(chan uint64, 1)
	go func() { got <- l.Version() }()
	select {
	case v := <-got:
		if v != 1 {
			t.Fatalf("expected version 1, got %d", v)
		}
	case <-time.After(time.Second):
		t.Fatal("Version blocked on the writer lock")
	}
}
