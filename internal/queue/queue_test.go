package queue

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/labstack/gommon/log"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/campsite-reservation/internal/model"
)

func quietLogger() *log.Logger {
	l := log.New("events-test")
	l.SetLevel(log.OFF)
	return l
}

func sampleEvent(t *testing.T) ReservationEvent {
	t.Helper()
	start, _ := model.ParseDate("2025-03-10")
	end, _ := model.ParseDate("2025-03-12")
	res := model.Reservation{
		ID:        "res-1",
		Email:     "a@example.com",
		StartDate: start,
		EndDate:   end,
		Status:    model.StatusConfirmed,
		UpdatedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	return NewReservationEvent(EventConfirmed, res, 4)
}

func TestNewReservationEventJSON(t *testing.T) {
	body, err := json.Marshal(sampleEvent(t))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := map[string]any{
		"type":           "reservation.confirmed",
		"reservation_id": "res-1",
		"start_date":     "2025-03-10",
		"end_date":       "2025-03-12",
		"status":         "CONFIRMED",
		"occurred_at":    "2025-03-01T12:00:00Z",
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("%s: expected %v, got %v", k, v, got[k])
		}
	}
	if _, ok := got["previous_id"]; ok {
		t.Fatal("previous_id should be omitted when empty")
	}
}

type recordingSink struct {
	events []ReservationEvent
	err    error
}

func (r *recordingSink) Handle(_ context.Context, ev ReservationEvent) error {
	r.events = append(r.events, ev)
	return r.err
}

func TestHandleMessageDispatchesToSinks(t *testing.T) {
	body, _ := json.Marshal(sampleEvent(t))
	a, b := &recordingSink{}, &recordingSink{}
	if err := handleMessage(context.Background(), body, []Sink{a, b}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(a.events) != 1 || len(b.events) != 1 || b.events[0].ReservationID != "res-1" {
		t.Fatalf("every sink should see the event once, got %v / %v", a.events, b.events)
	}
}

func TestHandleMessageRejectsBadInput(t *testing.T) {
	for _, body := range []string{"not json", `{"type":"reservation.confirmed"}`} {
		if err := handleMessage(context.Background(), []byte(body), nil); err == nil {
			t.Fatalf("expected error for %q", body)
		}
	}

	failing := &recordingSink{err: errors.New("db down")}
	after := &recordingSink{}
	body, _ := json.Marshal(sampleEvent(t))
	if err := handleMessage(context.Background(), body, []Sink{failing, after}); err == nil {
		t.Fatal("sink failure should be reported")
	}
	if len(after.events) != 0 {
		t.Fatal("later sinks must not run after a failure")
	}
}

func TestFileSinkAppendsLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "reservation.log")
	sink := NewFileSink(path)
	ev := sampleEvent(t)
	for i := 0; i < 2; i++ {
		if err := sink.Handle(context.Background(), ev); err != nil {
			t.Fatalf("handle: %v", err)
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if !strings.Contains(lines[0], "reservation_id=res-1") || !strings.Contains(lines[0], "stay=2025-03-10..2025-03-12") {
		t.Fatalf("unexpected line %q", lines[0])
	}
}

type fakeChannel struct {
	sent []amqp.Publishing
	fail int
}

func (f *fakeChannel) PublishWithContext(_ context.Context, _, _ string, _, _ bool, msg amqp.Publishing) error {
	if f.fail > 0 {
		f.fail--
		return errors.New("channel closed")
	}
	f.sent = append(f.sent, msg)
	return nil
}

func TestPumpDrainsOnStopAndKeepsFailedEvent(t *testing.T) {
	p := NewPublisher("amqp://unused", "", 4, quietLogger())
	ev := sampleEvent(t)
	p.Publish(ev)
	p.Publish(ev)

	ch := &fakeChannel{fail: 1}
	pending, err := p.pump(context.Background(), ch, nil)
	if err == nil || pending == nil || pending.ReservationID != "res-1" {
		t.Fatalf("failed send should be handed back, got %v %v", pending, err)
	}

	_ = p.Close(context.Background())
	pending, err = p.pump(context.Background(), ch, pending)
	if err != nil || pending != nil {
		t.Fatalf("expected clean drain, got %v %v", pending, err)
	}
	if len(ch.sent) != 2 {
		t.Fatalf("expected both events delivered, got %d", len(ch.sent))
	}
	if ch.sent[0].ContentType != "application/json" || ch.sent[0].DeliveryMode != amqp.Persistent {
		t.Fatalf("unexpected publishing %+v", ch.sent[0])
	}
}

func TestPublishDropsWhenFullOrClosed(t *testing.T) {
	p := NewPublisher("amqp://unused", "", 1, quietLogger())
	ev := sampleEvent(t)
	if !p.Publish(ev) {
		t.Fatal("first event should be buffered")
	}
	if p.Publish(ev) {
		t.Fatal("second event should be dropped")
	}
	_ = p.Close(context.Background())
	if p.Publish(ev) {
		t.Fatal("closed publisher must drop events")
	}
	if p.Dropped() != 2 {
		t.Fatalf("expected 2 dropped events, got %d", p.Dropped())
	}
}
