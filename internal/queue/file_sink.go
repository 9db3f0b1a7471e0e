package queue

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileSink appends one human-readable line per event to a log file.
type FileSink struct {
	path string
	mu   sync.Mutex
}

// NewFileSink returns a sink writing to path.  Parent directories are
// created on first write.
func NewFileSink(path string) *FileSink {
	if path == "" {
		path = filepath.Join("logs", "reservation.log")
	}
	return &FileSink{path: path}
}

func (s *FileSink) Handle(_ context.Context, ev ReservationEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(FormatLine(ev)); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

// FormatLine renders ev as a single log line ending in a newline.
func FormatLine(ev ReservationEvent) string {
	prev := ""
	if ev.PreviousID != "" {
		prev = fmt.Sprintf(" | previous_id=%s", ev.PreviousID)
	}
	return fmt.Sprintf("[%s] %s | reservation_id=%s%s | email=%q | stay=%s..%s | status=%s | version=%d\n",
		ev.OccurredAt, ev.Type, ev.ReservationID, prev, ev.Email, ev.StartDate, ev.EndDate, ev.Status, ev.Version)
}
