// Command event-consumer drains reservation events from RabbitMQ into the
// audit log file and, when a database is configured, the
// reservation_events table.  With -history it prints the recorded events
// of one reservation instead.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iliyamo/campsite-reservation/internal/config"
	"github.com/iliyamo/campsite-reservation/internal/database"
	"github.com/iliyamo/campsite-reservation/internal/model"
	"github.com/iliyamo/campsite-reservation/internal/queue"
	"github.com/iliyamo/campsite-reservation/internal/repository"
)

func main() {
	history := flag.String("history", "", "print the audit trail of a reservation id and exit")
	flag.Parse()

	cfg := config.Load()
	logger := config.NewLogger("event-consumer", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var repo *repository.EventRepo
	if cfg.DB.Configured() || *history != "" {
		db := cfg.MustDB()
		conn, err := database.Open(db.User, db.Pass, db.Host, db.Port, db.Name)
		if err != nil {
			logger.Fatalf("database: %v", err)
		}
		defer conn.Close()
		schemaCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err = database.EnsureSchema(schemaCtx, conn)
		cancel()
		if err != nil {
			logger.Fatalf("schema: %v", err)
		}
		repo = repository.NewEventRepo(conn)
	}

	if *history != "" {
		if err := printHistory(ctx, repo, *history); err != nil {
			logger.Fatalf("history: %v", err)
		}
		return
	}

	sinks := []queue.Sink{queue.NewFileSink(cfg.AuditLogPath)}
	if repo != nil {
		sinks = append(sinks, queue.SinkFunc(repo.Insert))
	} else {
		logger.Warn("DB_* not set, events go to the log file only")
	}

	err := queue.StartConsumer(ctx, queue.ConsumerConfig{URL: cfg.Events.URL, Queue: cfg.Events.Queue}, logger, sinks...)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatalf("consumer: %v", err)
	}
	logger.Info("stopped")
}

func printHistory(ctx context.Context, repo *repository.EventRepo, id string) error {
	events, err := repo.ListByReservation(ctx, id)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Printf("no events recorded for %s\n", id)
		return nil
	}
	for _, e := range events {
		prev := ""
		if e.PreviousID.Valid {
			prev = " previous=" + e.PreviousID.String
		}
		fmt.Printf("v%-6d %-22s %s%s %s..%s %s at %s\n",
			e.Version, e.EventType, e.ReservationID, prev,
			model.DateKey(e.StartDate), model.DateKey(e.EndDate), e.Status, e.OccurredAt.Format(time.RFC3339))
	}
	return nil
}
