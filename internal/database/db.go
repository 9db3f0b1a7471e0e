package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// Open connects to MySQL and verifies the connection.
func Open(user, pass, host, port, name string) (*sql.DB, error) {
	auth := user
	if pass != "" {
		auth = fmt.Sprintf("%s:%s", user, pass)
	}
	// parseTime=true -> DATETIME -> time.Time | loc=UTC keeps times consistent
	dsn := fmt.Sprintf("%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC",
		auth, host, port, name)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}

	// The audit consumer is the only writer; a small pool is plenty.
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

const eventsTable = `CREATE TABLE IF NOT EXISTS reservation_events (
	id             BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
	event_type     VARCHAR(32)     NOT NULL,
	reservation_id VARCHAR(64)     NOT NULL,
	previous_id    VARCHAR(64)     NULL,
	email          VARCHAR(255)    NOT NULL,
	start_date     DATE            NOT NULL,
	end_date       DATE            NOT NULL,
	status         VARCHAR(16)     NOT NULL,
	version        BIGINT UNSIGNED NOT NULL,
	occurred_at    DATETIME        NOT NULL,
	recorded_at    DATETIME        NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE KEY uq_event (reservation_id, version, event_type),
	KEY idx_previous (previous_id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`

// EnsureSchema creates the audit tables when they do not exist yet.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, eventsTable); err != nil {
		return fmt.Errorf("create reservation_events: %w", err)
	}
	return nil
}
