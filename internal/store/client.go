// Package store persists focus transitions to PostgreSQL so a history of
// window activity survives the process. It is optional: the daemon only
// opens it when a DSN is configured.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/wayfocus/wayfocus/internal/logger"
	"github.com/wayfocus/wayfocus/internal/window"
)

const (
	connectTimeout = 10 * time.Second
	queryTimeout   = 5 * time.Second
)

const schema = `
CREATE TABLE IF NOT EXISTS focus_events (
	id          BIGSERIAL PRIMARY KEY,
	app_id      TEXT NOT NULL,
	title       TEXT NOT NULL,
	backend     TEXT NOT NULL,
	observed_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS focus_events_observed_at_idx ON focus_events (observed_at);
`

// Client records focus events into PostgreSQL.
type Client struct {
	db *sql.DB
}

// NewClient connects to the database and ensures the schema exists.
func NewClient(dsn string) (*Client, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	logger.WithComponent("store").Info().Msg("focus history store connected")
	return &Client{db: db}, nil
}

// ValidateEvent checks that an event is worth persisting.
func ValidateEvent(ev *window.FocusEvent) error {
	if ev == nil {
		return fmt.Errorf("nil event")
	}
	if ev.AppID == "" && ev.Title == "" {
		return fmt.Errorf("event carries neither app id nor title")
	}
	if ev.Time.IsZero() {
		return fmt.Errorf("event has no timestamp")
	}
	return nil
}

// RecordFocus inserts one focus transition.
func (c *Client) RecordFocus(ctx context.Context, ev *window.FocusEvent) error {
	if err := ValidateEvent(ev); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO focus_events (app_id, title, backend, observed_at) VALUES ($1, $2, $3, $4)`,
		ev.AppID, ev.Title, ev.Backend, ev.Time,
	)
	if err != nil {
		return fmt.Errorf("failed to record focus event: %w", err)
	}
	return nil
}

// Close releases the database connection.
func (c *Client) Close() error {
	return c.db.Close()
}
