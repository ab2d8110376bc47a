// Package store provides storage backends for the RoomPipe booking ledger.
//
// This file implements the PostgreSQL-backed ledger.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	_ "github.com/lib/pq"

	"github.com/BTreeMap/RoomPipe/internal/models"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres ledger based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run Postgres migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) AddBooking(r models.BookingRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO bookings (id, room, date, start_label, end_label, duration_hours, name, department, agenda, contact_id, calendar_event_id, html_link, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		r.ID, r.Room, r.Date, r.StartLabel, r.EndLabel, r.DurationHours,
		r.Name, r.Department, r.Agenda, r.ContactID, r.CalendarEventID, r.HTMLLink, r.CreatedAt,
	)
	if err != nil {
		slog.Error("PostgresStore AddBooking failed", "error", err, "id", r.ID)
		return fmt.Errorf("failed to insert booking %s: %w", r.ID, err)
	}
	slog.Debug("PostgresStore AddBooking succeeded", "id", r.ID, "room", r.Room, "date", r.Date)
	return nil
}

func (s *PostgresStore) ListBookings() ([]models.BookingRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, room, date, start_label, end_label, duration_hours, name, department, agenda, contact_id, calendar_event_id, html_link, created_at
		 FROM bookings ORDER BY created_at DESC`)
	if err != nil {
		slog.Error("PostgresStore ListBookings query failed", "error", err)
		return nil, fmt.Errorf("failed to query bookings: %w", err)
	}
	defer rows.Close()
	return scanBookings(rows)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
