// Package store provides storage backends for the RoomPipe booking ledger.
//
// This file implements the SQLite-backed ledger.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "embed"

	_ "github.com/mattn/go-sqlite3"

	"github.com/BTreeMap/RoomPipe/internal/models"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite ledger with the given DSN (a file
// path). The parent directory is created if missing.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("SQLiteStore.NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run SQLite migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) AddBooking(r models.BookingRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO bookings (id, room, date, start_label, end_label, duration_hours, name, department, agenda, contact_id, calendar_event_id, html_link, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Room, r.Date, r.StartLabel, r.EndLabel, r.DurationHours,
		r.Name, r.Department, r.Agenda, r.ContactID, r.CalendarEventID, r.HTMLLink, r.CreatedAt,
	)
	if err != nil {
		slog.Error("SQLiteStore AddBooking failed", "error", err, "id", r.ID)
		return fmt.Errorf("failed to insert booking %s: %w", r.ID, err)
	}
	slog.Debug("SQLiteStore AddBooking succeeded", "id", r.ID, "room", r.Room, "date", r.Date)
	return nil
}

func (s *SQLiteStore) ListBookings() ([]models.BookingRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, room, date, start_label, end_label, duration_hours, name, department, agenda, contact_id, calendar_event_id, html_link, created_at
		 FROM bookings ORDER BY created_at DESC`)
	if err != nil {
		slog.Error("SQLiteStore ListBookings query failed", "error", err)
		return nil, fmt.Errorf("failed to query bookings: %w", err)
	}
	defer rows.Close()
	return scanBookings(rows)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
