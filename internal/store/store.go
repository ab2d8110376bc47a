// Package store provides storage backends for the RoomPipe booking ledger.
//
// The ledger records every successfully created booking so operators can see
// what the bot has written to the calendar. Conversation drafts are never
// persisted; only completed bookings reach the store.
package store

import (
	"strings"
	"sync"

	"github.com/BTreeMap/RoomPipe/internal/models"
)

// Store is the booking ledger abstraction.
type Store interface {
	// AddBooking appends a booking record to the ledger.
	AddBooking(record models.BookingRecord) error

	// ListBookings returns all recorded bookings, newest first.
	ListBookings() ([]models.BookingRecord, error)

	// Close releases any resources held by the backend.
	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithDSN sets the database connection string.
func WithDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// DetectDSNType reports which driver a DSN belongs to: "postgres" for
// PostgreSQL connection strings, "sqlite3" for everything else (file paths).
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite3"
}

// InMemoryStore is a simple in-memory ledger, used in tests and when no DSN
// is configured.
type InMemoryStore struct {
	mu      sync.Mutex
	records []models.BookingRecord
}

// NewInMemoryStore creates an empty in-memory ledger.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) AddBooking(record models.BookingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return nil
}

func (s *InMemoryStore) ListBookings() ([]models.BookingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.BookingRecord, len(s.records))
	for i, r := range s.records {
		out[len(s.records)-1-i] = r
	}
	return out, nil
}

func (s *InMemoryStore) Close() error {
	return nil
}
