package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/BTreeMap/RoomPipe/internal/models"
	"github.com/BTreeMap/RoomPipe/internal/store"
	"github.com/BTreeMap/RoomPipe/internal/testutil"
)

type failingLedger struct{}

func (failingLedger) AddBooking(models.BookingRecord) error          { return errors.New("boom") }
func (failingLedger) ListBookings() ([]models.BookingRecord, error) { return nil, errors.New("boom") }
func (failingLedger) Close() error                                  { return nil }

func TestLivenessEndpoint(t *testing.T) {
	srv := NewServer()
	rr := testutil.PerformRequest(t, srv.Handler(), http.MethodGet, "/")
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "liveness")
	if !strings.Contains(rr.Body.String(), "RoomPipe is running") {
		t.Errorf("unexpected liveness body: %q", rr.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := NewServer()
	rr := testutil.PerformRequest(t, srv.Handler(), http.MethodGet, "/metrics")
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "metrics")
}

func TestListBookings(t *testing.T) {
	ledger := store.NewInMemoryStore()
	if err := ledger.AddBooking(testutil.SampleBooking("b1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	srv := NewServer(WithLedger(ledger))

	rr := testutil.PerformRequest(t, srv.Handler(), http.MethodGet, "/bookings")
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "list bookings")
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected JSON content type, got %q", ct)
	}

	var records []models.BookingRecord
	if err := json.NewDecoder(rr.Body).Decode(&records); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(records) != 1 || records[0].ID != "b1" || records[0].Room != "Room A" {
		t.Errorf("unexpected records: %+v", records)
	}
}

func TestListBookingsEmpty(t *testing.T) {
	srv := NewServer(WithLedger(store.NewInMemoryStore()))
	rr := testutil.PerformRequest(t, srv.Handler(), http.MethodGet, "/bookings")
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "empty bookings")
	if got := strings.TrimSpace(rr.Body.String()); got != "[]" {
		t.Errorf("expected empty JSON array, got %q", got)
	}
}

func TestListBookingsWithoutLedger(t *testing.T) {
	srv := NewServer()
	rr := testutil.PerformRequest(t, srv.Handler(), http.MethodGet, "/bookings")
	testutil.AssertHTTPStatus(t, http.StatusServiceUnavailable, rr.Code, "no ledger")
}

func TestListBookingsLedgerFailure(t *testing.T) {
	srv := NewServer(WithLedger(failingLedger{}))
	rr := testutil.PerformRequest(t, srv.Handler(), http.MethodGet, "/bookings")
	testutil.AssertHTTPStatus(t, http.StatusInternalServerError, rr.Code, "ledger failure")
}
