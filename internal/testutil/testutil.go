// Package testutil provides common test utilities and helpers for RoomPipe tests.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BTreeMap/RoomPipe/internal/models"
)

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t *testing.T, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// PerformRequest executes an HTTP request against a handler and returns the recorder.
func PerformRequest(t *testing.T, handler http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

// SampleBooking returns a fully populated booking record for test fixtures.
func SampleBooking(id string) models.BookingRecord {
	return models.BookingRecord{
		ID:            id,
		Room:          "Room A",
		Date:          "2026-09-01",
		StartLabel:    "09:00",
		EndLabel:      "11:00",
		DurationHours: 2,
		Name:          "Ana",
		Department:    "Ops",
		Agenda:        "Quarterly sync",
		ContactID:     "42",
		CreatedAt:     time.Date(2026, 8, 31, 9, 30, 0, 0, time.UTC),
	}
}
