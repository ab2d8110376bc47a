package testutil

import (
	"net/http"
	"testing"
)

func TestPerformRequest(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ping" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	rr := PerformRequest(t, handler, http.MethodGet, "/ping")
	AssertHTTPStatus(t, http.StatusNoContent, rr.Code, "ping")

	rr = PerformRequest(t, handler, http.MethodGet, "/missing")
	AssertHTTPStatus(t, http.StatusNotFound, rr.Code, "missing path")
}

func TestSampleBooking(t *testing.T) {
	b := SampleBooking("b1")
	if b.ID != "b1" || b.Room == "" || b.DurationHours != 2 {
		t.Errorf("unexpected sample booking: %+v", b)
	}
}
