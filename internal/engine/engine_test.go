package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/BTreeMap/RoomPipe/internal/clock"
	"github.com/BTreeMap/RoomPipe/internal/models"
	"github.com/BTreeMap/RoomPipe/internal/session"
)

var (
	testRooms = []string{"Room A", "Room B"}
	testSlots = []string{"08:00", "09:00", "10:00"}
	testNow   = time.Date(2026, 8, 31, 9, 30, 0, 0, time.UTC)
)

// fakeAggregator is a scripted calendar collaborator.
type fakeAggregator struct {
	status    map[string]bool
	degraded  bool
	statusErr error
	createErr error
	created   []models.BookingDraft
}

func (f *fakeAggregator) RoomStatus(ctx context.Context, date string, startSlot, endSlot int) (map[string]bool, bool, error) {
	if f.statusErr != nil {
		return nil, false, f.statusErr
	}
	status := make(map[string]bool, len(testRooms))
	for _, room := range testRooms {
		status[room] = true
	}
	for room, avail := range f.status {
		status[room] = avail
	}
	return status, f.degraded, nil
}

func (f *fakeAggregator) CreateBooking(ctx context.Context, draft *models.BookingDraft) (*models.BookingRecord, error) {
	f.created = append(f.created, *draft)
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &models.BookingRecord{
		ID:            "rec_1",
		Room:          testRooms[draft.RoomIndex],
		Date:          draft.Date,
		StartLabel:    testSlots[draft.StartSlot],
		EndLabel:      testSlots[draft.EndSlot],
		DurationHours: draft.DurationHours(),
		Name:          draft.DisplayName,
		Department:    draft.Department,
		Agenda:        draft.Agenda,
		ContactID:     draft.ContactID,
		CreatedAt:     testNow,
	}, nil
}

// fakeLedger records bookings in memory.
type fakeLedger struct {
	records []models.BookingRecord
	err     error
}

func (f *fakeLedger) AddBooking(r models.BookingRecord) error {
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, r)
	return nil
}

func newTestEngine(agg Aggregator, ledger Ledger) (*Engine, *session.Store) {
	sessions := session.NewStore(session.DefaultTTL, clock.NewFixed(testNow))
	opts := []Option{WithClock(clock.NewFixed(testNow)), WithLocation(time.UTC)}
	if ledger != nil {
		opts = append(opts, WithLedger(ledger))
	}
	return New(sessions, agg, testRooms, testSlots, opts...), sessions
}

func startSession(t *testing.T, e *Engine, chatID int64) models.Reply {
	t.Helper()
	reply := e.HandleCommand(context.Background(), models.CommandEvent{
		ChatID:      chatID,
		Command:     "/start",
		DisplayName: "Ana",
		ContactID:   "42",
		Time:        testNow,
	})
	if reply.Kind != models.ReplySend {
		t.Fatalf("expected send reply for /start, got %q", reply.Kind)
	}
	return reply
}

// press decodes the first button whose label contains want and feeds it back
// into the engine as a callback event, the way the transport would.
func press(t *testing.T, e *Engine, reply models.Reply, want string) models.Reply {
	t.Helper()
	button, ok := findButton(reply, want)
	if !ok {
		t.Fatalf("no button with label containing %q in %v", want, labels(reply))
	}
	return e.HandleCallback(context.Background(), callbackFor(reply, button))
}

func callbackFor(reply models.Reply, button models.Button) models.CallbackEvent {
	ev, err := models.DecodeCallback(button.Data)
	if err != nil {
		panic(fmt.Sprintf("button payload failed to decode: %v", err))
	}
	ev.ChatID = reply.ChatID
	ev.MessageID = reply.MessageID
	if ev.MessageID == 0 {
		ev.MessageID = 100
	}
	ev.Time = testNow
	return ev
}

func findButton(reply models.Reply, want string) (models.Button, bool) {
	for _, row := range reply.Keyboard {
		for _, b := range row {
			if strings.Contains(b.Label, want) {
				return b, true
			}
		}
	}
	return models.Button{}, false
}

func labels(reply models.Reply) []string {
	var out []string
	for _, row := range reply.Keyboard {
		for _, b := range row {
			out = append(out, b.Label)
		}
	}
	return out
}

func sendText(e *Engine, chatID int64, body string) models.Reply {
	return e.HandleText(context.Background(), models.TextEvent{ChatID: chatID, Body: body, Time: testNow})
}

func TestStartCreatesSessionWithWelcomePrompt(t *testing.T) {
	e, sessions := newTestEngine(&fakeAggregator{}, nil)
	reply := startSession(t, e, 7)

	if !strings.Contains(reply.Body, "Welcome") {
		t.Errorf("unexpected welcome body: %q", reply.Body)
	}
	if len(reply.Keyboard) != 1 || len(reply.Keyboard[0]) != 1 {
		t.Fatalf("expected a single begin button, got %v", labels(reply))
	}
	ev, err := models.DecodeCallback(reply.Keyboard[0][0].Data)
	if err != nil || ev.Action != models.ActionBeginDates {
		t.Errorf("expected begin-dates payload, got %v (err=%v)", ev, err)
	}
	if sessions.Len() != 1 {
		t.Errorf("expected one live session, got %d", sessions.Len())
	}
}

func TestEventsWithoutSessionAreRejected(t *testing.T) {
	e, _ := newTestEngine(&fakeAggregator{}, nil)

	reply := e.HandleCallback(context.Background(), models.CallbackEvent{
		ChatID: 7, Action: models.ActionBeginDates, Nonce: "whatever",
	})
	if reply.Kind != models.ReplySend || !strings.Contains(reply.Body, "expired") {
		t.Errorf("expected session-expired reply, got %+v", reply)
	}

	reply = sendText(e, 7, "Ana")
	if reply.Kind != models.ReplySend || !strings.Contains(reply.Body, "expired") {
		t.Errorf("expected session-expired reply for text, got %+v", reply)
	}
}

func TestDateSelectionOffersSevenDays(t *testing.T) {
	e, _ := newTestEngine(&fakeAggregator{}, nil)
	welcome := startSession(t, e, 7)
	reply := press(t, e, welcome, "Choose a date")

	if reply.Kind != models.ReplyEdit {
		t.Errorf("expected edit reply, got %q", reply.Kind)
	}
	if len(reply.Keyboard) != DateChoiceCount {
		t.Fatalf("expected %d date rows, got %d", DateChoiceCount, len(reply.Keyboard))
	}
	for i, row := range reply.Keyboard {
		ev, err := models.DecodeCallback(row[0].Data)
		if err != nil {
			t.Fatalf("row %d payload: %v", i, err)
		}
		want := testNow.AddDate(0, 0, i).Format("2006-01-02")
		if ev.Date != want {
			t.Errorf("row %d: expected date %s, got %s", i, want, ev.Date)
		}
	}
}

func TestStartTimeNeverOffersClosingBoundary(t *testing.T) {
	e, _ := newTestEngine(&fakeAggregator{}, nil)
	reply := press(t, e, startSession(t, e, 7), "Choose a date")
	reply = press(t, e, reply, "Mon, 31 Aug")

	if len(reply.Keyboard) != len(testSlots)-1 {
		t.Fatalf("expected %d start options, got %d", len(testSlots)-1, len(reply.Keyboard))
	}
	if _, ok := findButton(reply, testSlots[len(testSlots)-1]); ok {
		t.Error("closing boundary offered as a start time")
	}
}

func TestEndTimeOffersLaterSlotsWithDurations(t *testing.T) {
	e, _ := newTestEngine(&fakeAggregator{}, nil)
	reply := press(t, e, startSession(t, e, 7), "Choose a date")
	reply = press(t, e, reply, "Mon, 31 Aug")
	reply = press(t, e, reply, "08:00")

	if len(reply.Keyboard) != 2 {
		t.Fatalf("expected end options {09:00, 10:00}, got %v", labels(reply))
	}
	if _, ok := findButton(reply, "09:00 (1h)"); !ok {
		t.Errorf("missing 09:00 with 1h duration in %v", labels(reply))
	}
	if _, ok := findButton(reply, "10:00 (2h)"); !ok {
		t.Errorf("missing 10:00 with 2h duration in %v", labels(reply))
	}
}

func TestAvailabilityListsAllRoomsButOnlyOffersAvailable(t *testing.T) {
	agg := &fakeAggregator{status: map[string]bool{"Room A": false}}
	e, _ := newTestEngine(agg, nil)
	reply := press(t, e, startSession(t, e, 7), "Choose a date")
	reply = press(t, e, reply, "Mon, 31 Aug")
	reply = press(t, e, reply, "08:00")
	reply = press(t, e, reply, "10:00")

	if !strings.Contains(reply.Body, "❌ Occupied - *Room A*") {
		t.Errorf("occupied room not listed: %q", reply.Body)
	}
	if !strings.Contains(reply.Body, "✅ Available - *Room B*") {
		t.Errorf("available room not listed: %q", reply.Body)
	}
	if _, ok := findButton(reply, "Room A"); ok {
		t.Error("unavailable room offered as a booking choice")
	}
	if _, ok := findButton(reply, "Book Room B"); !ok {
		t.Errorf("available room not offered: %v", labels(reply))
	}
}

func TestAvailabilityDegradedShowsUnverifiedNotice(t *testing.T) {
	agg := &fakeAggregator{degraded: true}
	e, _ := newTestEngine(agg, nil)
	reply := press(t, e, startSession(t, e, 7), "Choose a date")
	reply = press(t, e, reply, "Mon, 31 Aug")
	reply = press(t, e, reply, "08:00")
	reply = press(t, e, reply, "10:00")

	if !strings.Contains(reply.Body, "unverified") {
		t.Errorf("expected unverified notice on degraded result: %q", reply.Body)
	}
	// Fail-open still offers every room.
	if _, ok := findButton(reply, "Book Room A"); !ok {
		t.Errorf("expected Room A offered on fail-open: %v", labels(reply))
	}
}

func TestStaleKeyboardPressIsRejected(t *testing.T) {
	e, _ := newTestEngine(&fakeAggregator{}, nil)
	welcome := startSession(t, e, 7)
	dates := press(t, e, welcome, "Choose a date")

	// Press the superseded welcome button again.
	stale, _ := findButton(welcome, "Choose a date")
	reply := e.HandleCallback(context.Background(), callbackFor(welcome, stale))
	if reply.Kind != models.ReplyNone || reply.Notice == "" {
		t.Errorf("expected silent rejection with a notice, got %+v", reply)
	}

	// The current keyboard still works.
	next := press(t, e, dates, "Mon, 31 Aug")
	if next.Kind != models.ReplyEdit {
		t.Errorf("current keyboard stopped working: %+v", next)
	}
}

func TestEventForWrongStepIsIgnored(t *testing.T) {
	e, sessions := newTestEngine(&fakeAggregator{}, nil)
	dates := press(t, e, startSession(t, e, 7), "Choose a date")

	// Craft a room-booking press with the current nonce while the draft is
	// still selecting a date.
	button, _ := findButton(dates, "Mon, 31 Aug")
	ev := callbackFor(dates, button)
	ev.Action = models.ActionBookRoom
	ev.Room = 0
	reply := e.HandleCallback(context.Background(), ev)
	if reply.Kind != models.ReplyNone {
		t.Errorf("expected event ignored, got %+v", reply)
	}

	draft, release, ok := sessions.Acquire(7)
	if !ok {
		t.Fatal("expected live draft")
	}
	defer release()
	if draft.Step != models.StepSelectDate || draft.RoomIndex != models.SlotUnset {
		t.Errorf("draft mutated by wrong-step event: %+v", draft)
	}
}

func TestFreeTextIgnoredOutsideEnterSteps(t *testing.T) {
	e, sessions := newTestEngine(&fakeAggregator{}, nil)
	startSession(t, e, 7)

	reply := sendText(e, 7, "hello there")
	if reply.Kind != models.ReplyNone {
		t.Errorf("expected free text ignored, got %+v", reply)
	}
	draft, release, _ := sessions.Acquire(7)
	defer release()
	if draft.Step != models.StepStart {
		t.Errorf("free text advanced the draft to %s", draft.Step)
	}
}

func TestCommandsNeverTreatedAsFieldInput(t *testing.T) {
	agg := &fakeAggregator{}
	e, sessions := newTestEngine(agg, nil)
	reply := press(t, e, startSession(t, e, 7), "Choose a date")
	reply = press(t, e, reply, "Mon, 31 Aug")
	reply = press(t, e, reply, "08:00")
	reply = press(t, e, reply, "10:00")
	press(t, e, reply, "Book Room B")

	if got := sendText(e, 7, "/cancelish"); got.Kind != models.ReplyNone {
		t.Errorf("command-shaped text consumed as a name: %+v", got)
	}
	draft, release, _ := sessions.Acquire(7)
	defer release()
	if draft.DisplayName != "Ana" {
		t.Errorf("display name overwritten by command text: %q", draft.DisplayName)
	}
}

func TestFullHappyPath(t *testing.T) {
	agg := &fakeAggregator{}
	ledger := &fakeLedger{}
	e, sessions := newTestEngine(agg, ledger)

	reply := press(t, e, startSession(t, e, 7), "Choose a date")
	reply = press(t, e, reply, "Mon, 31 Aug")
	reply = press(t, e, reply, "08:00")
	reply = press(t, e, reply, "10:00")
	reply = press(t, e, reply, "Book Room B")
	if !strings.Contains(reply.Body, "name") {
		t.Fatalf("expected name prompt, got %q", reply.Body)
	}

	reply = sendText(e, 7, "Ana")
	if !strings.Contains(reply.Body, "department") {
		t.Fatalf("expected department prompt, got %q", reply.Body)
	}
	reply = sendText(e, 7, "Ops")
	if !strings.Contains(reply.Body, "agenda") {
		t.Fatalf("expected agenda prompt, got %q", reply.Body)
	}
	reply = sendText(e, 7, "Sync")

	for _, want := range []string{"Booking confirmed", "Mon, 31 Aug 2026", "Room B", "08:00 - 10:00", "2h", "Ana", "Ops", "Sync"} {
		if !strings.Contains(reply.Body, want) {
			t.Errorf("confirmation missing %q: %q", want, reply.Body)
		}
	}

	if len(agg.created) != 1 {
		t.Fatalf("expected one booking created, got %d", len(agg.created))
	}
	created := agg.created[0]
	if created.Date != "2026-08-31" || created.StartSlot != 0 || created.EndSlot != 2 || created.RoomIndex != 1 {
		t.Errorf("unexpected draft sent to aggregator: %+v", created)
	}
	if created.ContactID != "42" {
		t.Errorf("contact id lost: %q", created.ContactID)
	}

	if len(ledger.records) != 1 || ledger.records[0].Room != "Room B" {
		t.Errorf("booking not recorded in ledger: %+v", ledger.records)
	}

	// The draft is destroyed; the next event needs a fresh /start.
	if sessions.Len() != 0 {
		t.Errorf("expected no live sessions, got %d", sessions.Len())
	}
	if got := sendText(e, 7, "anything"); !strings.Contains(got.Body, "expired") {
		t.Errorf("expected session-expired after completion, got %+v", got)
	}
}

func TestBookingFailureSurfacesDetailAndDestroysDraft(t *testing.T) {
	agg := &fakeAggregator{createErr: errors.New("calendar API error 403: calendar not shared")}
	e, sessions := newTestEngine(agg, nil)

	reply := press(t, e, startSession(t, e, 7), "Choose a date")
	reply = press(t, e, reply, "Mon, 31 Aug")
	reply = press(t, e, reply, "08:00")
	reply = press(t, e, reply, "10:00")
	press(t, e, reply, "Book Room B")
	sendText(e, 7, "Ana")
	sendText(e, 7, "Ops")
	reply = sendText(e, 7, "Sync")

	if !strings.Contains(reply.Body, "calendar not shared") {
		t.Errorf("failure detail not surfaced: %q", reply.Body)
	}
	if !strings.Contains(reply.Body, "/start") {
		t.Errorf("restart hint missing: %q", reply.Body)
	}
	if sessions.Len() != 0 {
		t.Error("expected draft destroyed after failed booking")
	}
}

func TestLedgerFailureDoesNotFailBooking(t *testing.T) {
	agg := &fakeAggregator{}
	e, _ := newTestEngine(agg, &fakeLedger{err: errors.New("disk full")})

	reply := press(t, e, startSession(t, e, 7), "Choose a date")
	reply = press(t, e, reply, "Mon, 31 Aug")
	reply = press(t, e, reply, "08:00")
	reply = press(t, e, reply, "10:00")
	press(t, e, reply, "Book Room B")
	sendText(e, 7, "Ana")
	sendText(e, 7, "Ops")
	reply = sendText(e, 7, "Sync")

	if !strings.Contains(reply.Body, "Booking confirmed") {
		t.Errorf("ledger failure leaked to the user: %q", reply.Body)
	}
}

func TestProcessingErrorPreservesDraft(t *testing.T) {
	agg := &fakeAggregator{statusErr: errors.New("slot index out of range")}
	e, sessions := newTestEngine(agg, nil)

	reply := press(t, e, startSession(t, e, 7), "Choose a date")
	reply = press(t, e, reply, "Mon, 31 Aug")
	reply = press(t, e, reply, "08:00")
	reply = press(t, e, reply, "10:00")

	if reply.Kind != models.ReplySend || !strings.Contains(reply.Body, "Something went wrong") {
		t.Errorf("expected generic processing error, got %+v", reply)
	}

	draft, release, ok := sessions.Acquire(7)
	if !ok {
		t.Fatal("draft destroyed by processing error")
	}
	defer release()
	if draft.Step != models.StepSelectEndTime {
		t.Errorf("expected draft back at end-time selection, got %s", draft.Step)
	}
}

func TestCancelClearsSession(t *testing.T) {
	e, sessions := newTestEngine(&fakeAggregator{}, nil)
	startSession(t, e, 7)

	reply := e.HandleCommand(context.Background(), models.CommandEvent{ChatID: 7, Command: "/cancel"})
	if !strings.Contains(reply.Body, "cleared") {
		t.Errorf("unexpected cancel reply: %q", reply.Body)
	}
	if sessions.Len() != 0 {
		t.Error("expected session removed by /cancel")
	}
}

func TestRestartReplacesDraft(t *testing.T) {
	e, _ := newTestEngine(&fakeAggregator{}, nil)
	reply := press(t, e, startSession(t, e, 7), "Choose a date")
	press(t, e, reply, "Mon, 31 Aug")

	// A second /start discards progress and begins over.
	welcome := startSession(t, e, 7)
	if !strings.Contains(welcome.Body, "Welcome") {
		t.Errorf("expected fresh welcome, got %q", welcome.Body)
	}
	dates := press(t, e, welcome, "Choose a date")
	if dates.Kind != models.ReplyEdit || len(dates.Keyboard) != DateChoiceCount {
		t.Errorf("fresh session not at start step: %+v", dates)
	}
}
