// Package engine implements the booking conversation state machine.
//
// Each inbound event is classified against the chat's current step and
// produces the next step plus an outbound rendering instruction. Terminal
// steps call into the calendar aggregator to fetch room status and to
// persist the confirmed booking. Failures are caught at the per-event
// boundary: nothing here is fatal to the process, and a failed turn leaves
// the draft at its prior step so the user can retry.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BTreeMap/RoomPipe/internal/clock"
	"github.com/BTreeMap/RoomPipe/internal/models"
	"github.com/BTreeMap/RoomPipe/internal/observability"
	"github.com/BTreeMap/RoomPipe/internal/session"
	"github.com/BTreeMap/RoomPipe/internal/util"
)

// DateChoiceCount is how many calendar days the date prompt offers,
// starting today.
const DateChoiceCount = 7

// Aggregator is the calendar collaborator as seen by the engine.
type Aggregator interface {
	// RoomStatus maps every configured room to availability for the window.
	// degraded reports a fail-open result after a collaborator error.
	RoomStatus(ctx context.Context, date string, startSlot, endSlot int) (status map[string]bool, degraded bool, err error)

	// CreateBooking persists the draft and returns its ledger record.
	CreateBooking(ctx context.Context, draft *models.BookingDraft) (*models.BookingRecord, error)
}

// Ledger records successful bookings, best-effort.
type Ledger interface {
	AddBooking(record models.BookingRecord) error
}

// Engine is the per-chat conversation state machine.
type Engine struct {
	sessions *session.Store
	agg      Aggregator
	rooms    []string
	slots    []string
	ledger   Ledger
	metrics  *observability.Metrics
	clk      clock.Clock
	loc      *time.Location
}

// Option defines a configuration option for the engine.
type Option func(*Engine)

// WithLedger attaches a booking ledger. Ledger writes are best-effort and
// never fail the conversation.
func WithLedger(l Ledger) Option {
	return func(e *Engine) {
		e.ledger = l
	}
}

// WithMetrics attaches Prometheus instruments.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithClock substitutes the time source, for tests.
func WithClock(clk clock.Clock) Option {
	return func(e *Engine) {
		e.clk = clk
	}
}

// WithLocation sets the timezone used to anchor the rolling date offer.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		e.loc = loc
	}
}

// New creates a conversation engine over the given session store, calendar
// aggregator and static room/slot configuration.
func New(sessions *session.Store, agg Aggregator, rooms, slots []string, opts ...Option) *Engine {
	e := &Engine{
		sessions: sessions,
		agg:      agg,
		rooms:    rooms,
		slots:    slots,
		clk:      clock.NewSystem(),
		loc:      time.Local,
	}
	for _, opt := range opts {
		opt(e)
	}
	slog.Debug("Engine.New: engine created", "rooms", len(rooms), "slots", len(slots), "ledger_set", e.ledger != nil)
	return e
}

// HandleCommand processes a bot command (/start, /cancel).
func (e *Engine) HandleCommand(ctx context.Context, ev models.CommandEvent) models.Reply {
	e.countEvent("command")

	switch strings.ToLower(strings.TrimPrefix(ev.Command, "/")) {
	case "start":
		name := ev.DisplayName
		if name == "" {
			name = "User"
		}
		draft := models.NewBookingDraft(ev.ChatID, name, ev.ContactID, util.GeneratePromptNonce(), e.clk.Now())
		e.sessions.Begin(draft)
		e.updateSessionGauge()
		slog.Info("Engine.HandleCommand: session started", "chatID", ev.ChatID)
		return e.welcomeReply(draft)
	case "cancel":
		e.sessions.End(ev.ChatID)
		e.updateSessionGauge()
		slog.Info("Engine.HandleCommand: session cancelled", "chatID", ev.ChatID)
		return models.Reply{
			Kind:   models.ReplySend,
			ChatID: ev.ChatID,
			Body:   "Session cleared. Send /start to begin a new booking.",
		}
	default:
		slog.Debug("Engine.HandleCommand: ignoring unknown command", "chatID", ev.ChatID, "command", ev.Command)
		return models.Reply{Kind: models.ReplyNone, ChatID: ev.ChatID}
	}
}

// HandleCallback processes a button press.
func (e *Engine) HandleCallback(ctx context.Context, ev models.CallbackEvent) models.Reply {
	e.countEvent("callback")

	draft, release, ok := e.sessions.Acquire(ev.ChatID)
	if !ok {
		// Expired or never-started sessions are not an error condition.
		slog.Debug("Engine.HandleCallback: no session", "chatID", ev.ChatID, "action", ev.Action)
		return e.sessionExpiredReply(ev.ChatID)
	}
	defer release()

	reply, err := e.handleCallbackLocked(ctx, draft, ev)
	if err != nil {
		slog.Error("Engine.HandleCallback: processing failed, draft preserved",
			"error", err, "chatID", ev.ChatID, "step", draft.Step, "action", ev.Action)
		return e.processingErrorReply(ev.ChatID)
	}
	return reply
}

func (e *Engine) handleCallbackLocked(ctx context.Context, draft *models.BookingDraft, ev models.CallbackEvent) (models.Reply, error) {
	if ev.Nonce != draft.PromptNonce {
		// A button from a superseded keyboard. Reject it instead of letting
		// it parse against whatever the current step happens to be.
		slog.Debug("Engine: stale keyboard press rejected", "chatID", ev.ChatID, "action", ev.Action, "step", draft.Step)
		return models.Reply{
			Kind:   models.ReplyNone,
			ChatID: ev.ChatID,
			Notice: "That menu is out of date. Use the buttons on the latest message.",
		}, nil
	}

	switch ev.Action {
	case models.ActionBeginDates:
		if draft.Step != models.StepStart {
			return e.ignored(draft, ev), nil
		}
		draft.Step = models.StepSelectDate
		draft.UpdatedAt = e.clk.Now()
		return e.dateSelectionReply(draft, ev.MessageID), nil

	case models.ActionSelectDate:
		if draft.Step != models.StepSelectDate {
			return e.ignored(draft, ev), nil
		}
		if _, err := time.Parse("2006-01-02", ev.Date); err != nil {
			return models.Reply{}, fmt.Errorf("bad date in payload: %w", err)
		}
		draft.Date = ev.Date
		draft.Step = models.StepSelectStartTime
		draft.UpdatedAt = e.clk.Now()
		return e.startTimeReply(draft, ev.MessageID), nil

	case models.ActionSelectStart:
		if draft.Step != models.StepSelectStartTime {
			return e.ignored(draft, ev), nil
		}
		// The last slot is the closing boundary, never a valid start.
		if ev.Slot < 0 || ev.Slot >= len(e.slots)-1 {
			return models.Reply{}, fmt.Errorf("start slot %d out of range", ev.Slot)
		}
		draft.StartSlot = ev.Slot
		draft.Step = models.StepSelectEndTime
		draft.UpdatedAt = e.clk.Now()
		return e.endTimeReply(draft, ev.MessageID), nil

	case models.ActionSelectEnd:
		if draft.Step != models.StepSelectEndTime {
			return e.ignored(draft, ev), nil
		}
		if ev.Slot <= draft.StartSlot || ev.Slot > len(e.slots)-1 {
			return models.Reply{}, fmt.Errorf("end slot %d invalid for start %d", ev.Slot, draft.StartSlot)
		}
		draft.EndSlot = ev.Slot
		draft.Step = models.StepViewAvailability
		draft.UpdatedAt = e.clk.Now()

		status, degraded, err := e.agg.RoomStatus(ctx, draft.Date, draft.StartSlot, draft.EndSlot)
		if err != nil {
			// Invalid input, not a collaborator failure. Roll the step back
			// so the user can pick the end time again.
			draft.Step = models.StepSelectEndTime
			draft.EndSlot = models.SlotUnset
			return models.Reply{}, err
		}
		e.countAvailability(degraded)
		return e.availabilityReply(draft, ev.MessageID, status, degraded), nil

	case models.ActionBookRoom:
		if draft.Step != models.StepViewAvailability {
			return e.ignored(draft, ev), nil
		}
		if ev.Room < 0 || ev.Room >= len(e.rooms) {
			return models.Reply{}, fmt.Errorf("room index %d out of range", ev.Room)
		}
		draft.RoomIndex = ev.Room
		draft.Step = models.StepEnterName
		draft.UpdatedAt = e.clk.Now()
		return models.Reply{
			Kind:   models.ReplySend,
			ChatID: draft.ChatID,
			Body:   "✏️ Please enter your *name*:",
		}, nil

	default:
		return e.ignored(draft, ev), nil
	}
}

// HandleText processes a free-text message. Text is only consulted in the
// three Enter* steps; anything else is ignored.
func (e *Engine) HandleText(ctx context.Context, ev models.TextEvent) models.Reply {
	e.countEvent("text")

	body := strings.TrimSpace(ev.Body)
	if body == "" || strings.HasPrefix(body, "/") {
		// Commands are never treated as field input.
		return models.Reply{Kind: models.ReplyNone, ChatID: ev.ChatID}
	}

	draft, release, ok := e.sessions.Acquire(ev.ChatID)
	if !ok {
		slog.Debug("Engine.HandleText: no session", "chatID", ev.ChatID)
		return e.sessionExpiredReply(ev.ChatID)
	}
	defer release()

	switch draft.Step {
	case models.StepEnterName, models.StepEnterDepartment, models.StepEnterAgenda:
		if len(body) > models.MaxFreeTextLength {
			slog.Debug("Engine.HandleText: reply too long", "chatID", ev.ChatID, "length", len(body))
			return models.Reply{
				Kind:   models.ReplySend,
				ChatID: ev.ChatID,
				Body:   fmt.Sprintf("That reply is too long (max %d characters). Please try again.", models.MaxFreeTextLength),
			}
		}
	default:
		slog.Debug("Engine.HandleText: free text ignored for step", "chatID", ev.ChatID, "step", draft.Step)
		return models.Reply{Kind: models.ReplyNone, ChatID: ev.ChatID}
	}

	switch draft.Step {
	case models.StepEnterName:
		draft.DisplayName = body
		draft.Step = models.StepEnterDepartment
		draft.UpdatedAt = e.clk.Now()
		return models.Reply{
			Kind:   models.ReplySend,
			ChatID: ev.ChatID,
			Body:   "🏢 Please enter your *department*:",
		}
	case models.StepEnterDepartment:
		draft.Department = body
		draft.Step = models.StepEnterAgenda
		draft.UpdatedAt = e.clk.Now()
		return models.Reply{
			Kind:   models.ReplySend,
			ChatID: ev.ChatID,
			Body:   "📋 Please enter the meeting *agenda*:",
		}
	case models.StepEnterAgenda:
		draft.Agenda = body
		draft.UpdatedAt = e.clk.Now()
		return e.completeBooking(ctx, draft)
	}
	return models.Reply{Kind: models.ReplyNone, ChatID: ev.ChatID}
}

// completeBooking persists the draft via the aggregator. Success and failure
// both destroy the draft; a failed booking requires a fresh /start.
func (e *Engine) completeBooking(ctx context.Context, draft *models.BookingDraft) models.Reply {
	record, err := e.agg.CreateBooking(ctx, draft)
	e.sessions.End(draft.ChatID)
	e.updateSessionGauge()

	if err != nil {
		e.countBooking("failure")
		slog.Error("Engine.completeBooking: booking failed", "error", err, "chatID", draft.ChatID, "date", draft.Date)
		return models.Reply{
			Kind:   models.ReplySend,
			ChatID: draft.ChatID,
			Body:   fmt.Sprintf("❌ Sorry, the booking could not be created: %v\n\nSend /start to try again.", err),
		}
	}

	if e.ledger != nil {
		if err := e.ledger.AddBooking(*record); err != nil {
			// The calendar write already succeeded; losing the ledger entry
			// must not fail the user's booking.
			slog.Warn("Engine.completeBooking: ledger write failed", "error", err, "recordID", record.ID)
		}
	}
	e.countBooking("success")
	slog.Info("Engine.completeBooking: booking confirmed",
		"chatID", draft.ChatID, "room", record.Room, "date", record.Date,
		"start", record.StartLabel, "end", record.EndLabel)
	return e.confirmationReply(draft.ChatID, record)
}

// ignored drops an event whose action does not match the current step, such
// as a re-delivered press from an already-consumed keyboard.
func (e *Engine) ignored(draft *models.BookingDraft, ev models.CallbackEvent) models.Reply {
	slog.Debug("Engine: event ignored for step", "chatID", ev.ChatID, "action", ev.Action, "step", draft.Step)
	return models.Reply{Kind: models.ReplyNone, ChatID: ev.ChatID}
}

func (e *Engine) sessionExpiredReply(chatID int64) models.Reply {
	return models.Reply{
		Kind:   models.ReplySend,
		ChatID: chatID,
		Body:   "Your session has expired. Send /start to begin again.",
	}
}

func (e *Engine) processingErrorReply(chatID int64) models.Reply {
	return models.Reply{
		Kind:   models.ReplySend,
		ChatID: chatID,
		Body:   "⚠️ Something went wrong while processing your request. Please try again.",
	}
}

func (e *Engine) countEvent(kind string) {
	if e.metrics != nil {
		e.metrics.Events.WithLabelValues(kind).Inc()
	}
}

func (e *Engine) countAvailability(degraded bool) {
	if e.metrics == nil {
		return
	}
	result := "ok"
	if degraded {
		result = "degraded"
	}
	e.metrics.AvailabilityQueries.WithLabelValues(result).Inc()
}

func (e *Engine) countBooking(result string) {
	if e.metrics != nil {
		e.metrics.Bookings.WithLabelValues(result).Inc()
	}
}

func (e *Engine) updateSessionGauge() {
	if e.metrics != nil {
		e.metrics.ActiveSessions.Set(float64(e.sessions.Len()))
	}
}
