// Package models defines the core data structures for RoomPipe.
//
// It includes the inbound event variants produced by the transport, the
// outbound reply instruction consumed by it, and the booking record shared
// with the store module.
package models

import (
	"errors"
	"time"
)

// Validation constants for input validation
const (
	// MaxFreeTextLength defines the maximum accepted length for free-text
	// replies (name, department, agenda).
	MaxFreeTextLength = 256
)

// Error variables for better error handling and testability
var (
	ErrBadCallbackPayload = errors.New("callback payload is malformed")
	ErrUnknownAction      = errors.New("unknown callback action")
	ErrFreeTextTooLong    = errors.New("free-text reply exceeds maximum length")
)

// CommandEvent is an inbound bot command (for example /start or /cancel),
// carrying the chat it originated from and a display name hint from the
// transport.
type CommandEvent struct {
	ChatID      int64
	Command     string
	DisplayName string
	// ContactID is the requester identity as reported by the transport.
	ContactID string
	Time      time.Time
}

// TextEvent is an inbound free-text message.
type TextEvent struct {
	ChatID int64
	Body   string
	Time   time.Time
}

// CallbackEvent is an inbound button press, decoded from the wire payload
// into a typed action at the transport boundary.
type CallbackEvent struct {
	ChatID     int64
	MessageID  int
	CallbackID string
	Action     CallbackAction
	Nonce      string
	// Exactly one of the following carries the action parameter.
	Date string // ActionSelectDate: calendar date, YYYY-MM-DD
	Slot int    // ActionSelectStart / ActionSelectEnd: time-slot index
	Room int    // ActionBookRoom: room index
	Time time.Time
}

// ReplyKind selects how the transport should deliver a reply.
type ReplyKind string

const (
	// ReplyNone means the event was consumed without a visible reply.
	ReplyNone ReplyKind = "none"
	// ReplySend delivers the body as a new message.
	ReplySend ReplyKind = "send"
	// ReplyEdit replaces the body and keyboard of an existing message.
	ReplyEdit ReplyKind = "edit"
)

// Button is one labeled choice on an inline keyboard. Data carries the
// encoded callback payload.
type Button struct {
	Label string
	Data  string
}

// Reply is the rendering instruction returned by the engine for one inbound
// event. Body uses the transport's lightweight emphasis markup.
type Reply struct {
	Kind      ReplyKind
	ChatID    int64
	MessageID int // message to edit when Kind is ReplyEdit
	Body      string
	Keyboard  [][]Button
	// Notice is a short transient acknowledgement for button presses
	// (shown as a toast, not a message).
	Notice string
}

// BookingRecord is the ledger entry written after a successful booking.
type BookingRecord struct {
	ID              string    `json:"id"`
	Room            string    `json:"room"`
	Date            string    `json:"date"`
	StartLabel      string    `json:"start"`
	EndLabel        string    `json:"end"`
	DurationHours   int       `json:"duration_hours"`
	Name            string    `json:"name"`
	Department      string    `json:"department"`
	Agenda          string    `json:"agenda"`
	ContactID       string    `json:"contact_id"`
	CalendarEventID string    `json:"calendar_event_id,omitempty"`
	HTMLLink        string    `json:"html_link,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}
