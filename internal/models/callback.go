// Package models defines the wire format for inline keyboard payloads.
package models

import (
	"fmt"
	"strconv"
	"strings"
)

// CallbackAction tags the kind of button that was pressed.
type CallbackAction string

const (
	// ActionBeginDates starts date selection from the welcome prompt.
	ActionBeginDates CallbackAction = "dates"
	// ActionSelectDate chooses a calendar date.
	ActionSelectDate CallbackAction = "date"
	// ActionSelectStart chooses the start time slot.
	ActionSelectStart CallbackAction = "start"
	// ActionSelectEnd chooses the end time slot.
	ActionSelectEnd CallbackAction = "end"
	// ActionBookRoom chooses an available room.
	ActionBookRoom CallbackAction = "book"
)

// payloadSep separates the action, nonce and parameter fields. Telegram
// limits callback data to 64 bytes, so the encoding stays compact.
const payloadSep = "|"

// EncodeCallback builds the callback payload for a button.
func EncodeCallback(action CallbackAction, nonce, param string) string {
	return string(action) + payloadSep + nonce + payloadSep + param
}

// DecodeCallback parses a wire payload into the typed fields of a
// CallbackEvent. The returned event has no transport fields (chat, message,
// callback id) set; the caller fills those in.
func DecodeCallback(data string) (CallbackEvent, error) {
	parts := strings.SplitN(data, payloadSep, 3)
	if len(parts) != 3 {
		return CallbackEvent{}, fmt.Errorf("%w: %q", ErrBadCallbackPayload, data)
	}
	ev := CallbackEvent{
		Action: CallbackAction(parts[0]),
		Nonce:  parts[1],
		Slot:   SlotUnset,
		Room:   SlotUnset,
	}
	param := parts[2]

	switch ev.Action {
	case ActionBeginDates:
		// No parameter.
	case ActionSelectDate:
		if param == "" {
			return CallbackEvent{}, fmt.Errorf("%w: date payload missing parameter", ErrBadCallbackPayload)
		}
		ev.Date = param
	case ActionSelectStart, ActionSelectEnd:
		slot, err := strconv.Atoi(param)
		if err != nil || slot < 0 {
			return CallbackEvent{}, fmt.Errorf("%w: bad slot index %q", ErrBadCallbackPayload, param)
		}
		ev.Slot = slot
	case ActionBookRoom:
		room, err := strconv.Atoi(param)
		if err != nil || room < 0 {
			return CallbackEvent{}, fmt.Errorf("%w: bad room index %q", ErrBadCallbackPayload, param)
		}
		ev.Room = room
	default:
		return CallbackEvent{}, fmt.Errorf("%w: %q", ErrUnknownAction, parts[0])
	}
	return ev, nil
}
