// Package models defines state management structures for RoomPipe sessions.
package models

import (
	"fmt"
	"time"
)

// Step identifies the current position of a chat in the booking conversation.
type Step string

const (
	StepStart            Step = "start"
	StepSelectDate       Step = "select_date"
	StepSelectStartTime  Step = "select_start_time"
	StepSelectEndTime    Step = "select_end_time"
	StepViewAvailability Step = "view_availability"
	StepEnterName        Step = "enter_name"
	StepEnterDepartment  Step = "enter_department"
	StepEnterAgenda      Step = "enter_agenda"
)

// SlotUnset marks a slot or room index that has not been chosen yet.
const SlotUnset = -1

// BookingDraft accumulates the booking fields for one chat across
// conversation turns. It lives only in process memory.
type BookingDraft struct {
	ChatID      int64
	Step        Step
	DisplayName string
	Department  string
	Agenda      string
	// ContactID is the stable requester identifier reported by the
	// transport. Set at session start, immutable.
	ContactID string
	Date      string // YYYY-MM-DD, immutable once chosen
	StartSlot int
	EndSlot   int
	RoomIndex int
	// PromptNonce identifies the latest rendered keyboard. Button presses
	// carrying an older nonce are rejected as stale.
	PromptNonce string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewBookingDraft creates a fresh draft for a chat at the initial step.
func NewBookingDraft(chatID int64, displayName, contactID, nonce string, now time.Time) *BookingDraft {
	return &BookingDraft{
		ChatID:      chatID,
		Step:        StepStart,
		DisplayName: displayName,
		ContactID:   contactID,
		StartSlot:   SlotUnset,
		EndSlot:     SlotUnset,
		RoomIndex:   SlotUnset,
		PromptNonce: nonce,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// ValidateWindow checks the slot invariant 0 <= start < end <= slotCount-1.
// It must hold for any draft that has reached room selection or later.
func (d *BookingDraft) ValidateWindow(slotCount int) error {
	if d.StartSlot < 0 || d.EndSlot < 0 {
		return fmt.Errorf("time window not fully selected (start=%d, end=%d)", d.StartSlot, d.EndSlot)
	}
	if d.StartSlot >= d.EndSlot {
		return fmt.Errorf("start slot %d must precede end slot %d", d.StartSlot, d.EndSlot)
	}
	if d.EndSlot > slotCount-1 {
		return fmt.Errorf("end slot %d out of range (have %d slots)", d.EndSlot, slotCount)
	}
	return nil
}

// DurationHours returns the booked duration implied by the slot window.
func (d *BookingDraft) DurationHours() int {
	return d.EndSlot - d.StartSlot
}
