package models

import (
	"errors"
	"testing"
	"time"
)

func TestEncodeDecodeCallback(t *testing.T) {
	tests := []struct {
		name   string
		action CallbackAction
		param  string
		check  func(t *testing.T, ev CallbackEvent)
	}{
		{
			name:   "begin dates",
			action: ActionBeginDates,
			param:  "",
			check: func(t *testing.T, ev CallbackEvent) {
				if ev.Action != ActionBeginDates {
					t.Errorf("expected action %q, got %q", ActionBeginDates, ev.Action)
				}
			},
		},
		{
			name:   "date",
			action: ActionSelectDate,
			param:  "2026-09-01",
			check: func(t *testing.T, ev CallbackEvent) {
				if ev.Date != "2026-09-01" {
					t.Errorf("expected date 2026-09-01, got %q", ev.Date)
				}
			},
		},
		{
			name:   "start slot",
			action: ActionSelectStart,
			param:  "3",
			check: func(t *testing.T, ev CallbackEvent) {
				if ev.Slot != 3 {
					t.Errorf("expected slot 3, got %d", ev.Slot)
				}
			},
		},
		{
			name:   "book room",
			action: ActionBookRoom,
			param:  "1",
			check: func(t *testing.T, ev CallbackEvent) {
				if ev.Room != 1 {
					t.Errorf("expected room 1, got %d", ev.Room)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := EncodeCallback(tt.action, "abcd1234", tt.param)
			if len(data) > 64 {
				t.Errorf("payload exceeds Telegram 64-byte limit: %q", data)
			}
			ev, err := DecodeCallback(data)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if ev.Nonce != "abcd1234" {
				t.Errorf("expected nonce abcd1234, got %q", ev.Nonce)
			}
			tt.check(t, ev)
		})
	}
}

func TestDecodeCallbackMalformed(t *testing.T) {
	cases := []string{
		"",
		"date",
		"date|nonce",
		"date|nonce|",
		"start|nonce|notanumber",
		"start|nonce|-2",
		"book|nonce|x",
		"bogus|nonce|1",
	}
	for _, data := range cases {
		if _, err := DecodeCallback(data); err == nil {
			t.Errorf("expected error for payload %q", data)
		}
	}
	_, err := DecodeCallback("bogus|nonce|1")
	if !errors.Is(err, ErrUnknownAction) {
		t.Errorf("expected ErrUnknownAction, got %v", err)
	}
}

func TestBookingDraftValidateWindow(t *testing.T) {
	now := time.Now()
	d := NewBookingDraft(42, "Ana", "42", "n1", now)
	if err := d.ValidateWindow(10); err == nil {
		t.Error("expected error for unset window")
	}

	d.StartSlot = 2
	d.EndSlot = 5
	if err := d.ValidateWindow(10); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if d.DurationHours() != 3 {
		t.Errorf("expected duration 3, got %d", d.DurationHours())
	}

	d.EndSlot = 2
	if err := d.ValidateWindow(10); err == nil {
		t.Error("expected error for start == end")
	}
	d.EndSlot = 12
	if err := d.ValidateWindow(10); err == nil {
		t.Error("expected error for end slot out of range")
	}
}
