// Prompt rendering for the booking conversation. Every keyboard rotates the
// draft's prompt nonce so superseded keyboards stop working.
package engine

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/BTreeMap/RoomPipe/internal/models"
	"github.com/BTreeMap/RoomPipe/internal/util"
)

func (e *Engine) welcomeReply(draft *models.BookingDraft) models.Reply {
	return models.Reply{
		Kind:   models.ReplySend,
		ChatID: draft.ChatID,
		Body:   "🏢 *Welcome to the meeting room booking service*\n\nPlease choose a date for your meeting.",
		Keyboard: [][]models.Button{{
			{Label: "📅 Choose a date", Data: models.EncodeCallback(models.ActionBeginDates, draft.PromptNonce, "")},
		}},
	}
}

// dateSelectionReply offers today plus the next six days.
func (e *Engine) dateSelectionReply(draft *models.BookingDraft, messageID int) models.Reply {
	draft.PromptNonce = util.GeneratePromptNonce()

	now := e.clk.Now().In(e.loc)
	keyboard := make([][]models.Button, 0, DateChoiceCount)
	for i := 0; i < DateChoiceCount; i++ {
		day := now.AddDate(0, 0, i)
		keyboard = append(keyboard, []models.Button{{
			Label: day.Format("Mon, 2 Jan"),
			Data:  models.EncodeCallback(models.ActionSelectDate, draft.PromptNonce, day.Format("2006-01-02")),
		}})
	}

	return models.Reply{
		Kind:      models.ReplyEdit,
		ChatID:    draft.ChatID,
		MessageID: messageID,
		Body:      "📅 *Choose a meeting date:*",
		Keyboard:  keyboard,
	}
}

// startTimeReply offers every slot except the closing boundary.
func (e *Engine) startTimeReply(draft *models.BookingDraft, messageID int) models.Reply {
	draft.PromptNonce = util.GeneratePromptNonce()

	keyboard := make([][]models.Button, 0, len(e.slots)-1)
	for i, label := range e.slots[:len(e.slots)-1] {
		keyboard = append(keyboard, []models.Button{{
			Label: label,
			Data:  models.EncodeCallback(models.ActionSelectStart, draft.PromptNonce, strconv.Itoa(i)),
		}})
	}

	return models.Reply{
		Kind:      models.ReplyEdit,
		ChatID:    draft.ChatID,
		MessageID: messageID,
		Body: fmt.Sprintf("📅 Date: *%s*\n\n⏰ *Choose a start time:*",
			formatDisplayDate(draft.Date)),
		Keyboard: keyboard,
	}
}

// endTimeReply offers every slot strictly after the chosen start, labeled
// with the implied duration.
func (e *Engine) endTimeReply(draft *models.BookingDraft, messageID int) models.Reply {
	draft.PromptNonce = util.GeneratePromptNonce()

	var keyboard [][]models.Button
	for i := draft.StartSlot + 1; i < len(e.slots); i++ {
		duration := i - draft.StartSlot
		keyboard = append(keyboard, []models.Button{{
			Label: fmt.Sprintf("%s (%dh)", e.slots[i], duration),
			Data:  models.EncodeCallback(models.ActionSelectEnd, draft.PromptNonce, strconv.Itoa(i)),
		}})
	}

	return models.Reply{
		Kind:      models.ReplyEdit,
		ChatID:    draft.ChatID,
		MessageID: messageID,
		Body: fmt.Sprintf("📅 Date: *%s*\n⏰ Start: *%s*\n\n⏰ *Choose an end time:*",
			formatDisplayDate(draft.Date), e.slots[draft.StartSlot]),
		Keyboard: keyboard,
	}
}

// availabilityReply lists every room with its status; only available rooms
// get a booking button.
func (e *Engine) availabilityReply(draft *models.BookingDraft, messageID int, status map[string]bool, degraded bool) models.Reply {
	draft.PromptNonce = util.GeneratePromptNonce()

	var b strings.Builder
	fmt.Fprintf(&b, "📊 *Room availability*\n\n")
	fmt.Fprintf(&b, "📅 Date: *%s*\n", formatDisplayDate(draft.Date))
	fmt.Fprintf(&b, "⏰ Time: *%s - %s*\n", e.slots[draft.StartSlot], e.slots[draft.EndSlot])
	fmt.Fprintf(&b, "⏱ Duration: *%dh*\n\n", draft.DurationHours())

	var keyboard [][]models.Button
	for i, room := range e.rooms {
		if status[room] {
			fmt.Fprintf(&b, "✅ Available - *%s*\n", room)
			keyboard = append(keyboard, []models.Button{{
				Label: "📍 Book " + room,
				Data:  models.EncodeCallback(models.ActionBookRoom, draft.PromptNonce, strconv.Itoa(i)),
			}})
		} else {
			fmt.Fprintf(&b, "❌ Occupied - *%s*\n", room)
		}
	}

	if degraded {
		b.WriteString("\n⚠️ _The calendar could not be reached; availability is unverified._\n")
	}
	b.WriteString("\n💡 _Tap an available room to book it_")

	return models.Reply{
		Kind:      models.ReplyEdit,
		ChatID:    draft.ChatID,
		MessageID: messageID,
		Body:      b.String(),
		Keyboard:  keyboard,
	}
}

func (e *Engine) confirmationReply(chatID int64, record *models.BookingRecord) models.Reply {
	var b strings.Builder
	b.WriteString("✅ *Booking confirmed!*\n\n")
	fmt.Fprintf(&b, "📅 Date: *%s*\n", formatDisplayDate(record.Date))
	fmt.Fprintf(&b, "🏢 Room: *%s*\n", record.Room)
	fmt.Fprintf(&b, "⏰ Time: *%s - %s*\n", record.StartLabel, record.EndLabel)
	fmt.Fprintf(&b, "⏱ Duration: *%dh*\n", record.DurationHours)
	fmt.Fprintf(&b, "👤 Name: *%s*\n", record.Name)
	fmt.Fprintf(&b, "🏢 Department: *%s*\n", record.Department)
	fmt.Fprintf(&b, "📋 Agenda: *%s*\n", record.Agenda)
	b.WriteString("\nThank you! 🙏")

	return models.Reply{
		Kind:   models.ReplySend,
		ChatID: chatID,
		Body:   b.String(),
	}
}

// formatDisplayDate renders a YYYY-MM-DD date as a short human label. The
// raw value is shown when it does not parse, rather than hiding the draft's
// actual content.
func formatDisplayDate(date string) string {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return date
	}
	return t.Format("Mon, 2 Jan 2006")
}
