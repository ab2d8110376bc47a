// Package calendar talks to the Google Calendar collaborator on behalf of
// the booking conversation.
//
// It aggregates a single time-window query into a per-room availability map
// and persists confirmed bookings as calendar events. Availability degrades
// fail-open: if the collaborator cannot be reached, every room is reported
// available and the result is flagged as degraded so callers can tell
// "confirmed free" from "unknown, assumed free".
package calendar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/BTreeMap/RoomPipe/internal/models"
)

// Constants for calendar queries
const (
	// DefaultTimezone is used when no timezone is configured.
	DefaultTimezone = "Asia/Jakarta"
	// MaxListResults caps the number of events fetched per availability query.
	MaxListResults = 250
)

// EventsAPI is the narrow seam over the Google Calendar client, so tests can
// substitute a fake collaborator.
type EventsAPI interface {
	// ListEvents returns the events overlapping [timeMin, timeMax) on the
	// calendar, expanded to single instances, capped at maxResults.
	ListEvents(ctx context.Context, calendarID string, timeMin, timeMax time.Time, maxResults int64) ([]*gcal.Event, error)

	// InsertEvent creates an event on the calendar and returns the created
	// record.
	InsertEvent(ctx context.Context, calendarID string, ev *gcal.Event) (*gcal.Event, error)
}

// googleEventsAPI implements EventsAPI over *gcal.Service.
type googleEventsAPI struct {
	svc *gcal.Service
}

func (g *googleEventsAPI) ListEvents(ctx context.Context, calendarID string, timeMin, timeMax time.Time, maxResults int64) ([]*gcal.Event, error) {
	res, err := g.svc.Events.List(calendarID).
		TimeMin(timeMin.Format(time.RFC3339)).
		TimeMax(timeMax.Format(time.RFC3339)).
		SingleEvents(true).
		MaxResults(maxResults).
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}
	return res.Items, nil
}

func (g *googleEventsAPI) InsertEvent(ctx context.Context, calendarID string, ev *gcal.Event) (*gcal.Event, error) {
	return g.svc.Events.Insert(calendarID, ev).Context(ctx).Do()
}

// Opts holds configuration options for the calendar service.
type Opts struct {
	CalendarID      string
	CredentialsFile string
	CredentialsJSON []byte
	Timezone        string
	Rooms           []string
	TimeSlots       []string
	API             EventsAPI
}

// Option defines a configuration option for the calendar service.
type Option func(*Opts)

// WithCalendarID sets the target calendar identifier.
func WithCalendarID(id string) Option {
	return func(o *Opts) {
		o.CalendarID = id
	}
}

// WithCredentialsFile sets the path to a service-account key file.
func WithCredentialsFile(path string) Option {
	return func(o *Opts) {
		o.CredentialsFile = path
	}
}

// WithCredentialsJSON sets inline service-account credentials.
func WithCredentialsJSON(data []byte) Option {
	return func(o *Opts) {
		o.CredentialsJSON = data
	}
}

// WithTimezone sets the IANA timezone used to anchor slot labels.
func WithTimezone(name string) Option {
	return func(o *Opts) {
		o.Timezone = name
	}
}

// WithRooms sets the ordered room list.
func WithRooms(rooms []string) Option {
	return func(o *Opts) {
		o.Rooms = rooms
	}
}

// WithTimeSlots sets the ordered hour-label list. The last entry is the
// closing boundary, valid only as an end time.
func WithTimeSlots(slots []string) Option {
	return func(o *Opts) {
		o.TimeSlots = slots
	}
}

// WithEventsAPI substitutes the Google client, for tests.
func WithEventsAPI(api EventsAPI) Option {
	return func(o *Opts) {
		o.API = api
	}
}

// Service aggregates room availability and persists bookings against a
// single target calendar.
type Service struct {
	api        EventsAPI
	calendarID string
	rooms      []string
	slots      []string
	loc        *time.Location
}

// New creates a calendar service, applying any provided options.
func New(ctx context.Context, opts ...Option) (*Service, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("Calendar.New: options set",
		"calendarID_set", cfg.CalendarID != "",
		"credentialsFile_set", cfg.CredentialsFile != "",
		"credentialsJSON_set", len(cfg.CredentialsJSON) > 0,
		"rooms", len(cfg.Rooms), "slots", len(cfg.TimeSlots), "timezone", cfg.Timezone)

	if cfg.CalendarID == "" {
		return nil, fmt.Errorf("calendar ID not set")
	}
	if len(cfg.Rooms) == 0 {
		return nil, fmt.Errorf("room list not set")
	}
	if len(cfg.TimeSlots) < 2 {
		return nil, fmt.Errorf("time-slot list needs at least a start and a closing boundary, have %d", len(cfg.TimeSlots))
	}

	tz := cfg.Timezone
	if tz == "" {
		tz = DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", tz, err)
	}

	api := cfg.API
	if api == nil {
		var clientOpts []option.ClientOption
		switch {
		case len(cfg.CredentialsJSON) > 0:
			clientOpts = append(clientOpts, option.WithCredentialsJSON(cfg.CredentialsJSON))
		case cfg.CredentialsFile != "":
			clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
		default:
			return nil, fmt.Errorf("service-account credentials not set (need a key file or inline JSON)")
		}
		clientOpts = append(clientOpts, option.WithScopes(gcal.CalendarScope))
		svc, err := gcal.NewService(ctx, clientOpts...)
		if err != nil {
			slog.Error("Calendar.New: failed to create Google Calendar client", "error", err)
			return nil, fmt.Errorf("create calendar client: %w", err)
		}
		api = &googleEventsAPI{svc: svc}
		slog.Info("Calendar client initialized", "calendarID", cfg.CalendarID, "timezone", tz)
	}

	return &Service{
		api:        api,
		calendarID: cfg.CalendarID,
		rooms:      cfg.Rooms,
		slots:      cfg.TimeSlots,
		loc:        loc,
	}, nil
}

// Rooms returns the configured ordered room list.
func (s *Service) Rooms() []string {
	return s.rooms
}

// TimeSlots returns the configured ordered slot-label list.
func (s *Service) TimeSlots() []string {
	return s.slots
}

// slotTime converts a date and slot index into the absolute instant of the
// slot label's hour in the configured timezone, minutes and seconds zeroed.
func (s *Service) slotTime(date string, slot int) (time.Time, error) {
	if slot < 0 || slot >= len(s.slots) {
		return time.Time{}, fmt.Errorf("slot index %d out of range (have %d slots)", slot, len(s.slots))
	}
	day, err := time.ParseInLocation("2006-01-02", date, s.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", date, err)
	}
	var hour, minute int
	if _, err := fmt.Sscanf(s.slots[slot], "%d:%d", &hour, &minute); err != nil {
		return time.Time{}, fmt.Errorf("invalid slot label %q: %w", s.slots[slot], err)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), hour, 0, 0, 0, s.loc), nil
}

// RoomStatus maps every configured room to its availability inside the slot
// window on the given date. The returned map always has exactly one entry
// per configured room. degraded reports that the collaborator could not be
// queried and the all-available result is an assumption, not a confirmation.
// An error is returned only for invalid input, never for collaborator
// failures.
func (s *Service) RoomStatus(ctx context.Context, date string, startSlot, endSlot int) (status map[string]bool, degraded bool, err error) {
	start, err := s.slotTime(date, startSlot)
	if err != nil {
		return nil, false, err
	}
	end, err := s.slotTime(date, endSlot)
	if err != nil {
		return nil, false, err
	}
	if !start.Before(end) {
		return nil, false, fmt.Errorf("start %s is not before end %s", start, end)
	}

	status = make(map[string]bool, len(s.rooms))
	for _, room := range s.rooms {
		status[room] = true
	}

	events, err := s.api.ListEvents(ctx, s.calendarID, start, end, MaxListResults)
	if err != nil {
		// Fail-open: a blocked availability view would deny the user for a
		// transient collaborator error. The later create step still decides.
		slog.Warn("Calendar.RoomStatus degraded to fail-open, reporting all rooms available",
			"error", describeAPIError(err), "date", date, "start", s.slots[startSlot], "end", s.slots[endSlot])
		return status, true, nil
	}

	for _, ev := range events {
		occupied := ev.Location
		if occupied == "" {
			occupied = ev.Summary
		}
		if occupied == "" {
			// Cannot attribute the event to a room.
			continue
		}
		lower := strings.ToLower(occupied)
		for _, room := range s.rooms {
			if strings.Contains(lower, strings.ToLower(room)) {
				// An event occupies at most one room, even if its text
				// happens to mention several.
				status[room] = false
				break
			}
		}
	}

	slog.Debug("Calendar.RoomStatus resolved", "date", date, "events", len(events), "rooms", len(status))
	return status, false, nil
}

// CreateBooking persists the draft as a calendar event and returns the
// ledger record for it.
//
// No availability re-check happens here: the caller has just viewed the
// status map, and the calendar itself is the sole arbiter of the remaining
// race window between viewing and writing.
func (s *Service) CreateBooking(ctx context.Context, draft *models.BookingDraft) (*models.BookingRecord, error) {
	if err := draft.ValidateWindow(len(s.slots)); err != nil {
		return nil, err
	}
	if draft.RoomIndex < 0 || draft.RoomIndex >= len(s.rooms) {
		return nil, fmt.Errorf("room index %d out of range (have %d rooms)", draft.RoomIndex, len(s.rooms))
	}
	room := s.rooms[draft.RoomIndex]

	start, err := s.slotTime(draft.Date, draft.StartSlot)
	if err != nil {
		return nil, err
	}
	end, err := s.slotTime(draft.Date, draft.EndSlot)
	if err != nil {
		return nil, err
	}

	event := &gcal.Event{
		Summary:  fmt.Sprintf("%s - %s", room, draft.DisplayName),
		Location: room,
		Description: fmt.Sprintf("Name: %s\nDepartment: %s\nAgenda: %s\nContact: %s",
			draft.DisplayName, draft.Department, draft.Agenda, draft.ContactID),
		Start: &gcal.EventDateTime{DateTime: start.Format(time.RFC3339), TimeZone: s.loc.String()},
		End:   &gcal.EventDateTime{DateTime: end.Format(time.RFC3339), TimeZone: s.loc.String()},
		Reminders: &gcal.EventReminders{
			UseDefault: false,
			Overrides: []*gcal.EventReminder{
				{Method: "email", Minutes: 24 * 60},
				{Method: "popup", Minutes: 10},
			},
			ForceSendFields: []string{"UseDefault"},
		},
	}

	created, err := s.api.InsertEvent(ctx, s.calendarID, event)
	if err != nil {
		detail := describeAPIError(err)
		slog.Error("Calendar.CreateBooking insert failed", "error", detail, "room", room, "date", draft.Date)
		return nil, fmt.Errorf("create booking: %w", detail)
	}

	record := &models.BookingRecord{
		ID:            uuid.NewString(),
		Room:          room,
		Date:          draft.Date,
		StartLabel:    s.slots[draft.StartSlot],
		EndLabel:      s.slots[draft.EndSlot],
		DurationHours: draft.DurationHours(),
		Name:          draft.DisplayName,
		Department:    draft.Department,
		Agenda:        draft.Agenda,
		ContactID:     draft.ContactID,
		CreatedAt:     time.Now().UTC(),
	}
	if created != nil {
		record.CalendarEventID = created.Id
		record.HTMLLink = created.HtmlLink
	}
	slog.Info("Calendar.CreateBooking succeeded", "room", room, "date", draft.Date,
		"start", record.StartLabel, "end", record.EndLabel, "eventID", record.CalendarEventID)
	return record, nil
}

// describeAPIError surfaces the machine-readable code and human message of a
// Google API error; other errors pass through unchanged.
func describeAPIError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return fmt.Errorf("calendar API error %d: %s", apiErr.Code, apiErr.Message)
	}
	return err
}
