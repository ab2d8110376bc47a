package store

import (
	"database/sql"
	"fmt"

	"github.com/BTreeMap/RoomPipe/internal/models"
)

// scanBookings reads booking records from a ledger query. Nullable text
// columns map to empty strings.
func scanBookings(rows *sql.Rows) ([]models.BookingRecord, error) {
	var records []models.BookingRecord
	for rows.Next() {
		var r models.BookingRecord
		var department, agenda, contactID, eventID, htmlLink sql.NullString
		err := rows.Scan(
			&r.ID, &r.Room, &r.Date, &r.StartLabel, &r.EndLabel, &r.DurationHours,
			&r.Name, &department, &agenda, &contactID, &eventID, &htmlLink, &r.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan booking failed: %w", err)
		}
		r.Department = department.String
		r.Agenda = agenda.String
		r.ContactID = contactID.String
		r.CalendarEventID = eventID.String
		r.HTMLLink = htmlLink.String
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate booking rows failed: %w", err)
	}
	return records, nil
}
