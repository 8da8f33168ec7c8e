// Package calendar exports club events as an iCalendar feed.
package calendar

import (
	"fmt"
	"rallysphere/internal/models"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
)

const productID = "-//RallySphere//Club Events//EN"

// Render serializes events as a VCALENDAR named after club. eventURL, when
// not empty, is a format string receiving the event id.
func Render(club models.Club, events []models.Event, eventURL string, now time.Time) string {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)
	cal.SetXWRCalName(club.Name)
	if club.Description != "" {
		cal.SetXWRCalDesc(club.Description)
	}

	for _, e := range events {
		ev := cal.AddEvent(e.ID + "@rallysphere")
		ev.SetDtStampTime(now.UTC())
		ev.SetCreatedTime(e.CreatedAt.UTC())
		if !e.UpdatedAt.IsZero() {
			ev.SetModifiedAt(e.UpdatedAt.UTC())
		}
		ev.SetStartAt(e.StartDate.UTC())
		ev.SetEndAt(e.EndDate.UTC())
		ev.SetSummary(e.Title)
		if e.Location != "" {
			ev.SetLocation(e.Location)
		}
		if desc := description(e); desc != "" {
			ev.SetDescription(desc)
		}
		if eventURL != "" {
			ev.SetURL(fmt.Sprintf(eventURL, e.ID))
		}
		if len(e.Tags) > 0 {
			ev.AddProperty(ical.ComponentPropertyCategories, strings.Join(e.Tags, ","))
		}
	}

	return cal.Serialize()
}

func description(e models.Event) string {
	var parts []string
	if e.Description != "" {
		parts = append(parts, e.Description)
	}
	if e.MaxAttendees != nil {
		parts = append(parts, fmt.Sprintf("%d/%d attending", len(e.Attendees), *e.MaxAttendees))
	}
	if e.IsPaid() {
		parts = append(parts, fmt.Sprintf("Ticket: %.2f %s", e.Price, strings.ToUpper(e.Currency)))
	}
	return strings.Join(parts, "\n")
}
