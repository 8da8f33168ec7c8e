package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Event struct {
	bun.BaseModel `bun:"table:events"`

	ID               string    `bun:"id,pk" json:"id"`
	Title            string    `bun:"title,notnull" json:"title"`
	Description      string    `bun:"description" json:"description"`
	Location         string    `bun:"location" json:"location"`
	Tags             []string  `bun:"tags" json:"tags"`
	StartDate        time.Time `bun:"start_date,notnull" json:"start_date"`
	EndDate          time.Time `bun:"end_date,notnull" json:"end_date"`
	MaxAttendees     *int      `bun:"max_attendees" json:"max_attendees,omitempty"`
	Attendees        []string  `bun:"attendees" json:"attendees"`
	Waitlist         []string  `bun:"waitlist" json:"waitlist"`
	Price            float64   `bun:"price" json:"price"`
	Currency         string    `bun:"currency" json:"currency,omitempty"`
	CreatorID        string    `bun:"creator_id,notnull" json:"creator_id"`
	ClubID           string    `bun:"club_id,notnull" json:"club_id"`
	ClubName         string    `bun:"club_name" json:"club_name"`
	IsPublic         bool      `bun:"is_public" json:"is_public"`
	RequiresApproval bool      `bun:"requires_approval" json:"requires_approval"`
	CoverImageURL    string    `bun:"cover_image_url" json:"cover_image_url,omitempty"`
	CreatedAt        time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt        time.Time `bun:"updated_at,nullzero" json:"updated_at"`
}

// IsPaid reports whether joining needs a completed checkout first.
func (e *Event) IsPaid() bool {
	return e.Price > 0
}

// IsFull reports whether a new join would be waitlisted.
func (e *Event) IsFull() bool {
	return e.MaxAttendees != nil && len(e.Attendees) >= *e.MaxAttendees
}

// EventMembershipMessage is published on every attendee/waitlist change.
type EventMembershipMessage struct {
	EventID    string    `json:"event_id"`
	ClubID     string    `json:"club_id"`
	UserID     string    `json:"user_id"`
	Outcome    string    `json:"outcome"`
	Promoted   []string  `json:"promoted,omitempty"`
	Attendees  int       `json:"attendees"`
	Waitlisted int       `json:"waitlisted"`
	OccurredAt time.Time `json:"occurred_at"`
}

// EventNotification is a notification intent for one user (promotion or
// reminder). Delivery happens outside this service.
type EventNotification struct {
	Kind       string    `json:"kind"`
	EventID    string    `json:"event_id"`
	EventTitle string    `json:"event_title"`
	UserID     string    `json:"user_id"`
	StartDate  time.Time `json:"start_date"`
	Locale     string    `json:"locale,omitempty"`
}

const (
	NotificationPromoted = "promoted"
	NotificationReminder = "reminder"
)
