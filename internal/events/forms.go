package events

import (
	"io"
	"time"
)

// CreateEventForm is the body of POST /api/events.
type CreateEventForm struct {
	ClubID           string    `json:"club_id" validate:"required"`
	Title            string    `json:"title" validate:"required,min=3,max=120"`
	Description      string    `json:"description" validate:"max=4000"`
	Location         string    `json:"location" validate:"required,max=200"`
	Tags             []string  `json:"tags" validate:"max=10,dive,min=1,max=30"`
	StartDate        time.Time `json:"start_date" validate:"required"`
	EndDate          time.Time `json:"end_date" validate:"required,gtfield=StartDate"`
	MaxAttendees     *int      `json:"max_attendees" validate:"omitnil,min=1"`
	Price            float64   `json:"price" validate:"min=0"`
	Currency         string    `json:"currency" validate:"omitempty,len=3,alpha"`
	IsPublic         bool      `json:"is_public"`
	RequiresApproval bool      `json:"requires_approval"`
}

// UpdateEventForm carries only the fields being changed. Unlimited removes
// the attendee cap.
type UpdateEventForm struct {
	Title            *string    `json:"title" validate:"omitnil,min=3,max=120"`
	Description      *string    `json:"description" validate:"omitnil,max=4000"`
	Location         *string    `json:"location" validate:"omitnil,min=1,max=200"`
	Tags             []string   `json:"tags" validate:"omitempty,max=10,dive,min=1,max=30"`
	StartDate        *time.Time `json:"start_date"`
	EndDate          *time.Time `json:"end_date"`
	MaxAttendees     *int       `json:"max_attendees" validate:"omitnil,min=1"`
	Unlimited        bool       `json:"unlimited"`
	Price            *float64   `json:"price" validate:"omitnil,min=0"`
	IsPublic         *bool      `json:"is_public"`
	RequiresApproval *bool      `json:"requires_approval"`
}

// Upload is an optional cover image sent with a new event.
type Upload struct {
	Filename string
	Content  io.Reader
}
