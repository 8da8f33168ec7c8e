package models

import (
	"slices"
	"time"

	"github.com/uptrace/bun"
)

type Club struct {
	bun.BaseModel `bun:"table:clubs"`

	ID                string    `bun:"id,pk" json:"id"`
	Name              string    `bun:"name,notnull" json:"name"`
	Description       string    `bun:"description" json:"description"`
	Members           []string  `bun:"members" json:"members"`
	Admins            []string  `bun:"admins" json:"admins"`
	OwnerID           string    `bun:"owner_id,notnull" json:"owner_id"`
	IsPublic          bool      `bun:"is_public" json:"is_public"`
	SubscriptionPrice float64   `bun:"subscription_price" json:"subscription_price"`
	Currency          string    `bun:"currency" json:"currency,omitempty"`
	ImageURL          string    `bun:"image_url" json:"image_url,omitempty"`
	CreatedAt         time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt         time.Time `bun:"updated_at,nullzero" json:"updated_at"`
}

func (c *Club) IsMember(userID string) bool {
	return slices.Contains(c.Members, userID) || c.IsAdmin(userID)
}

func (c *Club) IsAdmin(userID string) bool {
	return c.OwnerID == userID || slices.Contains(c.Admins, userID)
}

// ClubStats summarises a club's activity.
type ClubStats struct {
	ClubID          string             `json:"club_id"`
	Members         int                `json:"members"`
	Events          int                `json:"events"`
	UpcomingEvents  int                `json:"upcoming_events"`
	TotalAttendees  int                `json:"total_attendees"`
	TotalWaitlisted int                `json:"total_waitlisted"`
	OrdersByStatus  map[string]int     `json:"orders_by_status"`
	RevenueByStatus map[string]float64 `json:"revenue_by_status"`
	RefundedAmount  float64            `json:"refunded_amount"`
}
