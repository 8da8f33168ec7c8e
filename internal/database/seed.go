package database

import (
	"context"
	"fmt"
	"rallysphere/internal/models"
	"time"

	"github.com/uptrace/bun"
)

// Seed inserts a demo club with a few events and store items. Rows that
// already exist are left alone, so seeding twice is harmless.
func Seed(ctx context.Context, db *bun.DB, now time.Time) error {
	capacity := 2
	day := now.Truncate(24 * time.Hour)

	club := &models.Club{
		ID:          "club-demo",
		Name:        "Riverside Runners",
		Description: "Weekly runs along the river.",
		Members:     []string{"user001", "user002", "user003"},
		Admins:      []string{"user001"},
		OwnerID:     "user001",
		IsPublic:    true,
		Currency:    "usd",
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	events := []models.Event{
		{
			ID:           "event-long-run",
			Title:        "Sunday long run",
			Location:     "Riverside park",
			Tags:         []string{"running"},
			StartDate:    day.AddDate(0, 0, 3).Add(8 * time.Hour),
			EndDate:      day.AddDate(0, 0, 3).Add(10 * time.Hour),
			MaxAttendees: &capacity,
			Attendees:    []string{"user001", "user002"},
			Waitlist:     []string{"user003"},
			IsPublic:     true,
		},
		{
			ID:        "event-track",
			Title:     "Track intervals",
			Location:  "City stadium",
			Tags:      []string{"running", "speed"},
			StartDate: day.AddDate(0, 0, 5).Add(18 * time.Hour),
			EndDate:   day.AddDate(0, 0, 5).Add(19 * time.Hour),
			Attendees: []string{},
			Waitlist:  []string{},
			Price:     12,
			Currency:  "usd",
			IsPublic:  true,
		},
	}
	for i := range events {
		events[i].CreatorID = club.OwnerID
		events[i].ClubID = club.ID
		events[i].ClubName = club.Name
		events[i].CreatedAt = now
	}

	items := []models.StoreItem{
		{ID: "item-tee", ClubID: club.ID, Name: "Club tee", Price: 25, Currency: "usd", Stock: 40, CreatedAt: now},
		{ID: "item-cap", ClubID: club.ID, Name: "Running cap", Price: 18, Currency: "usd", Stock: 15, CreatedAt: now},
	}

	return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(club).On("CONFLICT (id) DO NOTHING").Exec(ctx); err != nil {
			return fmt.Errorf("seed club: %w", err)
		}
		if _, err := tx.NewInsert().Model(&events).On("CONFLICT (id) DO NOTHING").Exec(ctx); err != nil {
			return fmt.Errorf("seed events: %w", err)
		}
		if _, err := tx.NewInsert().Model(&items).On("CONFLICT (id) DO NOTHING").Exec(ctx); err != nil {
			return fmt.Errorf("seed store items: %w", err)
		}
		return nil
	})
}
