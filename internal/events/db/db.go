package db

import (
	"context"
	"database/sql"
	"errors"
	"rallysphere/internal/apperr"
	"rallysphere/internal/models"
	"time"

	"github.com/uptrace/bun"
)

type DB struct {
	Bun *bun.DB
}

// GetEvent → fetch one event by its ID
func (d *DB) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	var event models.Event
	err := d.Bun.NewSelect().
		Model(&event).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// ListEvents → events of one club, or of every club when clubID is empty
func (d *DB) ListEvents(ctx context.Context, clubID string) ([]models.Event, error) {
	events := []models.Event{}
	q := d.Bun.NewSelect().Model(&events).Order("start_date ASC")
	if clubID != "" {
		q = q.Where("club_id = ?", clubID)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return events, nil
}

// ListEventsStartingBetween → events whose start falls in [from, to)
func (d *DB) ListEventsStartingBetween(ctx context.Context, from, to time.Time) ([]models.Event, error) {
	events := []models.Event{}
	err := d.Bun.NewSelect().
		Model(&events).
		Where("start_date >= ?", from).
		Where("start_date < ?", to).
		Order("start_date ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return events, nil
}

// CreateEvent → insert new event
func (d *DB) CreateEvent(ctx context.Context, event *models.Event) error {
	_, err := d.Bun.NewInsert().Model(event).Exec(ctx)
	return err
}

// UpdateEvent → write every editable column, attendee lists included
func (d *DB) UpdateEvent(ctx context.Context, event *models.Event) error {
	res, err := d.Bun.NewUpdate().
		Model(event).
		Column("title", "description", "location", "tags", "start_date", "end_date",
			"max_attendees", "attendees", "waitlist", "price", "is_public", "requires_approval",
			"cover_image_url", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return err
	}
	return expectRow(res)
}

// UpdateMembership → replace the attendee and waitlist queues
func (d *DB) UpdateMembership(ctx context.Context, eventID string, attendees, waitlist []string) error {
	event := &models.Event{ID: eventID, Attendees: attendees, Waitlist: waitlist, UpdatedAt: time.Now()}
	res, err := d.Bun.NewUpdate().
		Model(event).
		Column("attendees", "waitlist", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return err
	}
	return expectRow(res)
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}
