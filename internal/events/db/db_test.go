package db_test

import (
	"context"
	"database/sql"
	"rallysphere/internal/apperr"
	"rallysphere/internal/events/db"
	"rallysphere/internal/models"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "github.com/uptrace/bun/driver/sqliteshim"
)

func setupTestDB(t *testing.T) (*db.DB, *bun.DB) {
	sqldb, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to connect to in-memory database: %v", err)
	}
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	_, err = bunDB.NewCreateTable().Model((*models.Event)(nil)).Exec(context.Background())
	if err != nil {
		t.Fatalf("Failed to create events table: %v", err)
	}
	t.Cleanup(func() { bunDB.Close() })

	return &db.DB{Bun: bunDB}, bunDB
}

func newEvent(clubID string, start time.Time) *models.Event {
	capacity := 2
	return &models.Event{
		ID:           uuid.NewString(),
		Title:        "Sunday long run",
		Location:     "Riverside",
		Tags:         []string{"running"},
		StartDate:    start,
		EndDate:      start.Add(2 * time.Hour),
		MaxAttendees: &capacity,
		Attendees:    []string{},
		Waitlist:     []string{},
		CreatorID:    "owner",
		ClubID:       clubID,
		ClubName:     "Runners",
		CreatedAt:    time.Now(),
	}
}

func TestCreateAndGetEvent(t *testing.T) {
	eventDB, _ := setupTestDB(t)
	ctx := context.Background()

	e := newEvent("club-1", time.Now().Add(24*time.Hour))
	require.NoError(t, eventDB.CreateEvent(ctx, e))

	got, err := eventDB.GetEvent(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, e.Title, got.Title)
	assert.Equal(t, []string{"running"}, got.Tags)
	require.NotNil(t, got.MaxAttendees)
	assert.Equal(t, 2, *got.MaxAttendees)

	_, err = eventDB.GetEvent(ctx, "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestListEventsByClub(t *testing.T) {
	eventDB, _ := setupTestDB(t)
	ctx := context.Background()
	base := time.Now().Add(time.Hour)

	later := newEvent("club-1", base.Add(48*time.Hour))
	sooner := newEvent("club-1", base)
	other := newEvent("club-2", base)
	for _, e := range []*models.Event{later, sooner, other} {
		require.NoError(t, eventDB.CreateEvent(ctx, e))
	}

	list, err := eventDB.ListEvents(ctx, "club-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, sooner.ID, list[0].ID)
	assert.Equal(t, later.ID, list[1].ID)

	all, err := eventDB.ListEvents(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	none, err := eventDB.ListEvents(ctx, "club-9")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestListEventsStartingBetween(t *testing.T) {
	eventDB, _ := setupTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	inWindow := newEvent("club-1", now.Add(30*time.Minute))
	outside := newEvent("club-1", now.Add(5*time.Hour))
	require.NoError(t, eventDB.CreateEvent(ctx, inWindow))
	require.NoError(t, eventDB.CreateEvent(ctx, outside))

	list, err := eventDB.ListEventsStartingBetween(ctx, now, now.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, inWindow.ID, list[0].ID)
}

func TestUpdateMembership(t *testing.T) {
	eventDB, _ := setupTestDB(t)
	ctx := context.Background()

	e := newEvent("club-1", time.Now().Add(time.Hour))
	require.NoError(t, eventDB.CreateEvent(ctx, e))

	require.NoError(t, eventDB.UpdateMembership(ctx, e.ID, []string{"u1", "u2"}, []string{"u3"}))

	got, err := eventDB.GetEvent(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, got.Attendees)
	assert.Equal(t, []string{"u3"}, got.Waitlist)
	assert.Equal(t, "Sunday long run", got.Title)

	err = eventDB.UpdateMembership(ctx, "missing", nil, nil)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestUpdateEvent(t *testing.T) {
	eventDB, _ := setupTestDB(t)
	ctx := context.Background()

	e := newEvent("club-1", time.Now().Add(time.Hour))
	require.NoError(t, eventDB.CreateEvent(ctx, e))

	e.Title = "Sunday tempo run"
	e.MaxAttendees = nil
	e.Attendees = []string{"u1"}
	require.NoError(t, eventDB.UpdateEvent(ctx, e))

	got, err := eventDB.GetEvent(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "Sunday tempo run", got.Title)
	assert.Nil(t, got.MaxAttendees)
	assert.Equal(t, []string{"u1"}, got.Attendees)
	assert.Equal(t, "club-1", got.ClubID)
}
