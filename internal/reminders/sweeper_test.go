package reminders

import (
	"context"
	"errors"
	"rallysphere/internal/logger"
	"rallysphere/internal/models"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 6, 20, 17, 0, 0, 0, time.UTC)

type staticEvents struct {
	list     []models.Event
	from, to time.Time
	err      error
}

func (s *staticEvents) ListEventsStartingBetween(_ context.Context, from, to time.Time) ([]models.Event, error) {
	s.from, s.to = from, to
	return s.list, s.err
}

type recordingKafka struct {
	mu   sync.Mutex
	fail map[string]bool
	sent []models.EventNotification
}

func (k *recordingKafka) PublishJSON(_ context.Context, _ string, key string, payload any) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.fail[key] {
		return errors.New("broker unavailable")
	}
	k.sent = append(k.sent, payload.(models.EventNotification))
	return nil
}

type counter struct{ n int }

func (c *counter) RecordReminder() { c.n++ }

func setup(t *testing.T, events *staticEvents) (*Sweeper, *recordingKafka, *miniredis.Miniredis, *counter) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	kafka := &recordingKafka{fail: map[string]bool{}}
	metrics := &counter{}
	return &Sweeper{
		Events:  events,
		Redis:   client,
		Kafka:   kafka,
		Metrics: metrics,
		Topic:   "reminders",
		Lead:    time.Hour,
		Logger:  logger.Nop(),
		Now:     func() time.Time { return now },
	}, kafka, mr, metrics
}

func TestSweepSendsOncePerAttendee(t *testing.T) {
	events := &staticEvents{list: []models.Event{
		{ID: "e1", Title: "Track night", StartDate: now.Add(30 * time.Minute), EndDate: now.Add(2 * time.Hour),
			Attendees: []string{"u1", "u2"}, Waitlist: []string{"u3"}},
	}}
	s, kafka, mr, metrics := setup(t, events)

	n, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, now, events.from)
	assert.Equal(t, now.Add(time.Hour), events.to)

	require.Len(t, kafka.sent, 2)
	assert.Equal(t, models.NotificationReminder, kafka.sent[0].Kind)
	assert.Equal(t, "Track night", kafka.sent[0].EventTitle)
	assert.True(t, mr.Exists(markerKey("e1", "u1")))
	assert.False(t, mr.Exists(markerKey("e1", "u3")), "waitlisted users get no reminder")

	n, err = s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, kafka.sent, 2)
	assert.Equal(t, 2, metrics.n)
}

func TestSweepRetriesFailedPublish(t *testing.T) {
	events := &staticEvents{list: []models.Event{
		{ID: "e1", StartDate: now.Add(10 * time.Minute), EndDate: now.Add(time.Hour), Attendees: []string{"u1"}},
	}}
	s, kafka, mr, _ := setup(t, events)

	kafka.fail["u1"] = true
	n, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.False(t, mr.Exists(markerKey("e1", "u1")))

	kafka.fail["u1"] = false
	n, err = s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSweepErrors(t *testing.T) {
	s, _, _, _ := setup(t, &staticEvents{err: errors.New("db down")})
	_, err := s.Sweep(context.Background())
	assert.ErrorContains(t, err, "db down")

	s.Events = &staticEvents{list: []models.Event{{ID: "e1", EndDate: now, Attendees: []string{"u1"}}}}
	dead := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 100 * time.Millisecond})
	t.Cleanup(func() { dead.Close() })
	s.Redis = dead
	_, err = s.Sweep(context.Background())
	assert.Error(t, err)
}

func TestMarkerExpiresAfterEvent(t *testing.T) {
	events := &staticEvents{list: []models.Event{
		{ID: "e1", StartDate: now.Add(time.Minute), EndDate: now.Add(3 * time.Hour), Attendees: []string{"u1"}},
	}}
	s, _, mr, _ := setup(t, events)

	_, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4*time.Hour, mr.TTL(markerKey("e1", "u1")))
}

func TestSchedule(t *testing.T) {
	s, _, _, _ := setup(t, &staticEvents{})
	c := cron.New()

	id, err := s.Schedule(c, "*/15 * * * *", time.Minute)
	require.NoError(t, err)
	assert.NotZero(t, id)
	assert.Len(t, c.Entries(), 1)

	_, err = s.Schedule(c, "every now and then", time.Minute)
	assert.Error(t, err)
}
