package events_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"rallysphere/internal/apperr"
	"rallysphere/internal/config"
	"rallysphere/internal/events"
	eventredis "rallysphere/internal/events/redis"
	"rallysphere/internal/logger"
	"rallysphere/internal/membership"
	"rallysphere/internal/models"
	"rallysphere/internal/passes"
	"rallysphere/internal/sse"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// memoryDB is an in-process events.DBLayer.
type memoryDB struct {
	mu     sync.Mutex
	events map[string]models.Event
	writes int
}

func newMemoryDB(list ...models.Event) *memoryDB {
	m := &memoryDB{events: make(map[string]models.Event)}
	for _, e := range list {
		m.events[e.ID] = e
	}
	return m
}

func clone(e models.Event) *models.Event {
	e.Attendees = slices.Clone(e.Attendees)
	e.Waitlist = slices.Clone(e.Waitlist)
	e.Tags = slices.Clone(e.Tags)
	return &e
}

func (m *memoryDB) GetEvent(_ context.Context, id string) (*models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return clone(e), nil
}

func (m *memoryDB) ListEvents(_ context.Context, clubID string) ([]models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Event
	for _, e := range m.events {
		if clubID == "" || e.ClubID == clubID {
			out = append(out, *clone(e))
		}
	}
	return out, nil
}

func (m *memoryDB) CreateEvent(_ context.Context, e *models.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[e.ID] = *clone(*e)
	return nil
}

func (m *memoryDB) UpdateEvent(_ context.Context, e *models.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	m.events[e.ID] = *clone(*e)
	return nil
}

func (m *memoryDB) UpdateMembership(_ context.Context, id string, attendees, waitlist []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[id]
	if !ok {
		return apperr.ErrNotFound
	}
	m.writes++
	e.Attendees = slices.Clone(attendees)
	e.Waitlist = slices.Clone(waitlist)
	m.events[id] = e
	return nil
}

type MockDB struct {
	mock.Mock
}

func (m *MockDB) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Event), args.Error(1)
}

func (m *MockDB) ListEvents(ctx context.Context, clubID string) ([]models.Event, error) {
	args := m.Called(ctx, clubID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Event), args.Error(1)
}

func (m *MockDB) CreateEvent(ctx context.Context, e *models.Event) error {
	return m.Called(ctx, e).Error(0)
}

func (m *MockDB) UpdateEvent(ctx context.Context, e *models.Event) error {
	return m.Called(ctx, e).Error(0)
}

func (m *MockDB) UpdateMembership(ctx context.Context, id string, attendees, waitlist []string) error {
	return m.Called(ctx, id, attendees, waitlist).Error(0)
}

type clubs map[string]*models.Club

func (c clubs) GetClub(_ context.Context, id string) (*models.Club, error) {
	if club, ok := c[id]; ok {
		return club, nil
	}
	return nil, apperr.ErrNotFound
}

type openLock struct{ err error }

func (l openLock) Acquire(context.Context, string) (func(), error) {
	if l.err != nil {
		return nil, l.err
	}
	return func() {}, nil
}

type published struct {
	Topic   string
	Key     string
	Payload any
}

type recordingKafka struct {
	mu       sync.Mutex
	messages []published
}

func (k *recordingKafka) PublishJSON(_ context.Context, topic, key string, payload any) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.messages = append(k.messages, published{topic, key, payload})
	return nil
}

func (k *recordingKafka) onTopic(topic string) []published {
	k.mu.Lock()
	defer k.mu.Unlock()
	var out []published
	for _, m := range k.messages {
		if m.Topic == topic {
			out = append(out, m)
		}
	}
	return out
}

type recordingFeed struct {
	mu      sync.Mutex
	updates []sse.EventUpdate
}

func (f *recordingFeed) Publish(updateType string, e models.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, sse.EventUpdate{Type: updateType, Event: e})
}

type MockPayments struct {
	mock.Mock
}

func (m *MockPayments) CreateCheckoutSession(ctx context.Context, req models.CheckoutRequest) (*models.CheckoutSession, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CheckoutSession), args.Error(1)
}

type MockAssets struct {
	mock.Mock
}

func (m *MockAssets) Upload(ctx context.Context, uploaderID, path string, content io.Reader) (string, error) {
	args := m.Called(ctx, uploaderID, path, content)
	return args.String(0), args.Error(1)
}

func (m *MockAssets) Delete(ctx context.Context, path string) error {
	return m.Called(ctx, path).Error(0)
}

type nopMetrics struct{}

func (nopMetrics) RecordMembership(string, int) {}
func (nopMetrics) ObserveLockWait(float64)      {}

var (
	now    = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	topics = config.TopicConfig{
		Membership: "membership",
		Promoted:   "promoted",
		Reminder:   "reminder",
	}
)

type fixture struct {
	svc      *events.Service
	db       *memoryDB
	kafka    *recordingKafka
	feed     *recordingFeed
	payments *MockPayments
	assets   *MockAssets
}

func newFixture(t *testing.T, list ...models.Event) *fixture {
	t.Helper()
	qr, err := passes.NewQRGenerator("test-secret")
	require.NoError(t, err)

	f := &fixture{
		db:       newMemoryDB(list...),
		kafka:    &recordingKafka{},
		feed:     &recordingFeed{},
		payments: new(MockPayments),
		assets:   new(MockAssets),
	}
	f.svc = &events.Service{
		DB: f.db,
		Clubs: clubs{
			"club-1": {
				ID:       "club-1",
				Name:     "Trail Runners",
				OwnerID:  "owner",
				Admins:   []string{"admin"},
				Members:  []string{"member"},
				IsPublic: true,
			},
			"club-private": {
				ID:      "club-private",
				Name:    "Dawn Patrol",
				OwnerID: "owner",
				Members: []string{"member"},
			},
		},
		Lock:     openLock{},
		Kafka:    f.kafka,
		Feed:     f.feed,
		Payments: f.payments,
		Assets:   f.assets,
		Passes:   qr,
		Metrics:  nopMetrics{},
		Topics:   topics,
		Currency: "usd",
		Logger:   logger.Nop(),
		Now:      func() time.Time { return now },
	}
	return f
}

func capacity(n int) *int { return &n }

func event(id string, max *int, attendees, waitlist []string) models.Event {
	return models.Event{
		ID:           id,
		Title:        "Hill repeats",
		ClubID:       "club-1",
		ClubName:     "Trail Runners",
		CreatorID:    "owner",
		StartDate:    now.Add(48 * time.Hour),
		EndDate:      now.Add(50 * time.Hour),
		MaxAttendees: max,
		Attendees:    attendees,
		Waitlist:     waitlist,
	}
}

func user(id string) models.Session {
	return models.Session{UserID: id, Authenticated: true}
}

func TestJoinFillsThenWaitlists(t *testing.T) {
	f := newFixture(t, event("e1", capacity(2), []string{}, []string{}))
	ctx := context.Background()

	for _, u := range []string{"u1", "u2"} {
		change, err := f.svc.Join(ctx, user(u), "e1")
		require.NoError(t, err)
		assert.Equal(t, membership.OutcomeJoined, change.Outcome)
		assert.Zero(t, change.WaitlistPosition)
	}

	change, err := f.svc.Join(ctx, user("u3"), "e1")
	require.NoError(t, err)
	assert.Equal(t, membership.OutcomeWaitlisted, change.Outcome)
	assert.Equal(t, 1, change.WaitlistPosition)
	assert.Equal(t, []string{"u1", "u2"}, change.Event.Attendees)
	assert.Equal(t, []string{"u3"}, change.Event.Waitlist)

	stored, _ := f.db.GetEvent(ctx, "e1")
	assert.Equal(t, []string{"u3"}, stored.Waitlist)

	msgs := f.kafka.onTopic("membership")
	require.Len(t, msgs, 3)
	last := msgs[2].Payload.(models.EventMembershipMessage)
	assert.Equal(t, "waitlisted", last.Outcome)
	assert.Equal(t, 2, last.Attendees)
	assert.Equal(t, 1, last.Waitlisted)

	require.Len(t, f.feed.updates, 3)
	assert.Equal(t, sse.UpdateMembership, f.feed.updates[2].Type)
}

func TestLeavePromotesAndNotifies(t *testing.T) {
	f := newFixture(t, event("e1", capacity(2), []string{"u1", "u2"}, []string{"u3", "u4"}))

	change, err := f.svc.Leave(context.Background(), user("u1"), "e1")
	require.NoError(t, err)

	assert.Equal(t, membership.OutcomeLeft, change.Outcome)
	assert.Equal(t, []string{"u3"}, change.Promoted)
	assert.Equal(t, []string{"u2", "u3"}, change.Event.Attendees)
	assert.Equal(t, []string{"u4"}, change.Event.Waitlist)

	promoted := f.kafka.onTopic("promoted")
	require.Len(t, promoted, 1)
	assert.Equal(t, "u3", promoted[0].Key)
	note := promoted[0].Payload.(models.EventNotification)
	assert.Equal(t, models.NotificationPromoted, note.Kind)
	assert.Equal(t, "Hill repeats", note.EventTitle)
}

func TestFailedAdmissionLeavesStateUnchanged(t *testing.T) {
	f := newFixture(t, event("e1", capacity(1), []string{"u1"}, []string{"u2"}))
	ctx := context.Background()

	_, err := f.svc.Join(ctx, user("u1"), "e1")
	assert.ErrorIs(t, err, membership.ErrAlreadyMember)
	_, err = f.svc.Join(ctx, user("u2"), "e1")
	assert.ErrorIs(t, err, membership.ErrAlreadyWaitlisted)
	_, err = f.svc.Leave(ctx, user("ghost"), "e1")
	assert.ErrorIs(t, err, membership.ErrNotMember)

	assert.Zero(t, f.db.writes)
	assert.Empty(t, f.kafka.messages)
	assert.Empty(t, f.feed.updates)
}

func TestJoinErrors(t *testing.T) {
	paid := event("paid", nil, []string{}, []string{})
	paid.Price = 15
	f := newFixture(t, paid)
	ctx := context.Background()

	_, err := f.svc.Join(ctx, user("u1"), "paid")
	assert.ErrorIs(t, err, events.ErrPaymentRequired)
	assert.Equal(t, http.StatusPaymentRequired, apperr.Status(err))

	_, err = f.svc.Join(ctx, user("u1"), "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.svc.Join(ctx, models.Session{}, "paid")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	f.svc.Lock = openLock{err: apperr.ErrBusy}
	_, err = f.svc.Join(ctx, user("u1"), "paid")
	assert.ErrorIs(t, err, apperr.ErrBusy)
}

func TestDatabaseFailureIsExternal(t *testing.T) {
	f := newFixture(t)
	db := new(MockDB)
	e := event("e1", nil, []string{}, []string{})
	db.On("GetEvent", mock.Anything, "e1").Return(&e, nil)
	db.On("UpdateMembership", mock.Anything, "e1", []string{"u1"}, []string{}).Return(errors.New("connection reset"))
	f.svc.DB = db

	_, err := f.svc.Join(context.Background(), user("u1"), "e1")
	var ext *apperr.ExternalFailure
	require.ErrorAs(t, err, &ext)
	assert.Equal(t, "database", ext.Service)
	assert.Empty(t, f.kafka.messages)
	db.AssertExpectations(t)
}

func TestConfirmPaidJoinIsIdempotent(t *testing.T) {
	paid := event("paid", capacity(1), []string{}, []string{})
	paid.Price = 20
	f := newFixture(t, paid)
	ctx := context.Background()

	first, err := f.svc.ConfirmPaidJoin(ctx, "paid", "u1")
	require.NoError(t, err)
	assert.Equal(t, membership.OutcomeJoined, first.Outcome)

	again, err := f.svc.ConfirmPaidJoin(ctx, "paid", "u1")
	require.NoError(t, err)
	assert.Equal(t, membership.OutcomeJoined, again.Outcome)
	assert.Equal(t, []string{"u1"}, again.Event.Attendees)

	require.NoError(t, f.svc.CheckoutCompleted(ctx, models.CompletedCheckout{ReferenceID: "paid", UserID: "u2"}))
	stored, _ := f.db.GetEvent(ctx, "paid")
	assert.Equal(t, []string{"u2"}, stored.Waitlist)

	again, err = f.svc.ConfirmPaidJoin(ctx, "paid", "u2")
	require.NoError(t, err)
	assert.Equal(t, membership.OutcomeWaitlisted, again.Outcome)
	assert.Equal(t, 1, again.WaitlistPosition)
	assert.Len(t, f.kafka.onTopic("membership"), 2)
}

func TestCheckout(t *testing.T) {
	paid := event("paid", nil, []string{"u1"}, []string{})
	paid.Price = 12.5
	f := newFixture(t, paid, event("free", nil, []string{}, []string{}))
	ctx := context.Background()

	f.payments.On("CreateCheckoutSession", mock.Anything, mock.MatchedBy(func(req models.CheckoutRequest) bool {
		return req.Purpose == models.PurposeEventTicket &&
			req.ReferenceID == "paid" &&
			req.UserID == "u2" &&
			req.Amount == 12.5 &&
			req.Currency == "usd" &&
			req.Metadata["club_id"] == "club-1"
	})).Return(&models.CheckoutSession{ID: "cs_1", CheckoutURL: "https://pay/cs_1"}, nil)

	sess, err := f.svc.Checkout(ctx, user("u2"), "paid")
	require.NoError(t, err)
	assert.Equal(t, "https://pay/cs_1", sess.CheckoutURL)

	_, err = f.svc.Checkout(ctx, user("u1"), "paid")
	assert.ErrorIs(t, err, membership.ErrAlreadyMember)

	_, err = f.svc.Checkout(ctx, user("u2"), "free")
	assert.Equal(t, http.StatusBadRequest, apperr.Status(err))

	f.payments.AssertNumberOfCalls(t, "CreateCheckoutSession", 1)
}

func createForm() events.CreateEventForm {
	return events.CreateEventForm{
		ClubID:       "club-1",
		Title:        "  Night trail  ",
		Location:     "North ridge",
		Tags:         []string{"trail"},
		StartDate:    now.Add(24 * time.Hour),
		EndDate:      now.Add(26 * time.Hour),
		MaxAttendees: capacity(10),
	}
}

func TestCreateEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cover := &events.Upload{Filename: "cover.png", Content: bytes.NewReader([]byte("png"))}

	f.assets.On("Upload", mock.Anything, "member", mock.MatchedBy(func(p string) bool {
		return len(p) > len("events/") && p[:7] == "events/"
	}), cover.Content).Return("http://assets/events/x/cover", nil)

	created, err := f.svc.CreateEvent(ctx, user("member"), createForm(), cover)
	require.NoError(t, err)
	assert.Equal(t, "Night trail", created.Title)
	assert.Equal(t, "Trail Runners", created.ClubName)
	assert.Equal(t, "member", created.CreatorID)
	assert.Equal(t, "usd", created.Currency)
	assert.Equal(t, "http://assets/events/x/cover", created.CoverImageURL)
	assert.NotNil(t, created.Attendees)

	stored, err := f.db.GetEvent(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Title, stored.Title)

	require.Len(t, f.feed.updates, 1)
	assert.Equal(t, sse.UpdateCreated, f.feed.updates[0].Type)
	f.assets.AssertExpectations(t)
}

func TestCreateEventRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateEvent(ctx, user("stranger"), createForm(), nil)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	form := createForm()
	form.Title = ""
	form.EndDate = form.StartDate.Add(-time.Hour)
	_, err = f.svc.CreateEvent(ctx, user("member"), form, nil)
	var invalid *apperr.ValidationError
	require.ErrorAs(t, err, &invalid)
	fields := []string{}
	for _, fe := range invalid.Fields {
		fields = append(fields, fe.Field)
	}
	assert.ElementsMatch(t, []string{"title", "end_date"}, fields)

	form = createForm()
	form.ClubID = "club-404"
	_, err = f.svc.CreateEvent(ctx, user("member"), form, nil)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	f.assets.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateEventRemovesCoverWhenInsertFails(t *testing.T) {
	f := newFixture(t)
	db := new(MockDB)
	db.On("CreateEvent", mock.Anything, mock.Anything).Return(errors.New("disk full"))
	f.svc.DB = db

	var uploaded string
	f.assets.On("Upload", mock.Anything, "admin", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { uploaded = args.String(2) }).
		Return("http://assets/cover", nil)
	f.assets.On("Delete", mock.Anything, mock.Anything).Return(nil)

	_, err := f.svc.CreateEvent(context.Background(), user("admin"), createForm(), &events.Upload{Content: bytes.NewReader(nil)})
	assert.Equal(t, http.StatusBadGateway, apperr.Status(err))

	f.assets.AssertCalled(t, "Delete", mock.Anything, uploaded)
	assert.Empty(t, f.feed.updates)
}

func TestCreateEventUploadFailureStopsInsert(t *testing.T) {
	f := newFixture(t)
	f.assets.On("Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("", &apperr.UploadFailure{Path: "events/x/cover", Reason: "unsupported content type text/plain"})

	_, err := f.svc.CreateEvent(context.Background(), user("owner"), createForm(), &events.Upload{Content: bytes.NewReader([]byte("hi"))})
	var upload *apperr.UploadFailure
	assert.ErrorAs(t, err, &upload)
	assert.Empty(t, f.db.events)
}

func TestUpdateEventRaisesCapacityAndPromotes(t *testing.T) {
	f := newFixture(t, event("e1", capacity(1), []string{"u1"}, []string{"u2", "u3", "u4"}))

	updated, err := f.svc.UpdateEvent(context.Background(), user("admin"), "e1", events.UpdateEventForm{MaxAttendees: capacity(3)})
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2", "u3"}, updated.Attendees)
	assert.Equal(t, []string{"u4"}, updated.Waitlist)

	assert.Len(t, f.kafka.onTopic("promoted"), 2)
	msgs := f.kafka.onTopic("membership")
	require.Len(t, msgs, 1)
	assert.Equal(t, "rebalanced", msgs[0].Payload.(models.EventMembershipMessage).Outcome)

	updated, err = f.svc.UpdateEvent(context.Background(), user("owner"), "e1", events.UpdateEventForm{Unlimited: true})
	require.NoError(t, err)
	assert.Nil(t, updated.MaxAttendees)
	assert.Empty(t, updated.Waitlist)
	assert.Len(t, f.kafka.onTopic("promoted"), 3)
}

func TestUpdateEventRules(t *testing.T) {
	f := newFixture(t, event("e1", capacity(3), []string{"u1", "u2", "u3"}, []string{}))
	ctx := context.Background()

	_, err := f.svc.UpdateEvent(ctx, user("member"), "e1", events.UpdateEventForm{})
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = f.svc.UpdateEvent(ctx, user("admin"), "e1", events.UpdateEventForm{MaxAttendees: capacity(2)})
	assert.ErrorIs(t, err, events.ErrCapacityBelowAttendees)
	assert.Equal(t, http.StatusConflict, apperr.Status(err))

	past := now.Add(-time.Hour)
	_, err = f.svc.UpdateEvent(ctx, user("admin"), "e1", events.UpdateEventForm{EndDate: &past})
	assert.Equal(t, http.StatusBadRequest, apperr.Status(err))

	title := "Hill sprints"
	updated, err := f.svc.UpdateEvent(ctx, user("owner"), "e1", events.UpdateEventForm{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "Hill sprints", updated.Title)
	assert.Equal(t, now, updated.UpdatedAt)
	assert.Empty(t, f.kafka.messages)
	require.Len(t, f.feed.updates, 1)
	assert.Equal(t, sse.UpdateChanged, f.feed.updates[0].Type)
}

func TestPassRoundTrip(t *testing.T) {
	f := newFixture(t, event("e1", nil, []string{"u1"}, []string{"u2"}))
	ctx := context.Background()

	png, err := f.svc.Pass(ctx, user("u1"), "e1")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))

	_, err = f.svc.Pass(ctx, user("u2"), "e1")
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	token, err := f.svc.Passes.(*passes.QRGenerator).Token(passes.Pass{EventID: "e1", UserID: "u1", IssuedAt: now})
	require.NoError(t, err)

	check, err := f.svc.VerifyPass(ctx, user("admin"), "e1", token)
	require.NoError(t, err)
	assert.True(t, check.Attending)
	assert.Equal(t, "u1", check.UserID)

	_, err = f.svc.VerifyPass(ctx, user("u1"), "e1", token)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = f.svc.VerifyPass(ctx, user("admin"), "e1", "garbage")
	assert.Equal(t, http.StatusBadRequest, apperr.Status(err))
}

// Concurrent joins through the Redis admission lock never overfill an event.
func TestConcurrentJoinsRespectCapacity(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	f := newFixture(t, event("e1", capacity(5), []string{}, []string{}))
	f.svc.Lock = eventredis.NewAdmissionLock(client, config.AdmissionConfig{
		LockTTL:    5 * time.Second,
		Retries:    500,
		RetryDelay: 2 * time.Millisecond,
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.Join(context.Background(), user(fmt.Sprintf("u%d", i)), "e1")
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	stored, err := f.db.GetEvent(context.Background(), "e1")
	require.NoError(t, err)
	assert.Len(t, stored.Attendees, 5)
	assert.Len(t, stored.Waitlist, 15)
}

func TestListEvents(t *testing.T) {
	f := newFixture(t, event("e1", nil, nil, nil))
	list, err := f.svc.ListEvents(context.Background(), user("u1"), "club-1")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = f.svc.GetEvent(context.Background(), user("u1"), "nope")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func privateEvent(id string) models.Event {
	e := event(id, capacity(4), []string{"member"}, []string{})
	e.ClubID = "club-private"
	return e
}

func TestPrivateClubEventsRequireMembership(t *testing.T) {
	paid := privateEvent("paid-private")
	paid.Price = 10
	f := newFixture(t, event("open", nil, nil, nil), privateEvent("dawn"), paid)
	ctx := context.Background()

	ids := func(list []models.Event) []string {
		out := []string{}
		for _, e := range list {
			out = append(out, e.ID)
		}
		return out
	}

	list, err := f.svc.ListEvents(ctx, user("outsider"), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"open"}, ids(list))

	list, err = f.svc.ListEvents(ctx, models.Session{}, "club-private")
	require.NoError(t, err)
	assert.Empty(t, list)

	list, err = f.svc.ListEvents(ctx, user("member"), "")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"open", "dawn", "paid-private"}, ids(list))

	_, err = f.svc.GetEvent(ctx, user("outsider"), "dawn")
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	got, err := f.svc.GetEvent(ctx, user("member"), "dawn")
	require.NoError(t, err)
	assert.Equal(t, "dawn", got.ID)

	_, err = f.svc.Join(ctx, user("outsider"), "dawn")
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = f.svc.Checkout(ctx, user("outsider"), "paid-private")
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = f.svc.Pass(ctx, user("outsider"), "dawn")
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	assert.Zero(t, f.db.writes)
	assert.Empty(t, f.kafka.messages)
	f.payments.AssertNotCalled(t, "CreateCheckoutSession", mock.Anything, mock.Anything)

	change, err := f.svc.Leave(ctx, user("member"), "dawn")
	require.NoError(t, err)
	assert.Equal(t, membership.OutcomeLeft, change.Outcome)
}

func TestCheckoutRejectsFullEvent(t *testing.T) {
	paid := event("paid", capacity(1), []string{"u1"}, []string{})
	paid.Price = 25
	f := newFixture(t, paid)

	_, err := f.svc.Checkout(context.Background(), user("u2"), "paid")
	assert.ErrorIs(t, err, events.ErrEventFull)
	assert.Equal(t, http.StatusConflict, apperr.Status(err))
	f.payments.AssertNotCalled(t, "CreateCheckoutSession", mock.Anything, mock.Anything)
}

// trackingLock records whether the admission lock is held.
type trackingLock struct {
	mu   sync.Mutex
	held bool
}

func (l *trackingLock) Acquire(context.Context, string) (func(), error) {
	l.mu.Lock()
	l.held = true
	l.mu.Unlock()
	return func() {
		l.mu.Lock()
		l.held = false
		l.mu.Unlock()
	}, nil
}

func (l *trackingLock) isHeld() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held
}

// lockCheckingKafka notes the lock state at every publish.
type lockCheckingKafka struct {
	lock      *trackingLock
	mu        sync.Mutex
	underLock int
	total     int
}

func (k *lockCheckingKafka) PublishJSON(context.Context, string, string, any) error {
	held := k.lock.isHeld()
	k.mu.Lock()
	defer k.mu.Unlock()
	k.total++
	if held {
		k.underLock++
	}
	return nil
}

func TestAnnouncementsAfterLockRelease(t *testing.T) {
	f := newFixture(t, event("e1", capacity(1), []string{"u1"}, []string{"u2", "u3"}))
	lock := &trackingLock{}
	kafka := &lockCheckingKafka{lock: lock}
	f.svc.Lock = lock
	f.svc.Kafka = kafka
	ctx := context.Background()

	_, err := f.svc.Join(ctx, user("u4"), "e1")
	require.NoError(t, err)
	_, err = f.svc.Leave(ctx, user("u1"), "e1")
	require.NoError(t, err)
	_, err = f.svc.UpdateEvent(ctx, user("owner"), "e1", events.UpdateEventForm{Unlimited: true})
	require.NoError(t, err)
	_, err = f.svc.ConfirmPaidJoin(ctx, "e1", "u5")
	require.NoError(t, err)

	assert.Positive(t, kafka.total)
	assert.Zero(t, kafka.underLock)
	assert.False(t, lock.isHeld())
}
