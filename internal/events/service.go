// Package events is the event screen controller: it loads events, runs
// create and edit forms, and applies join/leave requests under a per-event
// admission lock.
package events

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"rallysphere/internal/apperr"
	"rallysphere/internal/config"
	"rallysphere/internal/logger"
	"rallysphere/internal/membership"
	"rallysphere/internal/models"
	"rallysphere/internal/passes"
	"rallysphere/internal/sse"
	"rallysphere/internal/validation"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrPaymentRequired        = apperr.New(http.StatusPaymentRequired, "alert.payment_required", "event requires payment before joining")
	ErrCapacityBelowAttendees = apperr.New(http.StatusConflict, "alert.capacity_below_attendees", "capacity cannot be lower than the current attendee count")
	ErrEventFull              = apperr.New(http.StatusConflict, "alert.event_full", "event is full")
)

type DBLayer interface {
	GetEvent(ctx context.Context, id string) (*models.Event, error)
	ListEvents(ctx context.Context, clubID string) ([]models.Event, error)
	CreateEvent(ctx context.Context, event *models.Event) error
	UpdateEvent(ctx context.Context, event *models.Event) error
	UpdateMembership(ctx context.Context, eventID string, attendees, waitlist []string) error
}

type ClubDirectory interface {
	GetClub(ctx context.Context, id string) (*models.Club, error)
}

type AdmissionLock interface {
	Acquire(ctx context.Context, eventID string) (release func(), err error)
}

type KafkaPublisher interface {
	PublishJSON(ctx context.Context, topic, key string, payload any) error
}

type Feed interface {
	Publish(updateType string, event models.Event)
}

type PaymentGateway interface {
	CreateCheckoutSession(ctx context.Context, req models.CheckoutRequest) (*models.CheckoutSession, error)
}

type AssetStore interface {
	Upload(ctx context.Context, uploaderID, destinationPath string, content io.Reader) (string, error)
	Delete(ctx context.Context, assetPath string) error
}

type PassIssuer interface {
	PNG(p passes.Pass) ([]byte, error)
	Open(token string) (passes.Pass, error)
}

type Recorder interface {
	RecordMembership(outcome string, promoted int)
	ObserveLockWait(seconds float64)
}

type Service struct {
	DB       DBLayer
	Clubs    ClubDirectory
	Lock     AdmissionLock
	Kafka    KafkaPublisher
	Feed     Feed
	Payments PaymentGateway
	Assets   AssetStore
	Passes   PassIssuer
	Metrics  Recorder
	Topics   config.TopicConfig
	Currency string
	Logger   *logger.Logger
	Now      func() time.Time
}

// MembershipChange is the result of a join or leave.
type MembershipChange struct {
	Event   *models.Event      `json:"event"`
	Outcome membership.Outcome `json:"outcome"`
	// WaitlistPosition is 1-based; 0 when the user is not waitlisted.
	WaitlistPosition int      `json:"waitlist_position,omitempty"`
	Promoted         []string `json:"promoted,omitempty"`
}

// PassCheck is the outcome of scanning an attendee pass.
type PassCheck struct {
	EventID   string    `json:"event_id"`
	UserID    string    `json:"user_id"`
	Attending bool      `json:"attending"`
	IssuedAt  time.Time `json:"issued_at"`
}

// GetEvent returns the event when the caller may see it: its club is
// public or the caller belongs to it.
func (s *Service) GetEvent(ctx context.Context, session models.Session, id string) (*models.Event, error) {
	event, err := s.fetchEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeView(ctx, session, event); err != nil {
		return nil, err
	}
	return event, nil
}

// ListEvents returns the events of clubID, or of all clubs when clubID is
// empty, leaving out private clubs the caller is not a member of.
func (s *Service) ListEvents(ctx context.Context, session models.Session, clubID string) ([]models.Event, error) {
	list, err := s.DB.ListEvents(ctx, clubID)
	if err != nil {
		return nil, apperr.External("database", err)
	}

	visible := make(map[string]bool)
	out := make([]models.Event, 0, len(list))
	for _, e := range list {
		ok, seen := visible[e.ClubID]
		if !seen {
			if ok, err = s.CanViewClub(ctx, session, e.ClubID); err != nil {
				return nil, err
			}
			visible[e.ClubID] = ok
		}
		if ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Service) fetchEvent(ctx context.Context, id string) (*models.Event, error) {
	event, err := s.DB.GetEvent(ctx, id)
	if err != nil {
		return nil, apperr.External("database", err)
	}
	return event, nil
}

// CreateEvent validates form and stores a new event. The cover, when given,
// is uploaded first and removed again if the insert fails.
func (s *Service) CreateEvent(ctx context.Context, session models.Session, form CreateEventForm, cover *Upload) (*models.Event, error) {
	if !session.Valid() {
		return nil, apperr.ErrUnauthorized
	}
	if err := validation.Struct(form); err != nil {
		return nil, err
	}

	club, err := s.Clubs.GetClub(ctx, form.ClubID)
	if err != nil {
		return nil, apperr.External("database", err)
	}
	if !club.IsMember(session.UserID) {
		s.Logger.LogSecurity("EVENT_CREATE_DENIED", fmt.Sprintf("user %s is not a member of club %s", session.UserID, club.ID))
		return nil, apperr.ErrForbidden
	}

	now := s.Now()
	event := &models.Event{
		ID:               uuid.NewString(),
		Title:            strings.TrimSpace(form.Title),
		Description:      form.Description,
		Location:         form.Location,
		Tags:             nonNil(form.Tags),
		StartDate:        form.StartDate,
		EndDate:          form.EndDate,
		MaxAttendees:     form.MaxAttendees,
		Attendees:        []string{},
		Waitlist:         []string{},
		Price:            form.Price,
		Currency:         s.currency(form.Currency),
		CreatorID:        session.UserID,
		ClubID:           club.ID,
		ClubName:         club.Name,
		IsPublic:         form.IsPublic,
		RequiresApproval: form.RequiresApproval,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	var coverPath string
	if cover != nil {
		coverPath = fmt.Sprintf("events/%s/cover", event.ID)
		url, err := s.Assets.Upload(ctx, session.UserID, coverPath, cover.Content)
		if err != nil {
			s.Logger.Error("EVENT", fmt.Sprintf("Cover upload for new event in club %s failed: %v", club.ID, err))
			return nil, err
		}
		event.CoverImageURL = url
	}

	if err := s.DB.CreateEvent(ctx, event); err != nil {
		s.Logger.Error("EVENT", fmt.Sprintf("Insert of event %s failed: %v", event.ID, err))
		if coverPath != "" {
			if derr := s.Assets.Delete(ctx, coverPath); derr != nil {
				s.Logger.Error("EVENT", fmt.Sprintf("Could not remove orphaned cover %s: %v", coverPath, derr))
			}
		}
		return nil, apperr.External("database", err)
	}

	s.Logger.LogEvent("CREATED", event.ID, fmt.Sprintf("%q in club %s by %s", event.Title, club.ID, session.UserID))
	s.Feed.Publish(sse.UpdateCreated, *event)
	return event, nil
}

// UpdateEvent applies an admin edit. Raising or removing the cap promotes
// waitlisted users in queue order.
func (s *Service) UpdateEvent(ctx context.Context, session models.Session, id string, form UpdateEventForm) (*models.Event, error) {
	if !session.Valid() {
		return nil, apperr.ErrUnauthorized
	}
	if err := validation.Struct(form); err != nil {
		return nil, err
	}

	event, promoted, err := s.edit(ctx, session, id, form)
	if err != nil {
		return nil, err
	}

	s.Logger.LogEvent("UPDATED", event.ID, fmt.Sprintf("edited by %s, %d promoted", session.UserID, len(promoted)))
	if len(promoted) > 0 {
		s.announce(ctx, event, session.UserID, membership.OutcomeRebalanced, promoted)
	}
	s.Feed.Publish(sse.UpdateChanged, *event)
	return event, nil
}

// edit applies form and stores the event while holding its admission lock.
func (s *Service) edit(ctx context.Context, session models.Session, id string, form UpdateEventForm) (*models.Event, []string, error) {
	release, err := s.acquire(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	defer release()

	event, err := s.fetchEvent(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if err := s.authorizeAdmin(ctx, session, event); err != nil {
		return nil, nil, err
	}

	if form.Title != nil {
		event.Title = strings.TrimSpace(*form.Title)
	}
	if form.Description != nil {
		event.Description = *form.Description
	}
	if form.Location != nil {
		event.Location = *form.Location
	}
	if form.Tags != nil {
		event.Tags = form.Tags
	}
	if form.StartDate != nil {
		event.StartDate = *form.StartDate
	}
	if form.EndDate != nil {
		event.EndDate = *form.EndDate
	}
	if form.Price != nil {
		event.Price = *form.Price
	}
	if form.IsPublic != nil {
		event.IsPublic = *form.IsPublic
	}
	if form.RequiresApproval != nil {
		event.RequiresApproval = *form.RequiresApproval
	}
	if !event.EndDate.After(event.StartDate) {
		return nil, nil, apperr.Invalid("end_date", "must be after start_date")
	}

	previous := event.MaxAttendees
	switch {
	case form.Unlimited:
		event.MaxAttendees = nil
	case form.MaxAttendees != nil:
		if *form.MaxAttendees < len(event.Attendees) {
			return nil, nil, ErrCapacityBelowAttendees
		}
		capacity := *form.MaxAttendees
		event.MaxAttendees = &capacity
	}

	var promoted []string
	if grew(previous, event.MaxAttendees) {
		res := membership.Rebalance(snapshot(event))
		event.Attendees, event.Waitlist = res.Attendees, res.Waitlist
		promoted = res.PromotedAll
	}

	event.UpdatedAt = s.Now()
	if err := s.DB.UpdateEvent(ctx, event); err != nil {
		return nil, nil, apperr.External("database", err)
	}
	return event, promoted, nil
}

// Join admits the caller to a free event or puts them on its waitlist.
func (s *Service) Join(ctx context.Context, session models.Session, eventID string) (*MembershipChange, error) {
	if !session.Valid() {
		return nil, apperr.ErrUnauthorized
	}
	return s.admit(ctx, eventID, session.UserID, func(event *models.Event) (membership.Result, error) {
		if err := s.authorizeView(ctx, session, event); err != nil {
			return membership.Result{}, err
		}
		if event.IsPaid() {
			return membership.Result{}, ErrPaymentRequired
		}
		return membership.Join(snapshot(event), session.UserID)
	})
}

// ConfirmPaidJoin runs the join path after a successful ticket charge.
// Repeated confirmations for the same user return the current state.
func (s *Service) ConfirmPaidJoin(ctx context.Context, eventID, userID string) (*MembershipChange, error) {
	change, err := s.admit(ctx, eventID, userID, func(event *models.Event) (membership.Result, error) {
		return membership.Join(snapshot(event), userID)
	})
	if errors.Is(err, membership.ErrAlreadyMember) || errors.Is(err, membership.ErrAlreadyWaitlisted) {
		s.Logger.Info("EVENT", fmt.Sprintf("Duplicate paid join for user %s on event %s ignored", userID, eventID))
		event, gerr := s.fetchEvent(ctx, eventID)
		if gerr != nil {
			return nil, gerr
		}
		outcome := membership.OutcomeJoined
		if errors.Is(err, membership.ErrAlreadyWaitlisted) {
			outcome = membership.OutcomeWaitlisted
		}
		return &MembershipChange{Event: event, Outcome: outcome, WaitlistPosition: waitlistPosition(event, userID)}, nil
	}
	if err == nil && change.Outcome == membership.OutcomeWaitlisted {
		// The event filled between checkout and payment.
		s.Logger.Warn("EVENT", fmt.Sprintf("Paid user %s waitlisted on full event %s, refund needs review", userID, eventID))
	}
	return change, err
}

// Leave removes the caller from the event. A freed seat goes to the head of
// the waitlist.
func (s *Service) Leave(ctx context.Context, session models.Session, eventID string) (*MembershipChange, error) {
	if !session.Valid() {
		return nil, apperr.ErrUnauthorized
	}
	return s.admit(ctx, eventID, session.UserID, func(event *models.Event) (membership.Result, error) {
		return membership.Leave(snapshot(event), session.UserID)
	})
}

// Checkout opens a payment session for a paid event.
func (s *Service) Checkout(ctx context.Context, session models.Session, eventID string) (*models.CheckoutSession, error) {
	if !session.Valid() {
		return nil, apperr.ErrUnauthorized
	}

	event, err := s.GetEvent(ctx, session, eventID)
	if err != nil {
		return nil, err
	}
	if !event.IsPaid() {
		return nil, apperr.Invalid("event_id", "event does not require payment")
	}
	if attending, idx := membership.Position(snapshot(event), session.UserID); attending {
		return nil, membership.ErrAlreadyMember
	} else if idx >= 0 {
		return nil, membership.ErrAlreadyWaitlisted
	}
	if event.IsFull() {
		return nil, ErrEventFull
	}

	checkout, err := s.Payments.CreateCheckoutSession(ctx, models.CheckoutRequest{
		Purpose:     models.PurposeEventTicket,
		ReferenceID: event.ID,
		UserID:      session.UserID,
		Description: event.Title,
		Amount:      event.Price,
		Currency:    s.currency(event.Currency),
		Quantity:    1,
		Metadata:    map[string]string{"club_id": event.ClubID},
	})
	if err != nil {
		return nil, err
	}

	s.Logger.LogEvent("CHECKOUT", event.ID, fmt.Sprintf("session %s opened for %s", checkout.ID, session.UserID))
	return checkout, nil
}

// CheckoutCompleted is called by the payment webhook for ticket purchases.
func (s *Service) CheckoutCompleted(ctx context.Context, c models.CompletedCheckout) error {
	_, err := s.ConfirmPaidJoin(ctx, c.ReferenceID, c.UserID)
	return err
}

// CheckoutExpired is a no-op for tickets: nothing is reserved before payment.
func (s *Service) CheckoutExpired(_ context.Context, c models.CompletedCheckout) error {
	s.Logger.Info("EVENT", fmt.Sprintf("Ticket checkout %s for event %s expired", c.SessionID, c.ReferenceID))
	return nil
}

// Pass renders the caller's attendee pass as a PNG QR code.
func (s *Service) Pass(ctx context.Context, session models.Session, eventID string) ([]byte, error) {
	if !session.Valid() {
		return nil, apperr.ErrUnauthorized
	}
	event, err := s.GetEvent(ctx, session, eventID)
	if err != nil {
		return nil, err
	}
	if attending, _ := membership.Position(snapshot(event), session.UserID); !attending {
		return nil, apperr.ErrForbidden
	}

	png, err := s.Passes.PNG(passes.Pass{EventID: event.ID, UserID: session.UserID, IssuedAt: s.Now()})
	if err != nil {
		return nil, fmt.Errorf("render pass: %w", err)
	}
	return png, nil
}

// VerifyPass lets the event creator or a club admin check a scanned pass.
func (s *Service) VerifyPass(ctx context.Context, session models.Session, eventID, token string) (*PassCheck, error) {
	if !session.Valid() {
		return nil, apperr.ErrUnauthorized
	}
	event, err := s.fetchEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeAdmin(ctx, session, event); err != nil {
		return nil, err
	}

	p, err := s.Passes.Open(token)
	if err != nil || p.EventID != event.ID {
		s.Logger.LogSecurity("PASS_REJECTED", fmt.Sprintf("event %s: %v", event.ID, err))
		return nil, apperr.Invalid("token", "is not a valid pass for this event")
	}

	attending, _ := membership.Position(snapshot(event), p.UserID)
	return &PassCheck{EventID: event.ID, UserID: p.UserID, Attending: attending, IssuedAt: p.IssuedAt}, nil
}

// admit runs op against a fresh read of the event and persists the result
// under its admission lock, then announces it once the lock is released.
func (s *Service) admit(ctx context.Context, eventID, userID string, op func(*models.Event) (membership.Result, error)) (*MembershipChange, error) {
	event, res, err := s.commit(ctx, eventID, userID, op)
	if err != nil {
		return nil, err
	}

	promoted := res.PromotedAll
	if res.Promoted != "" {
		promoted = append(promoted, res.Promoted)
	}

	s.Logger.LogEvent(strings.ToUpper(string(res.Outcome)), eventID, fmt.Sprintf("user %s, %d attending, %d waitlisted", userID, len(event.Attendees), len(event.Waitlist)))
	s.announce(ctx, event, userID, res.Outcome, promoted)

	return &MembershipChange{
		Event:            event,
		Outcome:          res.Outcome,
		WaitlistPosition: waitlistPosition(event, userID),
		Promoted:         promoted,
	}, nil
}

func (s *Service) commit(ctx context.Context, eventID, userID string, op func(*models.Event) (membership.Result, error)) (*models.Event, membership.Result, error) {
	release, err := s.acquire(ctx, eventID)
	if err != nil {
		return nil, membership.Result{}, err
	}
	defer release()

	event, err := s.fetchEvent(ctx, eventID)
	if err != nil {
		return nil, membership.Result{}, err
	}

	res, err := op(event)
	if err != nil {
		s.Logger.Debug("EVENT", fmt.Sprintf("Admission for %s on %s refused: %v", userID, eventID, err))
		return nil, membership.Result{}, err
	}

	if err := s.DB.UpdateMembership(ctx, eventID, res.Attendees, res.Waitlist); err != nil {
		s.Logger.Error("EVENT", fmt.Sprintf("Writing membership of %s failed: %v", eventID, err))
		return nil, membership.Result{}, apperr.External("database", err)
	}
	event.Attendees, event.Waitlist = res.Attendees, res.Waitlist
	event.UpdatedAt = s.Now()
	return event, res, nil
}

func (s *Service) acquire(ctx context.Context, eventID string) (func(), error) {
	start := time.Now()
	release, err := s.Lock.Acquire(ctx, eventID)
	s.Metrics.ObserveLockWait(time.Since(start).Seconds())
	if err != nil {
		s.Logger.Warn("EVENT", fmt.Sprintf("Admission lock for %s not acquired: %v", eventID, err))
		return nil, err
	}
	return release, nil
}

// announce fans a membership change out to Kafka, the live feed and metrics.
// Publishing failures are logged; the change is already stored.
func (s *Service) announce(ctx context.Context, event *models.Event, userID string, outcome membership.Outcome, promoted []string) {
	msg := models.EventMembershipMessage{
		EventID:    event.ID,
		ClubID:     event.ClubID,
		UserID:     userID,
		Outcome:    string(outcome),
		Promoted:   promoted,
		Attendees:  len(event.Attendees),
		Waitlisted: len(event.Waitlist),
		OccurredAt: s.Now(),
	}
	if err := s.Kafka.PublishJSON(ctx, s.Topics.Membership, event.ID, msg); err != nil {
		s.Logger.LogKafka("PUBLISH_FAILED", s.Topics.Membership, fmt.Sprintf("event %s: %v", event.ID, err))
	}

	for _, p := range promoted {
		note := models.EventNotification{
			Kind:       models.NotificationPromoted,
			EventID:    event.ID,
			EventTitle: event.Title,
			UserID:     p,
			StartDate:  event.StartDate,
		}
		if err := s.Kafka.PublishJSON(ctx, s.Topics.Promoted, p, note); err != nil {
			s.Logger.LogKafka("PUBLISH_FAILED", s.Topics.Promoted, fmt.Sprintf("user %s: %v", p, err))
		}
	}

	s.Feed.Publish(sse.UpdateMembership, *event)
	s.Metrics.RecordMembership(string(outcome), len(promoted))
}

func (s *Service) authorizeAdmin(ctx context.Context, session models.Session, event *models.Event) error {
	if event.CreatorID == session.UserID {
		return nil
	}
	club, err := s.Clubs.GetClub(ctx, event.ClubID)
	if err != nil {
		return apperr.External("database", err)
	}
	if !club.IsAdmin(session.UserID) {
		s.Logger.LogSecurity("EVENT_ADMIN_DENIED", fmt.Sprintf("user %s on event %s", session.UserID, event.ID))
		return apperr.ErrForbidden
	}
	return nil
}

// authorizeView hides events of private clubs from non-members.
func (s *Service) authorizeView(ctx context.Context, session models.Session, event *models.Event) error {
	club, err := s.Clubs.GetClub(ctx, event.ClubID)
	if err != nil {
		return apperr.External("database", err)
	}
	if !canView(club, session) {
		s.Logger.LogSecurity("EVENT_VIEW_DENIED", fmt.Sprintf("user %s on event %s of private club %s", session.UserID, event.ID, club.ID))
		return apperr.ErrForbidden
	}
	return nil
}

// CanViewClub reports whether the caller may see events of clubID.
func (s *Service) CanViewClub(ctx context.Context, session models.Session, clubID string) (bool, error) {
	club, err := s.Clubs.GetClub(ctx, clubID)
	if errors.Is(err, apperr.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, apperr.External("database", err)
	}
	return canView(club, session), nil
}

func canView(club *models.Club, session models.Session) bool {
	return club.IsPublic || (session.Valid() && club.IsMember(session.UserID))
}

func (s *Service) currency(c string) string {
	if c == "" {
		return s.Currency
	}
	return strings.ToLower(c)
}

func snapshot(e *models.Event) membership.Snapshot {
	return membership.Snapshot{Attendees: e.Attendees, Waitlist: e.Waitlist, MaxAttendees: e.MaxAttendees}
}

func waitlistPosition(e *models.Event, userID string) int {
	_, idx := membership.Position(snapshot(e), userID)
	return idx + 1
}

// grew reports whether the cap went up or was removed.
func grew(before, after *int) bool {
	switch {
	case before == nil:
		return false
	case after == nil:
		return true
	default:
		return *after > *before
	}
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
