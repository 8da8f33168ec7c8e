// Package clubs is the club screen controller: club directory, membership
// roster, admin delegation, stats and the calendar export.
package clubs

import (
	"context"
	"fmt"
	"net/http"
	"rallysphere/internal/apperr"
	"rallysphere/internal/calendar"
	"rallysphere/internal/logger"
	"rallysphere/internal/models"
	"rallysphere/internal/validation"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrOwnerCannotLeave = apperr.New(http.StatusConflict, "alert.owner_cannot_leave", "the club owner cannot leave the club")
	ErrNotClubMember    = apperr.New(http.StatusConflict, "alert.not_club_member", "user is not a member of this club")
)

type DBLayer interface {
	GetClub(ctx context.Context, id string) (*models.Club, error)
	ListClubs(ctx context.Context) ([]models.Club, error)
	CreateClub(ctx context.Context, club *models.Club) error
	UpdateRoster(ctx context.Context, id string, members, admins []string) error
}

type EventLister interface {
	ListEvents(ctx context.Context, clubID string) ([]models.Event, error)
}

type OrderTotals interface {
	OrderTotals(ctx context.Context, clubID string) ([]models.StatusTotal, error)
}

type Service struct {
	DB     DBLayer
	Events EventLister
	Orders OrderTotals
	// EventURL is a format string receiving an event id, used in calendar
	// entries. Empty disables links.
	EventURL string
	Currency string
	Logger   *logger.Logger
	Now      func() time.Time
}

func (s *Service) GetClub(ctx context.Context, id string) (*models.Club, error) {
	club, err := s.DB.GetClub(ctx, id)
	if err != nil {
		return nil, apperr.External("database", err)
	}
	return club, nil
}

// ListClubs returns public clubs and the private clubs the caller belongs to.
func (s *Service) ListClubs(ctx context.Context, session models.Session) ([]models.Club, error) {
	all, err := s.DB.ListClubs(ctx)
	if err != nil {
		return nil, apperr.External("database", err)
	}
	visible := make([]models.Club, 0, len(all))
	for _, c := range all {
		if c.IsPublic || c.IsMember(session.UserID) {
			visible = append(visible, c)
		}
	}
	return visible, nil
}

// CreateClub stores a new club owned by the caller, who also becomes its
// first member and admin.
func (s *Service) CreateClub(ctx context.Context, session models.Session, form CreateClubForm) (*models.Club, error) {
	if !session.Valid() {
		return nil, apperr.ErrUnauthorized
	}
	if err := validation.Struct(form); err != nil {
		return nil, err
	}

	currency := strings.ToLower(form.Currency)
	if currency == "" {
		currency = s.Currency
	}
	now := s.Now()
	club := &models.Club{
		ID:                uuid.NewString(),
		Name:              strings.TrimSpace(form.Name),
		Description:       form.Description,
		Members:           []string{session.UserID},
		Admins:            []string{session.UserID},
		OwnerID:           session.UserID,
		IsPublic:          form.IsPublic,
		SubscriptionPrice: form.SubscriptionPrice,
		Currency:          currency,
		ImageURL:          form.ImageURL,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.DB.CreateClub(ctx, club); err != nil {
		s.Logger.Error("CLUB", fmt.Sprintf("Insert of club %q failed: %v", club.Name, err))
		return nil, apperr.External("database", err)
	}

	s.Logger.Info("CLUB", fmt.Sprintf("Club %s (%q) created by %s", club.ID, club.Name, session.UserID))
	return club, nil
}

// JoinClub adds the caller to a public club. Joining twice is a no-op.
func (s *Service) JoinClub(ctx context.Context, session models.Session, clubID string) (*models.Club, error) {
	if !session.Valid() {
		return nil, apperr.ErrUnauthorized
	}
	club, err := s.GetClub(ctx, clubID)
	if err != nil {
		return nil, err
	}
	if club.IsMember(session.UserID) {
		return club, nil
	}
	if !club.IsPublic {
		s.Logger.LogSecurity("CLUB_JOIN_DENIED", fmt.Sprintf("user %s on private club %s", session.UserID, club.ID))
		return nil, apperr.ErrForbidden
	}

	club.Members = append(slices.Clone(club.Members), session.UserID)
	if err := s.saveRoster(ctx, club); err != nil {
		return nil, err
	}
	s.Logger.Info("CLUB", fmt.Sprintf("User %s joined club %s", session.UserID, club.ID))
	return club, nil
}

// LeaveClub removes the caller from members and admins. The owner cannot
// leave.
func (s *Service) LeaveClub(ctx context.Context, session models.Session, clubID string) (*models.Club, error) {
	if !session.Valid() {
		return nil, apperr.ErrUnauthorized
	}
	club, err := s.GetClub(ctx, clubID)
	if err != nil {
		return nil, err
	}
	if club.OwnerID == session.UserID {
		return nil, ErrOwnerCannotLeave
	}
	if !club.IsMember(session.UserID) {
		return nil, ErrNotClubMember
	}

	club.Members = without(club.Members, session.UserID)
	club.Admins = without(club.Admins, session.UserID)
	if err := s.saveRoster(ctx, club); err != nil {
		return nil, err
	}
	s.Logger.Info("CLUB", fmt.Sprintf("User %s left club %s", session.UserID, club.ID))
	return club, nil
}

// AddAdmin promotes an existing member to admin. Only admins may do this.
func (s *Service) AddAdmin(ctx context.Context, session models.Session, clubID string, form AddAdminForm) (*models.Club, error) {
	if !session.Valid() {
		return nil, apperr.ErrUnauthorized
	}
	if err := validation.Struct(form); err != nil {
		return nil, err
	}
	club, err := s.authorizeAdmin(ctx, session, clubID)
	if err != nil {
		return nil, err
	}
	if !club.IsMember(form.UserID) {
		return nil, apperr.Invalid("user_id", "must be a club member")
	}
	if club.IsAdmin(form.UserID) {
		return club, nil
	}

	club.Admins = append(slices.Clone(club.Admins), form.UserID)
	if !slices.Contains(club.Members, form.UserID) {
		club.Members = append(slices.Clone(club.Members), form.UserID)
	}
	if err := s.saveRoster(ctx, club); err != nil {
		return nil, err
	}
	s.Logger.LogSecurity("CLUB_ADMIN_ADDED", fmt.Sprintf("user %s made admin of %s by %s", form.UserID, club.ID, session.UserID))
	return club, nil
}

// Stats summarises events and store orders for club admins.
func (s *Service) Stats(ctx context.Context, session models.Session, clubID string) (*models.ClubStats, error) {
	if !session.Valid() {
		return nil, apperr.ErrUnauthorized
	}
	club, err := s.authorizeAdmin(ctx, session, clubID)
	if err != nil {
		return nil, err
	}

	list, err := s.Events.ListEvents(ctx, club.ID)
	if err != nil {
		return nil, apperr.External("database", err)
	}
	totals, err := s.Orders.OrderTotals(ctx, club.ID)
	if err != nil {
		return nil, apperr.External("database", err)
	}

	now := s.Now()
	stats := &models.ClubStats{
		ClubID:          club.ID,
		Members:         len(club.Members),
		Events:          len(list),
		OrdersByStatus:  make(map[string]int),
		RevenueByStatus: make(map[string]float64),
	}
	for _, e := range list {
		if e.EndDate.After(now) {
			stats.UpcomingEvents++
		}
		stats.TotalAttendees += len(e.Attendees)
		stats.TotalWaitlisted += len(e.Waitlist)
	}
	for _, t := range totals {
		stats.OrdersByStatus[string(t.Status)] = t.Orders
		stats.RevenueByStatus[string(t.Status)] = t.Revenue
		stats.RefundedAmount += t.Refunded
	}
	return stats, nil
}

// Calendar renders the club's events as an iCalendar document. Private
// club calendars are visible to members only.
func (s *Service) Calendar(ctx context.Context, session models.Session, clubID string) (string, error) {
	club, err := s.GetClub(ctx, clubID)
	if err != nil {
		return "", err
	}
	if !club.IsPublic && !club.IsMember(session.UserID) {
		return "", apperr.ErrForbidden
	}

	list, err := s.Events.ListEvents(ctx, club.ID)
	if err != nil {
		return "", apperr.External("database", err)
	}
	return calendar.Render(*club, list, s.EventURL, s.Now()), nil
}

func (s *Service) authorizeAdmin(ctx context.Context, session models.Session, clubID string) (*models.Club, error) {
	club, err := s.GetClub(ctx, clubID)
	if err != nil {
		return nil, err
	}
	if !club.IsAdmin(session.UserID) {
		s.Logger.LogSecurity("CLUB_ADMIN_DENIED", fmt.Sprintf("user %s on club %s", session.UserID, club.ID))
		return nil, apperr.ErrForbidden
	}
	return club, nil
}

func (s *Service) saveRoster(ctx context.Context, club *models.Club) error {
	club.UpdatedAt = s.Now()
	if err := s.DB.UpdateRoster(ctx, club.ID, club.Members, club.Admins); err != nil {
		s.Logger.Error("CLUB", fmt.Sprintf("Roster update of club %s failed: %v", club.ID, err))
		return apperr.External("database", err)
	}
	return nil
}

func without(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
