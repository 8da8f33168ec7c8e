package events

import (
	"rallysphere/internal/models"
	"slices"
	"sort"
	"strings"
	"time"
)

const (
	TimeframeUpcoming = "upcoming"
	TimeframePast     = "past"
	TimeframeAll      = "all"
)

// Query narrows an event list. Zero fields do not filter.
type Query struct {
	Timeframe string
	JoinedBy  string
	Search    string
}

// FilterEvents applies q to list and returns a new slice. Upcoming events
// are sorted soonest first, past events most recent first.
func FilterEvents(list []models.Event, q Query, now time.Time) []models.Event {
	search := strings.ToLower(strings.TrimSpace(q.Search))

	out := make([]models.Event, 0, len(list))
	for _, e := range list {
		switch q.Timeframe {
		case TimeframeUpcoming:
			if !e.EndDate.After(now) {
				continue
			}
		case TimeframePast:
			if e.EndDate.After(now) {
				continue
			}
		}
		if q.JoinedBy != "" && !slices.Contains(e.Attendees, q.JoinedBy) && !slices.Contains(e.Waitlist, q.JoinedBy) {
			continue
		}
		if search != "" && !matches(e, search) {
			continue
		}
		out = append(out, e)
	}

	switch q.Timeframe {
	case TimeframePast:
		sort.SliceStable(out, func(i, j int) bool { return out[i].StartDate.After(out[j].StartDate) })
	default:
		sort.SliceStable(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	}
	return out
}

func matches(e models.Event, needle string) bool {
	for _, field := range []string{e.Title, e.Description, e.ClubName} {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	for _, tag := range e.Tags {
		if strings.Contains(strings.ToLower(tag), needle) {
			return true
		}
	}
	return false
}
