// Package reminders publishes "starting soon" notification intents for the
// attendees of upcoming events, once per attendee and event.
package reminders

import (
	"context"
	"fmt"
	"rallysphere/internal/logger"
	"rallysphere/internal/models"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/robfig/cron/v3"
)

const markerPrefix = "event_reminder:"

type EventSource interface {
	ListEventsStartingBetween(ctx context.Context, from, to time.Time) ([]models.Event, error)
}

type KafkaPublisher interface {
	PublishJSON(ctx context.Context, topic, key string, payload any) error
}

type Recorder interface {
	RecordReminder()
}

type Sweeper struct {
	Events  EventSource
	Redis   *redis.Client
	Kafka   KafkaPublisher
	Metrics Recorder
	Topic   string
	// Lead is how far ahead of the start reminders go out.
	Lead   time.Duration
	Logger *logger.Logger
	Now    func() time.Time
}

func markerKey(eventID, userID string) string {
	return markerPrefix + eventID + ":" + userID
}

// Sweep sends reminders for events starting within Lead and returns how
// many were published.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	now := s.Now()
	list, err := s.Events.ListEventsStartingBetween(ctx, now, now.Add(s.Lead))
	if err != nil {
		return 0, fmt.Errorf("list upcoming events: %w", err)
	}

	sent := 0
	for _, e := range list {
		// Markers outlive the event so late sweeps stay quiet.
		ttl := e.EndDate.Sub(now) + time.Hour
		if ttl < time.Hour {
			ttl = time.Hour
		}
		for _, userID := range e.Attendees {
			key := markerKey(e.ID, userID)
			fresh, err := s.Redis.SetNX(ctx, key, now.Unix(), ttl).Result()
			if err != nil {
				return sent, fmt.Errorf("mark reminder %s: %w", key, err)
			}
			if !fresh {
				continue
			}

			note := models.EventNotification{
				Kind:       models.NotificationReminder,
				EventID:    e.ID,
				EventTitle: e.Title,
				UserID:     userID,
				StartDate:  e.StartDate,
			}
			if err := s.Kafka.PublishJSON(ctx, s.Topic, userID, note); err != nil {
				s.Logger.LogKafka("PUBLISH_FAILED", s.Topic, fmt.Sprintf("reminder for %s on %s: %v", userID, e.ID, err))
				s.Redis.Del(ctx, key)
				continue
			}
			s.Metrics.RecordReminder()
			sent++
		}
	}

	s.Logger.Info("REMINDER", fmt.Sprintf("Sweep found %d events, sent %d reminders", len(list), sent))
	return sent, nil
}

// Schedule runs Sweep on the cron spec. Each run gets its own deadline.
func (s *Sweeper) Schedule(c *cron.Cron, spec string, timeout time.Duration) (cron.EntryID, error) {
	return c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if _, err := s.Sweep(ctx); err != nil {
			s.Logger.Error("REMINDER", fmt.Sprintf("Sweep failed: %v", err))
		}
	})
}
