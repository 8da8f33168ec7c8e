// Package notify turns notification intents read from Kafka into rendered,
// localized messages.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"rallysphere/internal/config"
	"rallysphere/internal/logger"
	"rallysphere/internal/models"
	"rallysphere/internal/utils"
	"time"
)

// Message is a rendered notification for one user.
type Message struct {
	UserID string `json:"user_id"`
	Kind   string `json:"kind"`
	Title  string `json:"title"`
	Body   string `json:"body"`
}

// Sink hands rendered messages to whatever delivers them.
type Sink interface {
	Deliver(ctx context.Context, msg Message) error
}

type Recorder interface {
	RecordNotification(topic, result string)
}

type Dispatcher struct {
	Topics     config.TopicConfig
	Translator utils.Localizer
	Sink       Sink
	Metrics    Recorder
	Locale     string
	Logger     *logger.Logger
}

// Handle renders one Kafka message. It matches kafka.Handler.
func (d *Dispatcher) Handle(ctx context.Context, topic string, key, value []byte) error {
	msg, err := d.render(topic, value)
	if err != nil {
		d.Metrics.RecordNotification(topic, "invalid")
		d.Logger.LogKafka("DECODE_FAILED", topic, fmt.Sprintf("key=%s: %v", key, err))
		return err
	}
	if msg == nil {
		d.Metrics.RecordNotification(topic, "skipped")
		return nil
	}

	if err := d.Sink.Deliver(ctx, *msg); err != nil {
		d.Metrics.RecordNotification(topic, "failed")
		d.Logger.Error("NOTIFY", fmt.Sprintf("Delivery to %s failed: %v", msg.UserID, err))
		return err
	}
	d.Metrics.RecordNotification(topic, "delivered")
	return nil
}

func (d *Dispatcher) render(topic string, value []byte) (*Message, error) {
	switch topic {
	case d.Topics.Promoted, d.Topics.Reminder:
		var n models.EventNotification
		if err := json.Unmarshal(value, &n); err != nil {
			return nil, fmt.Errorf("decode event notification: %w", err)
		}
		if n.UserID == "" {
			return nil, fmt.Errorf("event notification for %s has no user", n.EventID)
		}
		return d.eventMessage(n), nil

	case d.Topics.OrderStatus:
		var m models.OrderStatusMessage
		if err := json.Unmarshal(value, &m); err != nil {
			return nil, fmt.Errorf("decode order status: %w", err)
		}
		if m.BuyerID == "" {
			return nil, fmt.Errorf("order %s has no buyer", m.OrderID)
		}
		data := map[string]any{"Status": string(m.To)}
		return &Message{
			UserID: m.BuyerID,
			Kind:   "order",
			Title:  d.Translator.T(d.Locale, "notify.order.title", nil),
			Body:   d.Translator.T(d.Locale, "notify.order.body", data),
		}, nil

	case d.Topics.Membership:
		var m models.EventMembershipMessage
		if err := json.Unmarshal(value, &m); err != nil {
			return nil, fmt.Errorf("decode membership change: %w", err)
		}
		d.Logger.LogEvent("MEMBERSHIP", m.EventID, fmt.Sprintf("%s %s (%d attending, %d waitlisted)", m.UserID, m.Outcome, m.Attendees, m.Waitlisted))
		return nil, nil
	}

	d.Logger.Warn("NOTIFY", fmt.Sprintf("Ignoring message on unknown topic %s", topic))
	return nil, nil
}

func (d *Dispatcher) eventMessage(n models.EventNotification) *Message {
	locale := n.Locale
	if locale == "" {
		locale = d.Locale
	}
	data := map[string]any{
		"Title": n.EventTitle,
		"Start": n.StartDate.Format(time.Kitchen),
	}
	return &Message{
		UserID: n.UserID,
		Kind:   n.Kind,
		Title:  d.Translator.T(locale, "notify."+n.Kind+".title", nil),
		Body:   d.Translator.T(locale, "notify."+n.Kind+".body", data),
	}
}

// LogSink writes rendered messages to the service log.
type LogSink struct {
	Logger *logger.Logger
}

func (s LogSink) Deliver(_ context.Context, msg Message) error {
	s.Logger.Info("NOTIFY", fmt.Sprintf("→ %s [%s] %s: %s", msg.UserID, msg.Kind, msg.Title, msg.Body))
	return nil
}
