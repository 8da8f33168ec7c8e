package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rallysphere"

// Metrics holds the collectors of one process. Each binary builds its own.
type Metrics struct {
	Registry *prometheus.Registry

	httpInFlight prometheus.Gauge
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	membership   *prometheus.CounterVec
	promotions   prometheus.Counter
	lockWait     prometheus.Histogram
	orderStatus  *prometheus.CounterVec
	webhooks     *prometheus.CounterVec
	uploads      *prometheus.CounterVec
	reminders    prometheus.Counter
	notification *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		}, []string{"method", "route"}),
		membership: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "membership_changes_total",
			Help:      "Join and leave outcomes applied to events.",
		}, []string{"outcome"}),
		promotions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "waitlist_promotions_total",
			Help:      "Users moved from a waitlist into attendees.",
		}),
		lockWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "admission_lock_wait_seconds",
			Help:      "Time spent acquiring the per-event admission lock.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		}),
		orderStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "order_transitions_total",
			Help:      "Order status transitions.",
		}, []string{"from", "to"}),
		webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payments",
			Name:      "webhooks_total",
			Help:      "Stripe webhook deliveries by event type and result.",
		}, []string{"type", "result"}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "assets",
			Name:      "uploads_total",
			Help:      "Asset uploads by result.",
		}, []string{"result"}),
		reminders: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reminders",
			Name:      "sent_total",
			Help:      "Reminder intents published.",
		}),
		notification: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifier",
			Name:      "messages_total",
			Help:      "Notification messages consumed by topic and result.",
		}, []string{"topic", "result"}),
	}

	m.Registry.MustRegister(
		m.httpInFlight,
		m.httpRequests,
		m.httpDuration,
		m.membership,
		m.promotions,
		m.lockWait,
		m.orderStatus,
		m.webhooks,
		m.uploads,
		m.reminders,
		m.notification,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	return m
}

// Handler exposes the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveRequest(method, route string, status int, seconds float64) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(seconds)
}

func (m *Metrics) InFlight(delta float64) {
	m.httpInFlight.Add(delta)
}

func (m *Metrics) RecordMembership(outcome string, promoted int) {
	m.membership.WithLabelValues(outcome).Inc()
	if promoted > 0 {
		m.promotions.Add(float64(promoted))
	}
}

func (m *Metrics) ObserveLockWait(seconds float64) {
	m.lockWait.Observe(seconds)
}

func (m *Metrics) RecordOrderTransition(from, to string) {
	m.orderStatus.WithLabelValues(from, to).Inc()
}

func (m *Metrics) RecordWebhook(eventType, result string) {
	m.webhooks.WithLabelValues(eventType, result).Inc()
}

func (m *Metrics) RecordUpload(result string) {
	m.uploads.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordReminder() {
	m.reminders.Inc()
}

func (m *Metrics) RecordNotification(topic, result string) {
	m.notification.WithLabelValues(topic, result).Inc()
}
