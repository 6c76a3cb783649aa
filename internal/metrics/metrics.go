package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sartarosh",
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	requestsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sartarosh",
			Name:      "booking_requests_created_total",
			Help:      "Booking requests created.",
		},
	)

	transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sartarosh",
			Name:      "booking_transitions_total",
			Help:      "Accept/deny transitions applied.",
		},
		[]string{"action"},
	)

	conflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sartarosh",
			Name:      "booking_conflicts_total",
			Help:      "Requests refused because the interval was taken.",
		},
	)

	remindersSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sartarosh",
			Name:      "booking_reminders_sent_total",
			Help:      "Client reminders marked as sent.",
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, requestsCreated, transitions, conflicts, remindersSent)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

func IncRequestCreated() {
	requestsCreated.Inc()
}

func IncTransition(action string) {
	transitions.WithLabelValues(action).Inc()
}

func IncConflict() {
	conflicts.Inc()
}

func IncReminderSent() {
	remindersSent.Inc()
}
