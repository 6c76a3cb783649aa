package models

const (
	StatusPending  = "pending"
	StatusAccepted = "accepted"
	StatusDenied   = "denied"
)

const (
	ActionAccept = "accept"
	ActionDeny   = "deny"
)

const (
	OccupancyNone   = "none"
	OccupancyLow    = "low"
	OccupancyMedium = "medium"
	OccupancyHigh   = "high"
)

const (
	// DefaultSlotMinutes is the slot grid used when a caller does not ask
	// for a specific granularity.
	DefaultSlotMinutes = 30

	// DefaultHorizonDays is how far ahead schedule days are materialized.
	DefaultHorizonDays = 14

	// DefaultReminderLeadMinutes is how long before the start time the
	// reminder sweep notifies the client.
	DefaultReminderLeadMinutes = 60

	// WorkerQueueSize bounds the sheets sync queue.
	WorkerQueueSize = 1000

	// RateLimitRequests and RateLimitWindow bound booking attempts per client.
	RateLimitRequests = 10
	RateLimitWindow   = 60 // seconds
)

// ValidStatus reports whether s is a known request status.
func ValidStatus(s string) bool {
	return s == StatusPending || s == StatusAccepted || s == StatusDenied
}
