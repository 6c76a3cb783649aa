package models

import "time"

type BookingRequest struct {
	ID             int64      `json:"id"`
	BarberID       int64      `json:"barber_id"`
	ClientID       *int64     `json:"client_id,omitempty"`
	ScheduleDayID  int64      `json:"schedule_day_id"`
	StartTime      time.Time  `json:"start_time"`
	EndTime        time.Time  `json:"end_time"`
	Status         string     `json:"status"` // pending, accepted, denied
	Discount       int64      `json:"discount"`
	Comment        string     `json:"comment"`
	ReminderSentAt *time.Time `json:"reminder_sent_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	Version        int64      `json:"version"`

	// Line items are loaded explicitly; there is no lazy relationship graph.
	Services []LineItem `json:"services,omitempty"`
}

// LineItem is a snapshot of one service offering taken at booking time.
// Later catalog edits never change an existing request.
type LineItem struct {
	ID        int64  `json:"id"`
	RequestID int64  `json:"request_id"`
	ServiceID int64  `json:"service_id"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Duration  int    `json:"duration"` // minutes
}

// TotalDuration returns the summed service minutes of the request.
func (r *BookingRequest) TotalDuration() int {
	total := 0
	for _, li := range r.Services {
		total += li.Duration
	}
	return total
}
