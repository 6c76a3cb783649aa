package models

import (
	"fmt"
	"time"
)

// ScheduleDay is one calendar day of a barber's booking ledger.
// Unique per (barber_id, day); aggregates are rewritten wholesale by the
// stats recompute, never incremented in place.
type ScheduleDay struct {
	ID          int64     `json:"id"`
	BarberID    int64     `json:"barber_id"`
	Day         time.Time `json:"day"`
	NClients    int       `json:"n_clients"`
	TotalIncome int64     `json:"total_income"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// WorkingWindow is a recurring weekday interval during which a barber
// accepts bookings. Times are minutes from midnight; StartMin > EndMin
// means an overnight shift that is split at availability time.
type WorkingWindow struct {
	BarberID  int64 `yaml:"-" json:"barber_id"`
	Weekday   int   `yaml:"weekday" json:"weekday"` // 0 = Monday ... 6 = Sunday
	StartMin  int   `yaml:"-" json:"start_min"`
	EndMin    int   `yaml:"-" json:"end_min"`
	IsWorking bool  `yaml:"is_working" json:"is_working"`
}

// Slot is a fixed-size subdivision of a working window.
type Slot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Free  bool      `json:"is_free"`
}

// Occupancy is the booked-to-available ratio for one day.
// Percent is nil when the barber has no working minutes that day.
type Occupancy struct {
	Percent       *int   `json:"percent,omitempty"`
	BookedMinutes int    `json:"booked_minutes"`
	TotalMinutes  int    `json:"total_minutes"`
	Band          string `json:"band"`
}

// WeekdayIndex maps time.Weekday to the Monday-based index used by
// working windows.
func WeekdayIndex(d time.Weekday) int {
	return (int(d) + 6) % 7
}

// ParseClock parses "HH:MM" into minutes from midnight.
func ParseClock(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid clock value %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("clock value %q out of range", s)
	}
	return h*60 + m, nil
}

// FormatClock renders minutes from midnight as "HH:MM".
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}
