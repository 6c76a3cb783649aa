package domain

import (
	"context"
	"time"

	"sartarosh/internal/models"
	"sartarosh/internal/schedule"
)

type Repository interface {
	SyncBarbers(ctx context.Context, barbers []models.Barber, windows []models.WorkingWindow, offerings []models.ServiceOffering) error
	GetBarber(ctx context.Context, id int64) (*models.Barber, error)
	GetActiveBarbers(ctx context.Context) ([]models.Barber, error)
	GetWorkingWindows(ctx context.Context, barberID int64) ([]models.WorkingWindow, error)
	GetOffering(ctx context.Context, barberID, serviceID int64) (*models.ServiceOffering, error)
	GetActiveOfferings(ctx context.Context, barberID int64) ([]models.ServiceOffering, error)

	EnsureScheduleDay(ctx context.Context, barberID int64, day time.Time) (bool, error)
	GetScheduleDay(ctx context.Context, id int64) (*models.ScheduleDay, error)
	GetScheduleDayByDate(ctx context.Context, barberID int64, day time.Time) (*models.ScheduleDay, error)
	GetScheduleDays(ctx context.Context, barberID int64, from, to time.Time) ([]models.ScheduleDay, error)

	CreateRequestLocked(ctx context.Context, req *models.BookingRequest) error
	GetRequest(ctx context.Context, id int64) (*models.BookingRequest, error)
	GetRequestsForDay(ctx context.Context, scheduleDayID int64, status string) ([]models.BookingRequest, error)
	TransitionRequest(ctx context.Context, id int64, action string) (*models.BookingRequest, error)
	UpdateRequestDiscount(ctx context.Context, id, version, discount int64) (*models.BookingRequest, error)
	ToggleLineItem(ctx context.Context, requestID int64, off models.ServiceOffering, windows []schedule.Interval) (*models.BookingRequest, bool, error)
	RecomputeDayStats(ctx context.Context, scheduleDayID int64) error

	GetDueReminders(ctx context.Context, from, to time.Time) ([]models.BookingRequest, error)
	MarkReminderSent(ctx context.Context, id int64, at time.Time) error
}

// RateLimiter throttles per-client request creation. Implementations may
// lose state on restart; the limit is a courtesy, not a security boundary.
type RateLimiter interface {
	CheckRateLimit(ctx context.Context, clientID int64, limit int, window time.Duration) (bool, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// Notifier delivers best-effort messages to barbers and clients. Failures
// are logged and never fail the booking flow.
type Notifier interface {
	NotifyBarber(ctx context.Context, chatID int64, text string) error
	NotifyClient(ctx context.Context, clientID int64, text string) error
}

type SheetsWriter interface {
	ReplaceScheduleSheet(ctx context.Context, days []models.ScheduleDay, requests map[int64][]models.BookingRequest) error
}

type SyncWorker interface {
	EnqueueSyncSchedule(ctx context.Context, barberID int64, from, to time.Time) error
}

type BookingService interface {
	GenerateSchedule(ctx context.Context, barberID int64, from time.Time, days int) (int, error)
	ListSlots(ctx context.Context, barberID int64, day time.Time, slotMinutes int) ([]models.Slot, error)
	DayOccupancy(ctx context.Context, barberID int64, day time.Time) (*models.Occupancy, error)
	CreateBooking(ctx context.Context, in *CreateBookingInput) (*models.BookingRequest, error)
	GetBooking(ctx context.Context, requestID int64) (*models.BookingRequest, error)
	Transition(ctx context.Context, requestID int64, action string) (*models.BookingRequest, error)
	SetDiscount(ctx context.Context, requestID int64, raw string) (*models.BookingRequest, error)
	ToggleService(ctx context.Context, requestID, serviceID int64) (*models.BookingRequest, bool, error)
	ScheduleStats(ctx context.Context, barberID int64, from, to time.Time) ([]models.ScheduleDay, error)
	DayStats(ctx context.Context, scheduleDayID int64) (*models.ScheduleDay, error)
}

// CreateBookingInput carries everything needed to validate and create one
// request. ClientID nil marks a provider-created walk-in, which skips the
// rate limit and is accepted immediately.
type CreateBookingInput struct {
	BarberID   int64
	ClientID   *int64
	Day        time.Time
	StartTime  time.Time
	ServiceIDs []int64
	Comment    string
}
