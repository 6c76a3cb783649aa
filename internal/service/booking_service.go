package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"sartarosh/internal/database"
	"sartarosh/internal/domain"
	"sartarosh/internal/events"
	"sartarosh/internal/models"
	"sartarosh/internal/pricing"
	"sartarosh/internal/schedule"
)

// ErrRateLimited means the client created too many requests in the window.
var ErrRateLimited = errors.New("too many booking requests")

type BookingService struct {
	repo         domain.Repository
	limiter      domain.RateLimiter
	eventBus     domain.EventPublisher
	sheetsWorker domain.SyncWorker
	notifier     domain.Notifier
	logger       *zerolog.Logger

	slotMinutes int
	horizonDays int
	rateLimit   int
	rateWindow  time.Duration
}

func NewBookingService(
	repo domain.Repository,
	limiter domain.RateLimiter,
	eventBus domain.EventPublisher,
	sheetsWorker domain.SyncWorker,
	notifier domain.Notifier,
	logger *zerolog.Logger,
) *BookingService {
	return &BookingService{
		repo:         repo,
		limiter:      limiter,
		eventBus:     eventBus,
		sheetsWorker: sheetsWorker,
		notifier:     notifier,
		logger:       logger,
		slotMinutes:  models.DefaultSlotMinutes,
		horizonDays:  models.DefaultHorizonDays,
		rateLimit:    models.RateLimitRequests,
		rateWindow:   time.Duration(models.RateLimitWindow) * time.Second,
	}
}

// SetLimits overrides the built-in defaults from configuration.
func (s *BookingService) SetLimits(slotMinutes, horizonDays, rateLimit, rateWindowSec int) {
	if slotMinutes > 0 {
		s.slotMinutes = slotMinutes
	}
	if horizonDays > 0 {
		s.horizonDays = horizonDays
	}
	if rateLimit > 0 {
		s.rateLimit = rateLimit
	}
	if rateWindowSec > 0 {
		s.rateWindow = time.Duration(rateWindowSec) * time.Second
	}
}

// GenerateSchedule opens day rows for the barber over [from, from+days) on
// the weekdays the barber works. Re-running is a no-op for existing days;
// the returned count covers newly opened days only.
func (s *BookingService) GenerateSchedule(ctx context.Context, barberID int64, from time.Time, days int) (int, error) {
	if days <= 0 {
		days = s.horizonDays
	}

	barber, err := s.repo.GetBarber(ctx, barberID)
	if err != nil {
		return 0, err
	}
	if !barber.IsActive {
		return 0, database.ErrNotFound
	}

	windows, err := s.repo.GetWorkingWindows(ctx, barberID)
	if err != nil {
		return 0, err
	}

	working := make(map[int]bool, len(windows))
	for _, w := range windows {
		if w.IsWorking {
			working[w.Weekday] = true
		}
	}

	created := 0
	day := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, from.Location())
	for i := 0; i < days; i++ {
		d := day.AddDate(0, 0, i)
		if !working[models.WeekdayIndex(d.Weekday())] {
			continue
		}
		inserted, err := s.repo.EnsureScheduleDay(ctx, barberID, d)
		if err != nil {
			return created, err
		}
		if inserted {
			created++
			s.publishJSON(events.EventScheduleDayOpen, events.ScheduleDayEventPayload{
				BarberID: barberID,
				Day:      d.Format("2006-01-02"),
			})
		}
	}

	s.logger.Info().Int64("barber_id", barberID).Int("created", created).Int("horizon", days).Msg("schedule generated")
	return created, nil
}

// ListSlots returns the day's grid of fixed-size slots. A slot is emitted
// only when it fits completely inside a working window, and is busy when it
// overlaps any accepted request.
func (s *BookingService) ListSlots(ctx context.Context, barberID int64, day time.Time, slotMinutes int) ([]models.Slot, error) {
	if slotMinutes <= 0 {
		slotMinutes = s.slotMinutes
	}

	sd, err := s.repo.GetScheduleDayByDate(ctx, barberID, day)
	if err != nil {
		return nil, err
	}
	windows, busy, err := s.dayState(ctx, barberID, sd.ID, day)
	if err != nil {
		return nil, err
	}
	return schedule.Slots(windows, busy, slotMinutes), nil
}

// DayOccupancy reports how loaded the day is, as booked over workable minutes.
func (s *BookingService) DayOccupancy(ctx context.Context, barberID int64, day time.Time) (*models.Occupancy, error) {
	sd, err := s.repo.GetScheduleDayByDate(ctx, barberID, day)
	if err != nil {
		return nil, err
	}
	windows, busy, err := s.dayState(ctx, barberID, sd.ID, day)
	if err != nil {
		return nil, err
	}
	occ := schedule.Occupancy(windows, busy)
	return &occ, nil
}

// CreateBooking validates the request in a fixed order and inserts it. The
// checks before the insert only filter the obvious failures; the overlap
// invariant is enforced again inside the store transaction.
func (s *BookingService) CreateBooking(ctx context.Context, in *domain.CreateBookingInput) (*models.BookingRequest, error) {
	barber, err := s.repo.GetBarber(ctx, in.BarberID)
	if err != nil {
		return nil, err
	}
	if !barber.IsActive {
		return nil, database.ErrNotFound
	}

	sd, err := s.repo.GetScheduleDayByDate(ctx, in.BarberID, in.Day)
	if err != nil {
		return nil, err
	}

	if !sameDate(in.StartTime, in.Day) {
		return nil, database.ErrDayMismatch
	}
	if !in.StartTime.After(time.Now()) {
		return nil, database.ErrPastTime
	}

	items, total, err := s.resolveServices(ctx, in.BarberID, in.ServiceIDs)
	if err != nil {
		return nil, err
	}
	end := in.StartTime.Add(time.Duration(total) * time.Minute)

	windows, err := s.dayIntervals(ctx, in.BarberID, in.Day)
	if err != nil {
		return nil, err
	}
	if !schedule.Contains(windows, in.StartTime, end) {
		return nil, database.ErrOutsideWorkingHours
	}

	status := models.StatusPending
	if in.ClientID == nil {
		// Walk-ins are created by the barber and take the slot immediately.
		status = models.StatusAccepted
	} else if s.limiter != nil {
		allowed, err := s.limiter.CheckRateLimit(ctx, *in.ClientID, s.rateLimit, s.rateWindow)
		if err != nil {
			s.logger.Error().Err(err).Int64("client_id", *in.ClientID).Msg("rate limit check error")
		} else if !allowed {
			return nil, ErrRateLimited
		}
	}

	req := &models.BookingRequest{
		BarberID:      in.BarberID,
		ClientID:      in.ClientID,
		ScheduleDayID: sd.ID,
		StartTime:     in.StartTime,
		EndTime:       end,
		Status:        status,
		Comment:       in.Comment,
		Services:      items,
	}
	if err := s.repo.CreateRequestLocked(ctx, req); err != nil {
		return nil, err
	}

	s.publishRequest(events.EventRequestCreated, req)
	s.notifyBarber(ctx, barber, fmt.Sprintf("New request #%d: %s - %s",
		req.ID, req.StartTime.Format("02.01 15:04"), req.EndTime.Format("15:04")))
	s.enqueueSync(ctx, req)

	return req, nil
}

// GetBooking loads one request with its line items.
func (s *BookingService) GetBooking(ctx context.Context, requestID int64) (*models.BookingRequest, error) {
	return s.repo.GetRequest(ctx, requestID)
}

// Transition applies accept or deny. Deny always succeeds on an existing
// request; accept can come back with a conflict or a lost version race.
func (s *BookingService) Transition(ctx context.Context, requestID int64, action string) (*models.BookingRequest, error) {
	req, err := s.repo.TransitionRequest(ctx, requestID, action)
	if err != nil {
		return nil, err
	}

	eventType := events.EventRequestDenied
	if req.Status == models.StatusAccepted {
		eventType = events.EventRequestAccepted
	}
	s.publishRequest(eventType, req)
	s.notifyClient(ctx, req, fmt.Sprintf("Your booking for %s is %s",
		req.StartTime.Format("02.01 15:04"), req.Status))
	s.enqueueSync(ctx, req)

	return req, nil
}

// SetDiscount resolves the raw discount string against the request's current
// subtotal and stores the absolute amount. Malformed input never clamps.
func (s *BookingService) SetDiscount(ctx context.Context, requestID int64, raw string) (*models.BookingRequest, error) {
	req, err := s.repo.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	amount, err := pricing.ResolveDiscount(pricing.Subtotal(req.Services), raw)
	if err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdateRequestDiscount(ctx, requestID, req.Version, amount)
	if err != nil {
		return nil, err
	}
	updated.Services = req.Services

	s.publishRequest(events.EventRequestAmended, updated)
	s.enqueueSync(ctx, updated)
	return updated, nil
}

// ToggleService adds the offering to the request if absent, removes it
// otherwise. Reports whether the item was added.
func (s *BookingService) ToggleService(ctx context.Context, requestID, serviceID int64) (*models.BookingRequest, bool, error) {
	req, err := s.repo.GetRequest(ctx, requestID)
	if err != nil {
		return nil, false, err
	}

	off, err := s.repo.GetOffering(ctx, req.BarberID, serviceID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, false, database.ErrUnknownService
	}
	if err != nil {
		return nil, false, err
	}
	if !off.Bookable() {
		return nil, false, database.ErrUnknownService
	}

	windows, err := s.dayIntervals(ctx, req.BarberID, req.StartTime)
	if err != nil {
		return nil, false, err
	}

	updated, added, err := s.repo.ToggleLineItem(ctx, requestID, *off, windows)
	if err != nil {
		return nil, false, err
	}

	s.publishRequest(events.EventRequestAmended, updated)
	s.enqueueSync(ctx, updated)
	return updated, added, nil
}

// ScheduleStats returns the per-day aggregates over [from, to].
func (s *BookingService) ScheduleStats(ctx context.Context, barberID int64, from, to time.Time) ([]models.ScheduleDay, error) {
	if _, err := s.repo.GetBarber(ctx, barberID); err != nil {
		return nil, err
	}
	return s.repo.GetScheduleDays(ctx, barberID, from, to)
}

// DayStats returns the aggregates for one schedule day.
func (s *BookingService) DayStats(ctx context.Context, scheduleDayID int64) (*models.ScheduleDay, error) {
	return s.repo.GetScheduleDay(ctx, scheduleDayID)
}

func (s *BookingService) resolveServices(ctx context.Context, barberID int64, serviceIDs []int64) ([]models.LineItem, int, error) {
	if len(serviceIDs) == 0 {
		return nil, 0, database.ErrUnknownService
	}

	items := make([]models.LineItem, 0, len(serviceIDs))
	total := 0
	seen := make(map[int64]bool, len(serviceIDs))
	for _, id := range serviceIDs {
		if seen[id] {
			continue
		}
		seen[id] = true

		off, err := s.repo.GetOffering(ctx, barberID, id)
		if errors.Is(err, database.ErrNotFound) {
			return nil, 0, database.ErrUnknownService
		}
		if err != nil {
			return nil, 0, err
		}
		if !off.Bookable() {
			return nil, 0, database.ErrUnknownService
		}

		items = append(items, models.LineItem{
			ServiceID: off.ServiceID,
			Name:      off.Name,
			Price:     off.Price,
			Duration:  off.Duration,
		})
		total += off.Duration
	}
	return items, total, nil
}

func (s *BookingService) dayIntervals(ctx context.Context, barberID int64, day time.Time) ([]schedule.Interval, error) {
	windows, err := s.repo.GetWorkingWindows(ctx, barberID)
	if err != nil {
		return nil, err
	}
	return schedule.DayWindows(windows, day), nil
}

func (s *BookingService) dayState(ctx context.Context, barberID, scheduleDayID int64, day time.Time) ([]schedule.Interval, []schedule.Interval, error) {
	windows, err := s.dayIntervals(ctx, barberID, day)
	if err != nil {
		return nil, nil, err
	}
	accepted, err := s.repo.GetRequestsForDay(ctx, scheduleDayID, models.StatusAccepted)
	if err != nil {
		return nil, nil, err
	}
	return windows, schedule.BusyIntervals(accepted), nil
}

func (s *BookingService) publishRequest(eventType string, req *models.BookingRequest) {
	payload := events.RequestEventPayload{
		RequestID:  req.ID,
		BarberID:   req.BarberID,
		Day:        req.StartTime.Format("2006-01-02"),
		StartTime:  req.StartTime,
		EndTime:    req.EndTime,
		Status:     req.Status,
		FinalPrice: pricing.RequestTotal(req),
		Comment:    req.Comment,
	}
	if req.ClientID != nil {
		payload.ClientID = *req.ClientID
	}
	s.publishJSON(eventType, payload)
}

func (s *BookingService) publishJSON(eventType string, payload interface{}) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Msg("publish event error")
	}
}

func (s *BookingService) notifyBarber(ctx context.Context, barber *models.Barber, text string) {
	if s.notifier == nil || barber.ChatID == 0 {
		return
	}
	if err := s.notifier.NotifyBarber(ctx, barber.ChatID, text); err != nil {
		s.logger.Error().Err(err).Int64("barber_id", barber.ID).Msg("barber notify error")
	}
}

func (s *BookingService) notifyClient(ctx context.Context, req *models.BookingRequest, text string) {
	if s.notifier == nil || req.ClientID == nil {
		return
	}
	if err := s.notifier.NotifyClient(ctx, *req.ClientID, text); err != nil {
		s.logger.Error().Err(err).Int64("request_id", req.ID).Msg("client notify error")
	}
}

func (s *BookingService) enqueueSync(ctx context.Context, req *models.BookingRequest) {
	if s.sheetsWorker == nil {
		return
	}
	day := time.Date(req.StartTime.Year(), req.StartTime.Month(), req.StartTime.Day(), 0, 0, 0, 0, req.StartTime.Location())
	if err := s.sheetsWorker.EnqueueSyncSchedule(ctx, req.BarberID, day, day); err != nil {
		s.logger.Error().Err(err).Int64("request_id", req.ID).Msg("sheets enqueue error")
	}
}

func sameDate(t, day time.Time) bool {
	y1, m1, d1 := t.Date()
	y2, m2, d2 := day.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}
