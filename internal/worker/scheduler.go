package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"sartarosh/internal/domain"
)

// ScheduleWorker keeps the booking horizon open: once per interval it
// generates missing schedule days for every active barber. Generation is
// idempotent so overlapping runs are harmless.
type ScheduleWorker struct {
	repo    domain.Repository
	booking domain.BookingService
	logger  *zerolog.Logger

	interval time.Duration
	horizon  int
}

func NewScheduleWorker(repo domain.Repository, booking domain.BookingService, horizonDays int, logger *zerolog.Logger) *ScheduleWorker {
	return &ScheduleWorker{
		repo:     repo,
		booking:  booking,
		logger:   logger,
		interval: time.Hour,
		horizon:  horizonDays,
	}
}

func (w *ScheduleWorker) Start(ctx context.Context) {
	w.logger.Info().Int("horizon_days", w.horizon).Msg("schedule worker started")
	defer w.logger.Info().Msg("schedule worker stopped")

	// Open the horizon on startup, then keep it rolling.
	w.generateAll(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.generateAll(ctx)
		}
	}
}

func (w *ScheduleWorker) generateAll(ctx context.Context) {
	barbers, err := w.repo.GetActiveBarbers(ctx)
	if err != nil {
		w.logger.Error().Err(err).Msg("schedule worker barber list error")
		return
	}

	for _, b := range barbers {
		created, err := w.booking.GenerateSchedule(ctx, b.ID, time.Now(), w.horizon)
		if err != nil {
			w.logger.Error().Err(err).Int64("barber_id", b.ID).Msg("schedule generation error")
			continue
		}
		if created > 0 {
			w.logger.Info().Int64("barber_id", b.ID).Int("created", created).Msg("schedule horizon extended")
		}
	}
}
