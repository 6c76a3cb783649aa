package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"sartarosh/internal/domain"
	"sartarosh/internal/metrics"
	"sartarosh/internal/models"
)

// ReminderWorker periodically looks for accepted requests that start within
// the lead window and pings the client once. reminder_sent_at in the store
// is the dedupe: a request is reminded at most once even across restarts.
type ReminderWorker struct {
	repo     domain.Repository
	notifier domain.Notifier
	logger   *zerolog.Logger

	interval time.Duration
	lead     time.Duration
}

func NewReminderWorker(repo domain.Repository, notifier domain.Notifier, leadMinutes int, logger *zerolog.Logger) *ReminderWorker {
	if leadMinutes <= 0 {
		leadMinutes = models.DefaultReminderLeadMinutes
	}
	return &ReminderWorker{
		repo:     repo,
		notifier: notifier,
		logger:   logger,
		interval: time.Minute,
		lead:     time.Duration(leadMinutes) * time.Minute,
	}
}

func (w *ReminderWorker) Start(ctx context.Context) {
	w.logger.Info().Dur("lead", w.lead).Msg("reminder worker started")
	defer w.logger.Info().Msg("reminder worker stopped")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *ReminderWorker) sweep(ctx context.Context) {
	now := time.Now()
	due, err := w.repo.GetDueReminders(ctx, now, now.Add(w.lead))
	if err != nil {
		w.logger.Error().Err(err).Msg("reminder sweep error")
		return
	}

	for _, req := range due {
		if req.ClientID != nil && w.notifier != nil {
			text := fmt.Sprintf("Reminder: your appointment starts at %s", req.StartTime.Format("15:04"))
			if err := w.notifier.NotifyClient(ctx, *req.ClientID, text); err != nil {
				// Mark anyway: a dead chat should not be retried every minute.
				w.logger.Warn().Err(err).Int64("request_id", req.ID).Msg("reminder delivery failed")
			}
		}
		if err := w.repo.MarkReminderSent(ctx, req.ID, now); err != nil {
			w.logger.Error().Err(err).Int64("request_id", req.ID).Msg("reminder mark error")
			continue
		}
		metrics.IncReminderSent()
	}
}
