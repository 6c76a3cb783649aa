package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"sartarosh/internal/domain"
	"sartarosh/internal/models"
)

// scheduleSyncTask asks for one barber's day range to be re-exported.
type scheduleSyncTask struct {
	BarberID  int64     `json:"barber_id"`
	From      time.Time `json:"from"`
	To        time.Time `json:"to"`
	CreatedAt time.Time `json:"created_at"`
}

// SheetsWorker mirrors schedule days into Google Sheets. Tasks go through
// redis when available for durability across restarts, with an in-memory
// channel as fallback. The export replaces the affected range wholesale, so
// a dropped task is healed by the next one for the same range.
type SheetsWorker struct {
	repo          domain.Repository
	sheets        domain.SheetsWriter
	redis         *redis.Client
	retryPolicy   RetryPolicy
	queue         chan scheduleSyncTask
	redisQueueKey string
	pollInterval  time.Duration
	logger        *zerolog.Logger
}

func NewSheetsWorker(repo domain.Repository, sheets domain.SheetsWriter, redisClient *redis.Client, retry RetryPolicy, logger *zerolog.Logger) *SheetsWorker {
	if retry.MaxRetries == 0 {
		retry.MaxRetries = 5
	}
	if retry.InitialDelay == 0 {
		retry.InitialDelay = 2 * time.Second
	}
	if retry.MaxDelay == 0 {
		retry.MaxDelay = time.Minute
	}
	if retry.BackoffFactor == 0 {
		retry.BackoffFactor = 2
	}

	return &SheetsWorker{
		repo:          repo,
		sheets:        sheets,
		redis:         redisClient,
		retryPolicy:   retry,
		queue:         make(chan scheduleSyncTask, 128),
		redisQueueKey: "sheets:schedule_queue",
		pollInterval:  2 * time.Second,
		logger:        logger,
	}
}

// EnqueueSyncSchedule schedules an export of [from, to] for one barber.
func (w *SheetsWorker) EnqueueSyncSchedule(ctx context.Context, barberID int64, from, to time.Time) error {
	task := scheduleSyncTask{BarberID: barberID, From: from, To: to, CreatedAt: time.Now()}

	if w.redis != nil {
		if err := w.pushRedis(ctx, task); err != nil {
			w.logger.Warn().Err(err).Msg("sheets redis push failed, using memory queue")
		} else {
			return nil
		}
	}

	select {
	case w.queue <- task:
		return nil
	default:
		return errors.New("sheets queue is full")
	}
}

// Start launches the main loop; stops when ctx is done.
func (w *SheetsWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("sheets worker started")
	defer w.logger.Info().Msg("sheets worker stopped")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if t, ok := w.tryLocalQueue(); ok {
			w.processTask(ctx, t)
			continue
		}
		if t, ok := w.tryRedis(ctx); ok {
			w.processTask(ctx, t)
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.pollInterval):
		}
	}
}

func (w *SheetsWorker) tryLocalQueue() (scheduleSyncTask, bool) {
	select {
	case t := <-w.queue:
		return t, true
	default:
		return scheduleSyncTask{}, false
	}
}

func (w *SheetsWorker) tryRedis(ctx context.Context) (scheduleSyncTask, bool) {
	if w.redis == nil {
		return scheduleSyncTask{}, false
	}
	res, err := w.redis.BRPop(ctx, time.Second, w.redisQueueKey).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && !errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			w.logger.Warn().Err(err).Msg("sheets redis pop error")
		}
		return scheduleSyncTask{}, false
	}
	if len(res) != 2 {
		return scheduleSyncTask{}, false
	}
	var task scheduleSyncTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		w.logger.Error().Err(err).Msg("sheets task decode error")
		return scheduleSyncTask{}, false
	}
	return task, true
}

func (w *SheetsWorker) processTask(ctx context.Context, task scheduleSyncTask) {
	for attempt := 1; attempt <= w.retryPolicy.MaxRetries; attempt++ {
		err := w.export(ctx, task)
		if err == nil {
			return
		}

		w.logger.Warn().Err(err).
			Int64("barber_id", task.BarberID).
			Int("attempt", attempt).
			Msg("sheets export failed")

		if attempt == w.retryPolicy.MaxRetries {
			w.logger.Error().Int64("barber_id", task.BarberID).Msg("sheets export gave up")
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.retryPolicy.NextDelay(attempt)):
		}
	}
}

func (w *SheetsWorker) export(ctx context.Context, task scheduleSyncTask) error {
	days, err := w.repo.GetScheduleDays(ctx, task.BarberID, task.From, task.To)
	if err != nil {
		return err
	}

	requests := make(map[int64][]models.BookingRequest, len(days))
	for _, d := range days {
		reqs, err := w.repo.GetRequestsForDay(ctx, d.ID, "")
		if err != nil {
			return err
		}
		requests[d.ID] = reqs
	}

	return w.sheets.ReplaceScheduleSheet(ctx, days, requests)
}

func (w *SheetsWorker) pushRedis(ctx context.Context, task scheduleSyncTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return w.redis.LPush(ctx, w.redisQueueKey, data).Err()
}
