package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"

	"sartarosh/internal/api"
	"sartarosh/internal/config"
	"sartarosh/internal/database"
	"sartarosh/internal/domain"
	"sartarosh/internal/events"
	"sartarosh/internal/export"
	"sartarosh/internal/google"
	"sartarosh/internal/logging"
	"sartarosh/internal/metrics"
	"sartarosh/internal/notify"
	"sartarosh/internal/repository"
	"sartarosh/internal/service"
	"sartarosh/internal/worker"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	if err := loadRoster(cfg, &logger); err != nil {
		return err
	}

	db, err := initDatabase(cfg, &logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if !cfg.API.Enabled {
		logger.Warn().Msg("API is disabled in config, but starting API application. Check your config.")
	}

	redisClient := initRedis(cfg, &logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	limiter := initRateLimiter(redisClient, &logger)
	notifier := initNotifier(cfg, &logger)
	sheetsService := initGoogleSheets(cfg, &logger)

	bus := events.NewEventBus()

	// Without sheets there is nothing to sync, so the worker stays unwired.
	var sheetsWorker *worker.SheetsWorker
	var syncWorker domain.SyncWorker
	if sheetsService != nil {
		sheetsWorker = worker.NewSheetsWorker(db, sheetsService, redisClient, worker.RetryPolicy{
			MaxRetries:   3,
			InitialDelay: 2 * time.Second,
			MaxDelay:     time.Minute,
		}, &logger)
		syncWorker = sheetsWorker
	}

	booking := service.NewBookingService(db, limiter, bus, syncWorker, notifier, &logger)
	booking.SetLimits(
		cfg.Booking.SlotMinutes,
		cfg.Booking.HorizonDays,
		cfg.Booking.RateLimitRequests,
		cfg.Booking.RateLimitWindowSec,
	)

	exporter := export.NewExporter(db, cfg.Exports.Path, &logger)
	httpServer := api.NewHTTPServer(cfg.API, booking, exporter, &logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startWorkers(ctx, cfg, db, booking, notifier, sheetsWorker, sheetsService, &logger)
	startMetrics(ctx, cfg, &logger)

	return startServer(ctx, httpServer, cfg, &logger)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

// loadRoster optionally overrides the inline roster with a standalone
// barbers.yaml pointed to by ROSTER_PATH.
func loadRoster(cfg *config.Config, logger *zerolog.Logger) error {
	rosterPath := os.Getenv("ROSTER_PATH")
	if rosterPath == "" {
		return nil
	}

	rosterData, err := os.ReadFile(rosterPath)
	if err != nil {
		logger.Error().Err(err).Str("roster_path", rosterPath).Msg("read roster")
		return err
	}

	var rosterConfig struct {
		Barbers []config.BarberConfig `yaml:"barbers"`
	}
	if err := yaml.Unmarshal(rosterData, &rosterConfig); err != nil {
		logger.Error().Err(err).Str("roster_path", rosterPath).Msg("parse roster")
		return err
	}
	if err := config.ValidateBarbers(rosterConfig.Barbers); err != nil {
		return fmt.Errorf("roster validation failed: %w", err)
	}

	cfg.Barbers = rosterConfig.Barbers
	return nil
}

// initDatabase opens the store and syncs the configured roster into it.
func initDatabase(cfg *config.Config, logger *zerolog.Logger) (*database.DB, error) {
	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return nil, err
	}

	barbers, windows, offerings, err := cfg.Roster()
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("roster: %w", err)
	}
	if err := db.SyncBarbers(context.Background(), barbers, windows, offerings); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sync roster: %w", err)
	}
	logger.Info().Int("barbers", len(barbers)).Msg("roster synced")

	return db, nil
}

func initRedis(cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

// initRateLimiter prefers redis with in-memory failover; memory-only without
// redis.
func initRateLimiter(redisClient *redis.Client, logger *zerolog.Logger) domain.RateLimiter {
	memory := repository.NewMemoryRateLimiter()
	if redisClient == nil {
		return memory
	}
	return repository.NewFailoverRateLimiter(repository.NewRedisRateLimiter(redisClient), memory, logger)
}

func initNotifier(cfg *config.Config, logger *zerolog.Logger) domain.Notifier {
	if cfg.Telegram.BotToken == "" {
		return nil
	}

	bot, err := notify.NewBot(cfg.Telegram.BotToken)
	if err != nil {
		logger.Warn().Err(err).Msg("telegram init failed, continuing without notifications")
		return nil
	}
	bot.Debug = cfg.Telegram.Debug

	logger.Info().Str("bot", bot.Self.UserName).Msg("telegram connected")
	return notify.NewTelegramNotifier(bot, logger)
}

func initGoogleSheets(cfg *config.Config, logger *zerolog.Logger) *google.SheetsService {
	if cfg.Google.CredentialsFile == "" || cfg.Google.ScheduleSpreadsheetID == "" {
		return nil
	}

	sheetsService, err := google.NewSheetsService(context.Background(),
		cfg.Google.CredentialsFile, cfg.Google.ScheduleSpreadsheetID)
	if err != nil {
		logger.Warn().Err(err).Msg("google sheets init failed, continuing without sheets")
		return nil
	}

	logger.Info().Msg("google sheets connected")
	return sheetsService
}

func startWorkers(
	ctx context.Context,
	cfg *config.Config,
	db *database.DB,
	booking domain.BookingService,
	notifier domain.Notifier,
	sheetsWorker *worker.SheetsWorker,
	sheetsService *google.SheetsService,
	logger *zerolog.Logger,
) {
	if sheetsService != nil {
		go sheetsWorker.Start(ctx)
	}

	if notifier != nil {
		reminders := worker.NewReminderWorker(db, notifier, cfg.Booking.ReminderLeadMin, logger)
		go reminders.Start(ctx)
	}

	scheduler := worker.NewScheduleWorker(db, booking, cfg.Booking.HorizonDays, logger)
	go scheduler.Start(ctx)

	if cfg.Backup.Enabled {
		backup := database.NewBackupService(cfg.Database.Path, cfg.Backup, logger)
		go backup.Start(ctx)
	}
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func startServer(ctx context.Context, httpServer *api.HTTPServer, cfg *config.Config, logger *zerolog.Logger) error {
	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	logger.Info().Int("http_port", cfg.API.Port).Msg("API server started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
