package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"sartarosh/internal/models"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

type DB struct {
	*sql.DB
	logger *zerolog.Logger

	mu            sync.RWMutex
	barberCache   map[int64]models.Barber
	offeringCache map[int64]map[int64]models.ServiceOffering // barber -> service -> offering
	windowCache   map[int64][]models.WorkingWindow
}

// NewDB opens (or creates) the sqlite store. Transactions take the write
// lock up front (_txlock=immediate) so concurrent accept flows serialize
// instead of failing with SQLITE_BUSY mid-transaction.
func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_busy_timeout=5000&_txlock=immediate&_foreign_keys=on"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("database initialized")
	return &DB{
		DB:            db,
		logger:        logger,
		barberCache:   make(map[int64]models.Barber),
		offeringCache: make(map[int64]map[int64]models.ServiceOffering),
		windowCache:   make(map[int64][]models.WorkingWindow),
	}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS barbers (
            id INTEGER PRIMARY KEY,
            name TEXT NOT NULL,
            chat_id INTEGER,
            is_active BOOLEAN NOT NULL DEFAULT 1,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,
		`CREATE TABLE IF NOT EXISTS working_windows (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            barber_id INTEGER NOT NULL,
            weekday INTEGER NOT NULL,
            start_min INTEGER NOT NULL,
            end_min INTEGER NOT NULL,
            is_working BOOLEAN NOT NULL DEFAULT 0,
            UNIQUE(barber_id, weekday)
        )`,
		`CREATE TABLE IF NOT EXISTS service_offerings (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            barber_id INTEGER NOT NULL,
            service_id INTEGER NOT NULL,
            name TEXT NOT NULL,
            price INTEGER NOT NULL DEFAULT 0,
            duration INTEGER NOT NULL DEFAULT 0,
            active BOOLEAN NOT NULL DEFAULT 1,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            UNIQUE(barber_id, service_id)
        )`,
		`CREATE TABLE IF NOT EXISTS schedule_days (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            barber_id INTEGER NOT NULL,
            day TEXT NOT NULL,
            n_clients INTEGER NOT NULL DEFAULT 0,
            total_income INTEGER NOT NULL DEFAULT 0,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            UNIQUE(barber_id, day)
        )`,
		`CREATE TABLE IF NOT EXISTS booking_requests (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            barber_id INTEGER NOT NULL,
            client_id INTEGER,
            schedule_day_id INTEGER NOT NULL,
            start_time DATETIME NOT NULL,
            end_time DATETIME NOT NULL,
            status TEXT NOT NULL DEFAULT 'pending',
            discount INTEGER NOT NULL DEFAULT 0,
            comment TEXT NOT NULL DEFAULT '',
            reminder_sent_at DATETIME,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            version INTEGER NOT NULL DEFAULT 1
        )`,
		`CREATE TABLE IF NOT EXISTS line_items (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            request_id INTEGER NOT NULL,
            service_id INTEGER NOT NULL,
            name TEXT NOT NULL,
            price INTEGER NOT NULL,
            duration INTEGER NOT NULL
        )`,

		`CREATE INDEX IF NOT EXISTS idx_windows_barber ON working_windows(barber_id)`,
		`CREATE INDEX IF NOT EXISTS idx_offerings_barber ON service_offerings(barber_id)`,
		`CREATE INDEX IF NOT EXISTS idx_schedule_days_barber_day ON schedule_days(barber_id, day)`,
		`CREATE INDEX IF NOT EXISTS idx_requests_day ON booking_requests(schedule_day_id)`,
		`CREATE INDEX IF NOT EXISTS idx_requests_status ON booking_requests(status)`,
		`CREATE INDEX IF NOT EXISTS idx_requests_start ON booking_requests(start_time)`,
		`CREATE INDEX IF NOT EXISTS idx_line_items_request ON line_items(request_id)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

func (db *DB) Close() error {
	return db.DB.Close()
}
