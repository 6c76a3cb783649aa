package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"sartarosh/internal/models"
)

const dayFormat = "2006-01-02"

// EnsureScheduleDay creates the (barber, day) row if it does not exist yet
// and reports whether a row was inserted. Safe to call repeatedly and from
// concurrent generators: the UNIQUE(barber_id, day) constraint plus
// ON CONFLICT DO NOTHING make the insert a no-op on a re-run.
func (db *DB) EnsureScheduleDay(ctx context.Context, barberID int64, day time.Time) (bool, error) {
	now := time.Now()
	res, err := db.ExecContext(ctx, `INSERT INTO schedule_days (barber_id, day, n_clients, total_income, created_at, updated_at)
			VALUES (?, ?, 0, 0, ?, ?)
			ON CONFLICT(barber_id, day) DO NOTHING`,
		barberID, day.Format(dayFormat), now, now)
	if err != nil {
		return false, fmt.Errorf("failed to ensure schedule day: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return rows > 0, nil
}

func (db *DB) GetScheduleDay(ctx context.Context, id int64) (*models.ScheduleDay, error) {
	row := db.QueryRowContext(ctx, `SELECT id, barber_id, day, n_clients, total_income, created_at, updated_at
			FROM schedule_days WHERE id = ?`, id)
	return scanScheduleDay(row)
}

func (db *DB) GetScheduleDayByDate(ctx context.Context, barberID int64, day time.Time) (*models.ScheduleDay, error) {
	row := db.QueryRowContext(ctx, `SELECT id, barber_id, day, n_clients, total_income, created_at, updated_at
			FROM schedule_days WHERE barber_id = ? AND day = ?`, barberID, day.Format(dayFormat))
	return scanScheduleDay(row)
}

// GetScheduleDays returns a barber's days inside [from, to], ordered by date.
func (db *DB) GetScheduleDays(ctx context.Context, barberID int64, from, to time.Time) ([]models.ScheduleDay, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, barber_id, day, n_clients, total_income, created_at, updated_at
			FROM schedule_days WHERE barber_id = ? AND day >= ? AND day <= ? ORDER BY day`,
		barberID, from.Format(dayFormat), to.Format(dayFormat))
	if err != nil {
		return nil, fmt.Errorf("failed to get schedule days: %w", err)
	}
	defer rows.Close()

	var days []models.ScheduleDay
	for rows.Next() {
		var d models.ScheduleDay
		var dayStr string
		if err := rows.Scan(&d.ID, &d.BarberID, &dayStr, &d.NClients, &d.TotalIncome, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan schedule day: %w", err)
		}
		if d.Day, err = time.Parse(dayFormat, dayStr); err != nil {
			return nil, fmt.Errorf("failed to parse schedule day %s: %w", dayStr, err)
		}
		days = append(days, d)
	}
	return days, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanScheduleDay(row rowScanner) (*models.ScheduleDay, error) {
	var d models.ScheduleDay
	var dayStr string
	err := row.Scan(&d.ID, &d.BarberID, &dayStr, &d.NClients, &d.TotalIncome, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get schedule day: %w", err)
	}
	if d.Day, err = time.Parse(dayFormat, dayStr); err != nil {
		return nil, fmt.Errorf("failed to parse schedule day %s: %w", dayStr, err)
	}
	return &d, nil
}
