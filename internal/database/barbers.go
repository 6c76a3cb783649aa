package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"sartarosh/internal/models"
)

// SyncBarbers upserts the roster (barbers, weekly windows, offerings) into
// the store and refreshes the in-memory caches. The roster file is the
// source of truth for this read-only configuration; the booking core never
// mutates it.
func (db *DB) SyncBarbers(ctx context.Context, barbers []models.Barber, windows []models.WorkingWindow, offerings []models.ServiceOffering) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin roster sync: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now()
	for _, b := range barbers {
		_, err := tx.ExecContext(ctx, `INSERT INTO barbers (id, name, chat_id, is_active, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					name = excluded.name,
					chat_id = excluded.chat_id,
					is_active = excluded.is_active,
					updated_at = excluded.updated_at`,
			b.ID, b.Name, b.ChatID, b.IsActive, now, now)
		if err != nil {
			return fmt.Errorf("failed to upsert barber %d: %w", b.ID, err)
		}
	}

	for _, w := range windows {
		_, err := tx.ExecContext(ctx, `INSERT INTO working_windows (barber_id, weekday, start_min, end_min, is_working)
				VALUES (?, ?, ?, ?, ?)
				ON CONFLICT(barber_id, weekday) DO UPDATE SET
					start_min = excluded.start_min,
					end_min = excluded.end_min,
					is_working = excluded.is_working`,
			w.BarberID, w.Weekday, w.StartMin, w.EndMin, w.IsWorking)
		if err != nil {
			return fmt.Errorf("failed to upsert window for barber %d: %w", w.BarberID, err)
		}
	}

	for _, o := range offerings {
		_, err := tx.ExecContext(ctx, `INSERT INTO service_offerings (barber_id, service_id, name, price, duration, active, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(barber_id, service_id) DO UPDATE SET
					name = excluded.name,
					price = excluded.price,
					duration = excluded.duration,
					active = excluded.active,
					updated_at = excluded.updated_at`,
			o.BarberID, o.ServiceID, o.Name, o.Price, o.Duration, o.Active, now, now)
		if err != nil {
			return fmt.Errorf("failed to upsert offering %d/%d: %w", o.BarberID, o.ServiceID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit roster sync: %w", err)
	}

	db.mu.Lock()
	db.barberCache = make(map[int64]models.Barber, len(barbers))
	for _, b := range barbers {
		db.barberCache[b.ID] = b
	}
	db.windowCache = make(map[int64][]models.WorkingWindow)
	for _, w := range windows {
		db.windowCache[w.BarberID] = append(db.windowCache[w.BarberID], w)
	}
	db.offeringCache = make(map[int64]map[int64]models.ServiceOffering)
	for _, o := range offerings {
		if db.offeringCache[o.BarberID] == nil {
			db.offeringCache[o.BarberID] = make(map[int64]models.ServiceOffering)
		}
		db.offeringCache[o.BarberID][o.ServiceID] = o
	}
	db.mu.Unlock()

	return nil
}

func (db *DB) GetBarber(ctx context.Context, id int64) (*models.Barber, error) {
	db.mu.RLock()
	if b, ok := db.barberCache[id]; ok {
		db.mu.RUnlock()
		return &b, nil
	}
	db.mu.RUnlock()

	var b models.Barber
	query := `SELECT id, name, chat_id, is_active, created_at, updated_at FROM barbers WHERE id = ?`
	err := db.QueryRowContext(ctx, query, id).Scan(
		&b.ID, &b.Name, &b.ChatID, &b.IsActive, &b.CreatedAt, &b.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get barber: %w", err)
	}
	return &b, nil
}

func (db *DB) GetActiveBarbers(ctx context.Context) ([]models.Barber, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, name, chat_id, is_active, created_at, updated_at
			FROM barbers WHERE is_active = 1 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to get active barbers: %w", err)
	}
	defer rows.Close()

	var barbers []models.Barber
	for rows.Next() {
		var b models.Barber
		if err := rows.Scan(&b.ID, &b.Name, &b.ChatID, &b.IsActive, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan barber: %w", err)
		}
		barbers = append(barbers, b)
	}
	return barbers, rows.Err()
}

// GetWorkingWindows returns the weekly windows of one barber.
func (db *DB) GetWorkingWindows(ctx context.Context, barberID int64) ([]models.WorkingWindow, error) {
	db.mu.RLock()
	if ws, ok := db.windowCache[barberID]; ok {
		db.mu.RUnlock()
		return append([]models.WorkingWindow(nil), ws...), nil
	}
	db.mu.RUnlock()

	rows, err := db.QueryContext(ctx, `SELECT barber_id, weekday, start_min, end_min, is_working
			FROM working_windows WHERE barber_id = ? ORDER BY weekday`, barberID)
	if err != nil {
		return nil, fmt.Errorf("failed to get working windows: %w", err)
	}
	defer rows.Close()

	var windows []models.WorkingWindow
	for rows.Next() {
		var w models.WorkingWindow
		if err := rows.Scan(&w.BarberID, &w.Weekday, &w.StartMin, &w.EndMin, &w.IsWorking); err != nil {
			return nil, fmt.Errorf("failed to scan working window: %w", err)
		}
		windows = append(windows, w)
	}
	return windows, rows.Err()
}

// GetOffering resolves one catalog entry of a barber.
func (db *DB) GetOffering(ctx context.Context, barberID, serviceID int64) (*models.ServiceOffering, error) {
	db.mu.RLock()
	if m, ok := db.offeringCache[barberID]; ok {
		if o, ok := m[serviceID]; ok {
			db.mu.RUnlock()
			return &o, nil
		}
	}
	db.mu.RUnlock()

	var o models.ServiceOffering
	query := `SELECT id, barber_id, service_id, name, price, duration, active, created_at, updated_at
              FROM service_offerings WHERE barber_id = ? AND service_id = ?`
	err := db.QueryRowContext(ctx, query, barberID, serviceID).Scan(
		&o.ID, &o.BarberID, &o.ServiceID, &o.Name, &o.Price, &o.Duration, &o.Active, &o.CreatedAt, &o.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get offering: %w", err)
	}
	return &o, nil
}

func (db *DB) GetActiveOfferings(ctx context.Context, barberID int64) ([]models.ServiceOffering, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, barber_id, service_id, name, price, duration, active, created_at, updated_at
			FROM service_offerings WHERE barber_id = ? AND active = 1 ORDER BY service_id`, barberID)
	if err != nil {
		return nil, fmt.Errorf("failed to get offerings: %w", err)
	}
	defer rows.Close()

	var offerings []models.ServiceOffering
	for rows.Next() {
		var o models.ServiceOffering
		if err := rows.Scan(&o.ID, &o.BarberID, &o.ServiceID, &o.Name, &o.Price, &o.Duration, &o.Active, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan offering: %w", err)
		}
		offerings = append(offerings, o)
	}
	return offerings, rows.Err()
}
