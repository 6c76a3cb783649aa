package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"sartarosh/internal/models"
	"sartarosh/internal/pricing"
	"sartarosh/internal/schedule"
)

// CreateRequestLocked inserts a request plus its line item snapshots in one
// transaction, re-checking the overlap invariant against accepted requests
// on the same schedule day right before the insert. Two clients can both
// pass availability validation for the same slot; the check inside the
// transaction is what keeps the invariant.
func (db *DB) CreateRequestLocked(ctx context.Context, req *models.BookingRequest) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	taken, err := overlapExistsTx(ctx, tx, req.ScheduleDayID, req.StartTime, req.EndTime, 0)
	if err != nil {
		return err
	}
	if taken {
		return ErrConflict
	}

	now := time.Now()
	result, err := tx.ExecContext(ctx, `INSERT INTO booking_requests (
				barber_id, client_id, schedule_day_id, start_time, end_time,
				status, discount, comment, created_at, updated_at, version
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		req.BarberID, nullableID(req.ClientID), req.ScheduleDayID, req.StartTime, req.EndTime,
		req.Status, req.Discount, req.Comment, now, now, 1)
	if err != nil {
		return fmt.Errorf("failed to insert request: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	for i := range req.Services {
		li := &req.Services[i]
		li.RequestID = id
		res, err := tx.ExecContext(ctx, `INSERT INTO line_items (request_id, service_id, name, price, duration)
				VALUES (?, ?, ?, ?, ?)`,
			li.RequestID, li.ServiceID, li.Name, li.Price, li.Duration)
		if err != nil {
			return fmt.Errorf("failed to insert line item: %w", err)
		}
		li.ID, _ = res.LastInsertId()
	}

	// A walk-in created directly as accepted changes the day's aggregates.
	if req.Status == models.StatusAccepted {
		if err := recomputeDayStatsTx(ctx, tx, req.ScheduleDayID); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit request: %w", err)
	}

	req.ID = id
	req.CreatedAt = now
	req.UpdatedAt = now
	req.Version = 1
	return nil
}

// TransitionRequest applies accept/deny under the store's write lock.
// Accept re-runs the overlap check against the other accepted requests on
// the day, excluding the request itself; deny is always permitted. The
// day's aggregates are recomputed inside the same transaction.
func (db *DB) TransitionRequest(ctx context.Context, id int64, action string) (*models.BookingRequest, error) {
	var newStatus string
	switch action {
	case models.ActionAccept:
		newStatus = models.StatusAccepted
	case models.ActionDeny:
		newStatus = models.StatusDenied
	default:
		return nil, fmt.Errorf("unknown action %q", action)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	req, err := getRequestTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if newStatus == models.StatusAccepted {
		taken, err := overlapExistsTx(ctx, tx, req.ScheduleDayID, req.StartTime, req.EndTime, req.ID)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, ErrConflict
		}
	}

	now := time.Now()
	result, err := tx.ExecContext(ctx, `UPDATE booking_requests
			SET status = ?, version = version + 1, updated_at = ?
			WHERE id = ? AND version = ?`,
		newStatus, now, req.ID, req.Version)
	if err != nil {
		return nil, fmt.Errorf("failed to update request status: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return nil, ErrConcurrentModification
	}

	if err := recomputeDayStatsTx(ctx, tx, req.ScheduleDayID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transition: %w", err)
	}

	req.Status = newStatus
	req.Version++
	req.UpdatedAt = now
	return req, nil
}

// UpdateRequestDiscount stores the resolved absolute discount amount. The
// version guard catches a request amended between read and write.
func (db *DB) UpdateRequestDiscount(ctx context.Context, id, version, discount int64) (*models.BookingRequest, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	req, err := getRequestTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if req.Status == models.StatusDenied {
		return nil, ErrRequestDenied
	}

	now := time.Now()
	result, err := tx.ExecContext(ctx, `UPDATE booking_requests
			SET discount = ?, version = version + 1, updated_at = ?
			WHERE id = ? AND version = ?`,
		discount, now, id, version)
	if err != nil {
		return nil, fmt.Errorf("failed to update discount: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return nil, ErrConcurrentModification
	}

	if err := recomputeDayStatsTx(ctx, tx, req.ScheduleDayID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit discount: %w", err)
	}

	req.Discount = discount
	req.Version++
	req.UpdatedAt = now
	return req, nil
}

// ToggleLineItem adds the offering to the request if absent, removes it if
// present, and recomputes end_time = start_time + sum(durations). The whole
// change is rejected with ErrTrimmed when the new end would leave the
// working windows, and with ErrConflict when growing an accepted request
// would overlap a neighbour; in both cases the request keeps its prior state.
func (db *DB) ToggleLineItem(ctx context.Context, requestID int64, off models.ServiceOffering, windows []schedule.Interval) (*models.BookingRequest, bool, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	req, err := getRequestTx(ctx, tx, requestID)
	if err != nil {
		return nil, false, err
	}
	if req.Status == models.StatusDenied {
		return nil, false, ErrRequestDenied
	}

	added := true
	items := make([]models.LineItem, 0, len(req.Services)+1)
	for _, li := range req.Services {
		if li.ServiceID == off.ServiceID {
			added = false
			continue
		}
		items = append(items, li)
	}
	if added {
		items = append(items, models.LineItem{
			RequestID: req.ID,
			ServiceID: off.ServiceID,
			Name:      off.Name,
			Price:     off.Price,
			Duration:  off.Duration,
		})
	}

	total := 0
	for _, li := range items {
		total += li.Duration
	}
	newEnd := req.StartTime.Add(time.Duration(total) * time.Minute)

	if total > 0 && !schedule.Contains(windows, req.StartTime, newEnd) {
		return nil, false, ErrTrimmed
	}
	if req.Status == models.StatusAccepted && newEnd.After(req.EndTime) {
		taken, err := overlapExistsTx(ctx, tx, req.ScheduleDayID, req.StartTime, newEnd, req.ID)
		if err != nil {
			return nil, false, err
		}
		if taken {
			return nil, false, ErrConflict
		}
	}

	if added {
		li := &items[len(items)-1]
		res, err := tx.ExecContext(ctx, `INSERT INTO line_items (request_id, service_id, name, price, duration)
				VALUES (?, ?, ?, ?, ?)`,
			li.RequestID, li.ServiceID, li.Name, li.Price, li.Duration)
		if err != nil {
			return nil, false, fmt.Errorf("failed to insert line item: %w", err)
		}
		li.ID, _ = res.LastInsertId()
	} else {
		_, err := tx.ExecContext(ctx, `DELETE FROM line_items WHERE request_id = ? AND service_id = ?`,
			req.ID, off.ServiceID)
		if err != nil {
			return nil, false, fmt.Errorf("failed to delete line item: %w", err)
		}
	}

	now := time.Now()
	result, err := tx.ExecContext(ctx, `UPDATE booking_requests
			SET end_time = ?, version = version + 1, updated_at = ?
			WHERE id = ? AND version = ?`,
		newEnd, now, req.ID, req.Version)
	if err != nil {
		return nil, false, fmt.Errorf("failed to update end time: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return nil, false, ErrConcurrentModification
	}

	if err := recomputeDayStatsTx(ctx, tx, req.ScheduleDayID); err != nil {
		return nil, false, err
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit line item change: %w", err)
	}

	req.Services = items
	req.EndTime = newEnd
	req.Version++
	req.UpdatedAt = now
	return req, added, nil
}

func (db *DB) GetRequest(ctx context.Context, id int64) (*models.BookingRequest, error) {
	req, err := scanRequest(db.QueryRowContext(ctx, selectRequest+` WHERE id = ?`, id))
	if err != nil {
		return nil, err
	}
	if req.Services, err = db.lineItems(ctx, db.DB, req.ID); err != nil {
		return nil, err
	}
	return req, nil
}

// GetRequestsForDay returns a schedule day's requests with their line items,
// ordered by start time. Pass a status to filter, or "" for all.
func (db *DB) GetRequestsForDay(ctx context.Context, scheduleDayID int64, status string) ([]models.BookingRequest, error) {
	query := selectRequest + ` WHERE schedule_day_id = ?`
	args := []any{scheduleDayID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY start_time, id`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get requests for day: %w", err)
	}
	defer rows.Close()

	var requests []models.BookingRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, *req)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range requests {
		if requests[i].Services, err = db.lineItems(ctx, db.DB, requests[i].ID); err != nil {
			return nil, err
		}
	}
	return requests, nil
}

// GetDueReminders returns accepted requests starting inside [from, to] that
// have not been reminded yet.
func (db *DB) GetDueReminders(ctx context.Context, from, to time.Time) ([]models.BookingRequest, error) {
	rows, err := db.QueryContext(ctx, selectRequest+` WHERE status = ? AND reminder_sent_at IS NULL
			AND start_time >= ? AND start_time <= ? ORDER BY start_time`,
		models.StatusAccepted, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to get due reminders: %w", err)
	}
	defer rows.Close()

	var requests []models.BookingRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, *req)
	}
	return requests, rows.Err()
}

func (db *DB) MarkReminderSent(ctx context.Context, id int64, at time.Time) error {
	_, err := db.ExecContext(ctx, `UPDATE booking_requests SET reminder_sent_at = ?, updated_at = ? WHERE id = ?`,
		at, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to mark reminder sent: %w", err)
	}
	return nil
}

// RecomputeDayStats rederives a day's aggregates outside any caller
// transaction. Aggregates are always recomputable from committed rows, so
// this self-heals any drift.
func (db *DB) RecomputeDayStats(ctx context.Context, scheduleDayID int64) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := recomputeDayStatsTx(ctx, tx, scheduleDayID); err != nil {
		return err
	}
	return tx.Commit()
}

const selectRequest = `SELECT id, barber_id, client_id, schedule_day_id, start_time, end_time,
		status, discount, comment, reminder_sent_at, created_at, updated_at, version
	FROM booking_requests`

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (db *DB) lineItems(ctx context.Context, q queryer, requestID int64) ([]models.LineItem, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, request_id, service_id, name, price, duration
			FROM line_items WHERE request_id = ? ORDER BY id`, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to get line items: %w", err)
	}
	defer rows.Close()

	var items []models.LineItem
	for rows.Next() {
		var li models.LineItem
		if err := rows.Scan(&li.ID, &li.RequestID, &li.ServiceID, &li.Name, &li.Price, &li.Duration); err != nil {
			return nil, fmt.Errorf("failed to scan line item: %w", err)
		}
		items = append(items, li)
	}
	return items, rows.Err()
}

func getRequestTx(ctx context.Context, tx *sql.Tx, id int64) (*models.BookingRequest, error) {
	req, err := scanRequest(tx.QueryRowContext(ctx, selectRequest+` WHERE id = ?`, id))
	if err != nil {
		return nil, err
	}

	rows, err := tx.QueryContext(ctx, `SELECT id, request_id, service_id, name, price, duration
			FROM line_items WHERE request_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get line items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var li models.LineItem
		if err := rows.Scan(&li.ID, &li.RequestID, &li.ServiceID, &li.Name, &li.Price, &li.Duration); err != nil {
			return nil, fmt.Errorf("failed to scan line item: %w", err)
		}
		req.Services = append(req.Services, li)
	}
	return req, rows.Err()
}

func scanRequest(row rowScanner) (*models.BookingRequest, error) {
	var req models.BookingRequest
	var clientID sql.NullInt64
	var reminded sql.NullTime
	err := row.Scan(
		&req.ID, &req.BarberID, &clientID, &req.ScheduleDayID, &req.StartTime, &req.EndTime,
		&req.Status, &req.Discount, &req.Comment, &reminded, &req.CreatedAt, &req.UpdatedAt, &req.Version,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan request: %w", err)
	}
	if clientID.Valid {
		req.ClientID = &clientID.Int64
	}
	if reminded.Valid {
		req.ReminderSentAt = &reminded.Time
	}
	return &req, nil
}

// overlapExistsTx reports whether [start, end) overlaps any accepted request
// on the schedule day other than excludeID. Half-open comparison: a.start <
// b.end && b.start < a.end.
func overlapExistsTx(ctx context.Context, tx *sql.Tx, scheduleDayID int64, start, end time.Time, excludeID int64) (bool, error) {
	var count int
	err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM booking_requests
			WHERE schedule_day_id = ? AND status = ? AND id != ?
			AND start_time < ? AND end_time > ?`,
		scheduleDayID, models.StatusAccepted, excludeID, end, start).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check overlap: %w", err)
	}
	return count > 0, nil
}

// recomputeDayStatsTx rederives n_clients and total_income from the day's
// accepted requests. Both values are always computed from scratch, never
// incremented, so status flips and amendments cannot cause drift.
func recomputeDayStatsTx(ctx context.Context, tx *sql.Tx, scheduleDayID int64) error {
	rows, err := tx.QueryContext(ctx, `SELECT id, client_id, discount FROM booking_requests
			WHERE schedule_day_id = ? AND status = ?`, scheduleDayID, models.StatusAccepted)
	if err != nil {
		return fmt.Errorf("failed to load accepted requests: %w", err)
	}

	type acceptedRow struct {
		id       int64
		clientID sql.NullInt64
		discount int64
	}
	var accepted []acceptedRow
	for rows.Next() {
		var r acceptedRow
		if err := rows.Scan(&r.id, &r.clientID, &r.discount); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan accepted request: %w", err)
		}
		accepted = append(accepted, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	clients := make(map[int64]struct{})
	var totalIncome int64
	for _, r := range accepted {
		if r.clientID.Valid {
			clients[r.clientID.Int64] = struct{}{}
		}

		var subtotal int64
		liRows, err := tx.QueryContext(ctx, `SELECT price FROM line_items WHERE request_id = ?`, r.id)
		if err != nil {
			return fmt.Errorf("failed to load line items: %w", err)
		}
		for liRows.Next() {
			var price int64
			if err := liRows.Scan(&price); err != nil {
				liRows.Close()
				return fmt.Errorf("failed to scan line item price: %w", err)
			}
			subtotal += price
		}
		liRows.Close()
		if err := liRows.Err(); err != nil {
			return err
		}

		totalIncome += pricing.FinalPrice(subtotal, r.discount)
	}

	_, err = tx.ExecContext(ctx, `UPDATE schedule_days SET n_clients = ?, total_income = ?, updated_at = ?
			WHERE id = ?`,
		len(clients), totalIncome, time.Now(), scheduleDayID)
	if err != nil {
		return fmt.Errorf("failed to update day stats: %w", err)
	}
	return nil
}

func nullableID(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}
