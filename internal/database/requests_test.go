package database

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sartarosh/internal/models"
	"sartarosh/internal/schedule"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.Nop()
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	windows := make([]models.WorkingWindow, 0, 7)
	for wd := 0; wd < 7; wd++ {
		windows = append(windows, models.WorkingWindow{
			BarberID: 1, Weekday: wd, StartMin: 9 * 60, EndMin: 18 * 60, IsWorking: true,
		})
	}
	err = db.SyncBarbers(context.Background(),
		[]models.Barber{{ID: 1, Name: "Anvar", ChatID: 100, IsActive: true}},
		windows,
		[]models.ServiceOffering{
			{BarberID: 1, ServiceID: 1, Name: "Haircut", Price: 50000, Duration: 30, Active: true},
			{BarberID: 1, ServiceID: 2, Name: "Beard trim", Price: 30000, Duration: 30, Active: true},
			{BarberID: 1, ServiceID: 3, Name: "Full styling", Price: 120000, Duration: 480, Active: true},
		},
	)
	require.NoError(t, err)
	return db
}

func testDay(t *testing.T, db *DB) *models.ScheduleDay {
	t.Helper()
	day := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)
	_, err := db.EnsureScheduleDay(context.Background(), 1, day)
	require.NoError(t, err)
	sd, err := db.GetScheduleDayByDate(context.Background(), 1, day)
	require.NoError(t, err)
	return sd
}

func pendingRequest(sd *models.ScheduleDay, clientID int64, startHour, startMin int) *models.BookingRequest {
	start := time.Date(2026, 9, 7, startHour, startMin, 0, 0, time.UTC)
	return &models.BookingRequest{
		BarberID:      1,
		ClientID:      &clientID,
		ScheduleDayID: sd.ID,
		StartTime:     start,
		EndTime:       start.Add(30 * time.Minute),
		Status:        models.StatusPending,
		Services: []models.LineItem{
			{ServiceID: 1, Name: "Haircut", Price: 50000, Duration: 30},
		},
	}
}

func dayIntervals() []schedule.Interval {
	return []schedule.Interval{{
		Start: time.Date(2026, 9, 7, 9, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 9, 7, 18, 0, 0, 0, time.UTC),
	}}
}

func TestEnsureScheduleDayIdempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	day := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)

	inserted, err := db.EnsureScheduleDay(ctx, 1, day)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = db.EnsureScheduleDay(ctx, 1, day)
	require.NoError(t, err)
	assert.False(t, inserted)

	days, err := db.GetScheduleDays(ctx, 1, day, day)
	require.NoError(t, err)
	require.Len(t, days, 1)
	assert.Equal(t, 0, days[0].NClients)
	assert.Equal(t, int64(0), days[0].TotalIncome)
}

func TestCreateRequestLocked(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	sd := testDay(t, db)

	req := pendingRequest(sd, 42, 10, 0)
	require.NoError(t, db.CreateRequestLocked(ctx, req))
	assert.NotZero(t, req.ID)
	assert.Equal(t, int64(1), req.Version)
	require.Len(t, req.Services, 1)
	assert.NotZero(t, req.Services[0].ID)

	got, err := db.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)
	require.NotNil(t, got.ClientID)
	assert.Equal(t, int64(42), *got.ClientID)
	require.Len(t, got.Services, 1)
	assert.Equal(t, int64(50000), got.Services[0].Price)
}

func TestCreateRequestLockedConflict(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	sd := testDay(t, db)

	first := pendingRequest(sd, 1, 10, 0)
	require.NoError(t, db.CreateRequestLocked(ctx, first))
	_, err := db.TransitionRequest(ctx, first.ID, models.ActionAccept)
	require.NoError(t, err)

	// Exact same interval against an accepted request.
	err = db.CreateRequestLocked(ctx, pendingRequest(sd, 2, 10, 0))
	assert.ErrorIs(t, err, ErrConflict)

	// Partial overlap from either side.
	err = db.CreateRequestLocked(ctx, pendingRequest(sd, 3, 10, 15))
	assert.ErrorIs(t, err, ErrConflict)

	// Back to back is fine: intervals are half-open.
	require.NoError(t, db.CreateRequestLocked(ctx, pendingRequest(sd, 4, 10, 30)))
}

func TestCreateRequestLockedPendingDoesNotBlock(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	sd := testDay(t, db)

	require.NoError(t, db.CreateRequestLocked(ctx, pendingRequest(sd, 1, 10, 0)))
	// Only accepted requests hold the interval.
	require.NoError(t, db.CreateRequestLocked(ctx, pendingRequest(sd, 2, 10, 0)))
}

func TestTransitionRequest(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	sd := testDay(t, db)

	req := pendingRequest(sd, 42, 10, 0)
	require.NoError(t, db.CreateRequestLocked(ctx, req))

	accepted, err := db.TransitionRequest(ctx, req.ID, models.ActionAccept)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAccepted, accepted.Status)
	assert.Equal(t, int64(2), accepted.Version)

	day, err := db.GetScheduleDay(ctx, sd.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, day.NClients)
	assert.Equal(t, int64(50000), day.TotalIncome)

	// Deny afterwards rolls the aggregates back to zero.
	denied, err := db.TransitionRequest(ctx, req.ID, models.ActionDeny)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDenied, denied.Status)

	day, err = db.GetScheduleDay(ctx, sd.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, day.NClients)
	assert.Equal(t, int64(0), day.TotalIncome)
}

func TestTransitionRequestNotFound(t *testing.T) {
	db := newTestDB(t)
	_, err := db.TransitionRequest(context.Background(), 9999, models.ActionAccept)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTransitionAcceptConflict(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	sd := testDay(t, db)

	first := pendingRequest(sd, 1, 10, 0)
	second := pendingRequest(sd, 2, 10, 0)
	require.NoError(t, db.CreateRequestLocked(ctx, first))
	require.NoError(t, db.CreateRequestLocked(ctx, second))

	_, err := db.TransitionRequest(ctx, first.ID, models.ActionAccept)
	require.NoError(t, err)

	_, err = db.TransitionRequest(ctx, second.ID, models.ActionAccept)
	assert.ErrorIs(t, err, ErrConflict)

	// Deny is always permitted.
	denied, err := db.TransitionRequest(ctx, second.ID, models.ActionDeny)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDenied, denied.Status)
}

func TestConcurrentAcceptExactlyOneWins(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	sd := testDay(t, db)

	ids := make([]int64, 5)
	for i := range ids {
		req := pendingRequest(sd, int64(i+1), 10, 0)
		require.NoError(t, db.CreateRequestLocked(ctx, req))
		ids[i] = req.ID
	}

	var wg sync.WaitGroup
	errs := make([]error, len(ids))
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id int64) {
			defer wg.Done()
			_, errs[i] = db.TransitionRequest(ctx, id, models.ActionAccept)
		}(i, id)
	}
	wg.Wait()

	wins, conflicts := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case assert.ErrorIs(t, err, ErrConflict):
			conflicts++
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, len(ids)-1, conflicts)

	day, err := db.GetScheduleDay(ctx, sd.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, day.NClients)
	assert.Equal(t, int64(50000), day.TotalIncome)
}

func TestDayStatsDistinctClientsAndDiscount(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	sd := testDay(t, db)

	// Same client books twice plus one anonymous walk-in.
	reqs := []*models.BookingRequest{
		pendingRequest(sd, 7, 10, 0),
		pendingRequest(sd, 7, 11, 0),
	}
	walkIn := pendingRequest(sd, 0, 12, 0)
	walkIn.ClientID = nil
	walkIn.Status = models.StatusAccepted
	reqs = append(reqs, walkIn)

	for _, r := range reqs {
		require.NoError(t, db.CreateRequestLocked(ctx, r))
	}
	for _, r := range reqs[:2] {
		_, err := db.TransitionRequest(ctx, r.ID, models.ActionAccept)
		require.NoError(t, err)
	}

	_, err := db.UpdateRequestDiscount(ctx, reqs[0].ID, 2, 5000)
	require.NoError(t, err)

	day, err := db.GetScheduleDay(ctx, sd.ID)
	require.NoError(t, err)
	// Walk-ins have no client id and do not count toward n_clients.
	assert.Equal(t, 1, day.NClients)
	assert.Equal(t, int64(45000+50000+50000), day.TotalIncome)
}

func TestUpdateRequestDiscountVersionGuard(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	sd := testDay(t, db)

	req := pendingRequest(sd, 1, 10, 0)
	require.NoError(t, db.CreateRequestLocked(ctx, req))

	_, err := db.UpdateRequestDiscount(ctx, req.ID, req.Version+5, 1000)
	assert.ErrorIs(t, err, ErrConcurrentModification)

	updated, err := db.UpdateRequestDiscount(ctx, req.ID, req.Version, 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), updated.Discount)
}

func TestUpdateRequestDiscountDenied(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	sd := testDay(t, db)

	req := pendingRequest(sd, 1, 10, 0)
	require.NoError(t, db.CreateRequestLocked(ctx, req))
	_, err := db.TransitionRequest(ctx, req.ID, models.ActionDeny)
	require.NoError(t, err)

	_, err = db.UpdateRequestDiscount(ctx, req.ID, 2, 1000)
	assert.ErrorIs(t, err, ErrRequestDenied)
}

func TestToggleLineItemAddAndRemove(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	sd := testDay(t, db)

	req := pendingRequest(sd, 1, 10, 0)
	require.NoError(t, db.CreateRequestLocked(ctx, req))

	beard := models.ServiceOffering{BarberID: 1, ServiceID: 2, Name: "Beard trim", Price: 30000, Duration: 30, Active: true}

	updated, added, err := db.ToggleLineItem(ctx, req.ID, beard, dayIntervals())
	require.NoError(t, err)
	assert.True(t, added)
	require.Len(t, updated.Services, 2)
	assert.Equal(t, req.StartTime.Add(60*time.Minute), updated.EndTime)

	updated, added, err = db.ToggleLineItem(ctx, req.ID, beard, dayIntervals())
	require.NoError(t, err)
	assert.False(t, added)
	require.Len(t, updated.Services, 1)
	assert.Equal(t, req.StartTime.Add(30*time.Minute), updated.EndTime)
}

func TestToggleLineItemTrimmed(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	sd := testDay(t, db)

	// 17:30 start: adding an 8-hour service overruns the 18:00 close.
	req := pendingRequest(sd, 1, 17, 30)
	require.NoError(t, db.CreateRequestLocked(ctx, req))

	long := models.ServiceOffering{BarberID: 1, ServiceID: 3, Name: "Full styling", Price: 120000, Duration: 480, Active: true}
	_, _, err := db.ToggleLineItem(ctx, req.ID, long, dayIntervals())
	assert.ErrorIs(t, err, ErrTrimmed)

	// Prior state is untouched.
	got, err := db.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	require.Len(t, got.Services, 1)
	assert.Equal(t, req.EndTime, got.EndTime)
	assert.Equal(t, int64(1), got.Version)
}

func TestToggleLineItemGrowConflict(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	sd := testDay(t, db)

	first := pendingRequest(sd, 1, 10, 0)
	neighbour := pendingRequest(sd, 2, 10, 30)
	require.NoError(t, db.CreateRequestLocked(ctx, first))
	require.NoError(t, db.CreateRequestLocked(ctx, neighbour))
	_, err := db.TransitionRequest(ctx, first.ID, models.ActionAccept)
	require.NoError(t, err)
	_, err = db.TransitionRequest(ctx, neighbour.ID, models.ActionAccept)
	require.NoError(t, err)

	// Growing the accepted 10:00 request into 10:30 must be refused.
	beard := models.ServiceOffering{BarberID: 1, ServiceID: 2, Name: "Beard trim", Price: 30000, Duration: 30, Active: true}
	_, _, err = db.ToggleLineItem(ctx, first.ID, beard, dayIntervals())
	assert.ErrorIs(t, err, ErrConflict)
}

func TestToggleLineItemDenied(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	sd := testDay(t, db)

	req := pendingRequest(sd, 1, 10, 0)
	require.NoError(t, db.CreateRequestLocked(ctx, req))
	_, err := db.TransitionRequest(ctx, req.ID, models.ActionDeny)
	require.NoError(t, err)

	beard := models.ServiceOffering{BarberID: 1, ServiceID: 2, Name: "Beard trim", Price: 30000, Duration: 30, Active: true}
	_, _, err = db.ToggleLineItem(ctx, req.ID, beard, dayIntervals())
	assert.ErrorIs(t, err, ErrRequestDenied)
}

func TestGetRequestsForDay(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	sd := testDay(t, db)

	late := pendingRequest(sd, 1, 12, 0)
	early := pendingRequest(sd, 2, 10, 0)
	require.NoError(t, db.CreateRequestLocked(ctx, late))
	require.NoError(t, db.CreateRequestLocked(ctx, early))
	_, err := db.TransitionRequest(ctx, early.ID, models.ActionAccept)
	require.NoError(t, err)

	all, err := db.GetRequestsForDay(ctx, sd.ID, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, early.ID, all[0].ID)
	require.Len(t, all[0].Services, 1)

	accepted, err := db.GetRequestsForDay(ctx, sd.ID, models.StatusAccepted)
	require.NoError(t, err)
	require.Len(t, accepted, 1)
	assert.Equal(t, early.ID, accepted[0].ID)
}

func TestReminders(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	sd := testDay(t, db)

	soon := pendingRequest(sd, 1, 10, 0)
	later := pendingRequest(sd, 2, 16, 0)
	pendingOnly := pendingRequest(sd, 3, 11, 0)
	require.NoError(t, db.CreateRequestLocked(ctx, soon))
	require.NoError(t, db.CreateRequestLocked(ctx, later))
	require.NoError(t, db.CreateRequestLocked(ctx, pendingOnly))
	for _, id := range []int64{soon.ID, later.ID} {
		_, err := db.TransitionRequest(ctx, id, models.ActionAccept)
		require.NoError(t, err)
	}

	from := time.Date(2026, 9, 7, 9, 30, 0, 0, time.UTC)
	to := from.Add(time.Hour)

	due, err := db.GetDueReminders(ctx, from, to)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, soon.ID, due[0].ID)

	require.NoError(t, db.MarkReminderSent(ctx, soon.ID, time.Now()))

	due, err = db.GetDueReminders(ctx, from, to)
	require.NoError(t, err)
	assert.Empty(t, due)
}
