package schedule

import (
	"testing"
	"time"

	"sartarosh/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", s)
	require.NoError(t, err)
	return d
}

func at(d time.Time, hm string) time.Time {
	tm, _ := time.Parse("15:04", hm)
	return time.Date(d.Year(), d.Month(), d.Day(), tm.Hour(), tm.Minute(), 0, 0, d.Location())
}

// 2026-09-07 is a Monday.
const monday = "2026-09-07"

func mondayWindow(start, end string) models.WorkingWindow {
	s, _ := models.ParseClock(start)
	e, _ := models.ParseClock(end)
	return models.WorkingWindow{Weekday: 0, StartMin: s, EndMin: e, IsWorking: true}
}

func TestDayWindows(t *testing.T) {
	d := day(t, monday)

	t.Run("regular window", func(t *testing.T) {
		ws := DayWindows([]models.WorkingWindow{mondayWindow("09:00", "18:00")}, d)
		require.Len(t, ws, 1)
		assert.Equal(t, at(d, "09:00"), ws[0].Start)
		assert.Equal(t, at(d, "18:00"), ws[0].End)
	})

	t.Run("non working day yields nothing", func(t *testing.T) {
		w := mondayWindow("09:00", "18:00")
		w.IsWorking = false
		assert.Empty(t, DayWindows([]models.WorkingWindow{w}, d))
	})

	t.Run("other weekday yields nothing", func(t *testing.T) {
		w := mondayWindow("09:00", "18:00")
		w.Weekday = 3
		assert.Empty(t, DayWindows([]models.WorkingWindow{w}, d))
	})

	t.Run("overnight window splits in two", func(t *testing.T) {
		ws := DayWindows([]models.WorkingWindow{mondayWindow("22:00", "06:00")}, d)
		require.Len(t, ws, 2)
		assert.Equal(t, at(d, "22:00"), ws[0].Start)
		assert.Equal(t, at(d, "23:59"), ws[0].End)
		assert.Equal(t, at(d, "00:00"), ws[1].Start)
		assert.Equal(t, at(d, "06:00"), ws[1].End)
	})

	t.Run("zero length window yields nothing", func(t *testing.T) {
		assert.Empty(t, DayWindows([]models.WorkingWindow{mondayWindow("09:00", "09:00")}, d))
	})
}

func TestSlotsMarksOverlapsBusy(t *testing.T) {
	d := day(t, monday)
	windows := DayWindows([]models.WorkingWindow{mondayWindow("09:00", "18:00")}, d)
	busy := []Interval{{Start: at(d, "10:00"), End: at(d, "11:00")}}

	slots := Slots(windows, busy, 30)
	require.Len(t, slots, 18)

	byStart := make(map[string]models.Slot, len(slots))
	for _, s := range slots {
		byStart[s.Start.Format("15:04")] = s
	}

	assert.True(t, byStart["09:30"].Free)
	assert.False(t, byStart["10:00"].Free)
	assert.False(t, byStart["10:30"].Free)
	assert.True(t, byStart["11:00"].Free)
}

func TestSlotsReferentiallyTransparent(t *testing.T) {
	d := day(t, monday)
	windows := DayWindows([]models.WorkingWindow{mondayWindow("09:00", "13:00")}, d)
	busy := []Interval{{Start: at(d, "09:30"), End: at(d, "10:15")}}

	first := Slots(windows, busy, 15)
	second := Slots(windows, busy, 15)
	assert.Equal(t, first, second)
}

func TestSlotsPartialSlotNotEmitted(t *testing.T) {
	d := day(t, monday)
	windows := DayWindows([]models.WorkingWindow{mondayWindow("09:00", "09:50")}, d)

	slots := Slots(windows, nil, 30)
	// 09:00-09:30 fits; 09:30-10:00 would spill past the window end.
	require.Len(t, slots, 1)
	assert.Equal(t, at(d, "09:00"), slots[0].Start)
}

func TestSlotsEmptyWindows(t *testing.T) {
	assert.Empty(t, Slots(nil, nil, 30))
}

func TestBusyIntervals(t *testing.T) {
	d := day(t, monday)
	reqs := []models.BookingRequest{
		{Status: models.StatusAccepted, StartTime: at(d, "10:00"), EndTime: at(d, "11:00")},
		{Status: models.StatusPending, StartTime: at(d, "12:00"), EndTime: at(d, "13:00")},
		{Status: models.StatusDenied, StartTime: at(d, "14:00"), EndTime: at(d, "15:00")},
		{Status: models.StatusAccepted, StartTime: at(d, "16:00"), EndTime: at(d, "16:00")}, // malformed
	}

	busy := BusyIntervals(reqs)
	require.Len(t, busy, 1)
	assert.Equal(t, at(d, "10:00"), busy[0].Start)
}

func TestContains(t *testing.T) {
	d := day(t, monday)
	windows := DayWindows([]models.WorkingWindow{mondayWindow("09:00", "18:00")}, d)

	assert.True(t, Contains(windows, at(d, "09:00"), at(d, "10:00")))
	assert.True(t, Contains(windows, at(d, "17:00"), at(d, "18:00")))
	assert.False(t, Contains(windows, at(d, "08:30"), at(d, "09:30")))
	assert.False(t, Contains(windows, at(d, "17:30"), at(d, "18:30")))
}
