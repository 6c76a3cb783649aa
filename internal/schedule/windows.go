package schedule

import (
	"time"

	"sartarosh/internal/models"
)

// Interval is a half-open [Start, End) time range.
type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports half-open interval overlap:
// [a.Start, a.End) overlaps [b.Start, b.End) iff a.Start < b.End && b.Start < a.End.
func (a Interval) Overlaps(b Interval) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

// Minutes returns the interval length in whole minutes, never negative.
func (a Interval) Minutes() int {
	d := int(a.End.Sub(a.Start) / time.Minute)
	if d < 0 {
		return 0
	}
	return d
}

// DayWindows resolves the working intervals of a concrete calendar day from
// the barber's weekly windows. An overnight window (start after end) is split
// into a late-evening and an early-morning segment of the same day, so a
// day's availability never leaks into the next date.
func DayWindows(windows []models.WorkingWindow, day time.Time) []Interval {
	idx := models.WeekdayIndex(day.Weekday())
	midnight := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())

	var out []Interval
	for _, w := range windows {
		if w.Weekday != idx || !w.IsWorking {
			continue
		}
		switch {
		case w.StartMin < w.EndMin:
			out = append(out, Interval{
				Start: midnight.Add(time.Duration(w.StartMin) * time.Minute),
				End:   midnight.Add(time.Duration(w.EndMin) * time.Minute),
			})
		case w.StartMin > w.EndMin:
			out = append(out,
				Interval{
					Start: midnight.Add(time.Duration(w.StartMin) * time.Minute),
					End:   midnight.Add(23*time.Hour + 59*time.Minute),
				},
				Interval{
					Start: midnight,
					End:   midnight.Add(time.Duration(w.EndMin) * time.Minute),
				},
			)
		}
	}
	return out
}

// Contains reports whether [start, end) lies fully inside any single window.
func Contains(windows []Interval, start, end time.Time) bool {
	for _, w := range windows {
		if !start.Before(w.Start) && !end.After(w.End) {
			return true
		}
	}
	return false
}

// BusyIntervals extracts the occupied ranges from accepted requests.
// Malformed rows (end not after start) are skipped.
func BusyIntervals(requests []models.BookingRequest) []Interval {
	var busy []Interval
	for _, r := range requests {
		if r.Status != models.StatusAccepted {
			continue
		}
		if !r.StartTime.Before(r.EndTime) {
			continue
		}
		busy = append(busy, Interval{Start: r.StartTime, End: r.EndTime})
	}
	return busy
}
