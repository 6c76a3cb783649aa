package schedule

import (
	"sort"

	"sartarosh/internal/models"
)

// MergeIntervals collapses overlapping or touching intervals so a double
// booking is never counted twice in occupancy math.
func MergeIntervals(intervals []Interval) []Interval {
	if len(intervals) < 2 {
		return intervals
	}

	sorted := append([]Interval(nil), intervals...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	merged := sorted[:1]
	for _, iv := range sorted[1:] {
		last := &merged[len(merged)-1]
		if !iv.Start.After(last.End) {
			if iv.End.After(last.End) {
				last.End = iv.End
			}
			continue
		}
		merged = append(merged, iv)
	}
	return merged
}

// BookedMinutes sums the overlap between the busy intervals and the working
// windows, merging the busy set first.
func BookedMinutes(windows []Interval, busy []Interval) int {
	total := 0
	for _, b := range MergeIntervals(busy) {
		for _, w := range windows {
			s := b.Start
			if w.Start.After(s) {
				s = w.Start
			}
			e := b.End
			if w.End.Before(e) {
				e = w.End
			}
			total += Interval{Start: s, End: e}.Minutes()
		}
	}
	return total
}

// Occupancy derives the day's booked-to-available ratio. A day with no
// working minutes reports the "none" band instead of dividing by zero.
func Occupancy(windows []Interval, busy []Interval) models.Occupancy {
	total := 0
	for _, w := range windows {
		total += w.Minutes()
	}

	occ := models.Occupancy{TotalMinutes: total, Band: models.OccupancyNone}
	if total <= 0 {
		return occ
	}

	occ.BookedMinutes = BookedMinutes(windows, busy)
	ratio := float64(occ.BookedMinutes) / float64(total)
	pct := int(ratio * 100)
	occ.Percent = &pct

	switch {
	case ratio < 0.34:
		occ.Band = models.OccupancyLow
	case ratio < 0.67:
		occ.Band = models.OccupancyMedium
	default:
		occ.Band = models.OccupancyHigh
	}
	return occ
}
