package schedule

import (
	"time"

	"sartarosh/internal/models"
)

// Slots subdivides the day's working windows into consecutive slots of
// slotMinutes and tags each one free or busy against the given intervals.
// Pure function of its inputs: identical windows and busy ranges always
// produce the identical sequence.
func Slots(windows []Interval, busy []Interval, slotMinutes int) []models.Slot {
	if slotMinutes <= 0 {
		slotMinutes = models.DefaultSlotMinutes
	}
	step := time.Duration(slotMinutes) * time.Minute

	var slots []models.Slot
	for _, w := range windows {
		for cur := w.Start; !cur.Add(step).After(w.End); cur = cur.Add(step) {
			slot := Interval{Start: cur, End: cur.Add(step)}
			free := true
			for _, b := range busy {
				if slot.Overlaps(b) {
					free = false
					break
				}
			}
			slots = append(slots, models.Slot{Start: slot.Start, End: slot.End, Free: free})
		}
	}
	return slots
}
