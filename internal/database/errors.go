package database

import "errors"

var (
	// ErrNotFound covers unknown barbers, schedule days and requests.
	ErrNotFound = errors.New("not found")

	// ErrConflict means the interval overlaps an accepted request.
	ErrConflict = errors.New("time range already taken")

	// ErrConcurrentModification means the version guard failed; the row
	// was changed by someone else between read and write.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrDayMismatch means the start time is not on the schedule day's date.
	ErrDayMismatch = errors.New("start time is not on the schedule day")

	// ErrPastTime means the start time is not after now on a same-day booking.
	ErrPastTime = errors.New("start time is in the past")

	// ErrOutsideWorkingHours means [start, end) does not fit any working window.
	ErrOutsideWorkingHours = errors.New("time range outside working hours")

	// ErrUnknownService means a service id is missing, inactive or unpriced.
	ErrUnknownService = errors.New("unknown or inactive service")

	// ErrTrimmed means a line-item change would push the end time past the
	// working window; the request keeps its prior state.
	ErrTrimmed = errors.New("new end time exceeds working hours")

	// ErrRequestDenied means a denied request cannot be amended.
	ErrRequestDenied = errors.New("denied request cannot be amended")
)

// IsValidation reports whether err is a creation-time validation failure
// (as opposed to a conflict or a missing row).
func IsValidation(err error) bool {
	return errors.Is(err, ErrDayMismatch) ||
		errors.Is(err, ErrPastTime) ||
		errors.Is(err, ErrOutsideWorkingHours) ||
		errors.Is(err, ErrUnknownService) ||
		errors.Is(err, ErrRequestDenied)
}
