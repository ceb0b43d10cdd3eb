package tasks

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrSchedulingConflict = errors.New("scheduling conflict")
	ErrValidation         = errors.New("validation failed")
	ErrPersistence        = errors.New("persistence failed")

	ErrNoStartTime = errors.New("start time is not set")
)

// Classify reduces an error returned by the manager or a store to a short
// label used for metrics and HTTP error codes.
func Classify(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrPersistence):
		return "persistence"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrSchedulingConflict):
		return "conflict"
	case errors.Is(err, ErrValidation), errors.Is(err, ErrNoStartTime):
		return "invalid"
	default:
		return "internal"
	}
}
