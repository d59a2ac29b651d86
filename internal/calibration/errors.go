package calibration

import "errors"

// Sentinel kinds for calibration store errors.
var (
	ErrInvalidInput = errors.New("invalid calibration input")

	// ErrNotPersisted marks a point that entered the cache but failed the
	// durable write; it is lost on the next reload.
	ErrNotPersisted = errors.New("point cached but not persisted")
)
