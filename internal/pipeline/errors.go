package pipeline

import "errors"

// Sentinel kinds for pipeline errors.
var (
	ErrInvalidReport = errors.New("invalid sighting report")
)
