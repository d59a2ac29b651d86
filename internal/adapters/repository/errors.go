package repository

import "errors"

// Sentinel kinds for durable store errors.
var (
	ErrNotFound       = errors.New("record not found")
	ErrDuplicatePoint = errors.New("calibration point already exists at this distance")
	ErrInvalidInput   = errors.New("invalid input")
)
