package monitor

import "errors"

// ErrDuplicateTarget is returned when the owner already monitors this URL.
var ErrDuplicateTarget = errors.New("monitor: target with this URL already exists")

// ErrInvalidInput is returned when target input fails validation.
var ErrInvalidInput = errors.New("monitor: invalid input")

// ErrTargetNotFound is returned when the referenced target does not exist.
var ErrTargetNotFound = errors.New("monitor: target not found")
