package repository

import "errors"

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrStaleTask is returned when a task changed status between read and write.
	ErrStaleTask = errors.New("task was modified concurrently")
)
