package storage

import "errors"

// Sentinel errors for storage operations.
var (
	// ErrNotFound is returned when no submission exists for a session.
	ErrNotFound = errors.New("submission not found")

	// ErrConflict is returned when a submission for the session already exists.
	ErrConflict = errors.New("submission already exists")
)
