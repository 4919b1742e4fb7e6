package storage

import "errors"

// Storage errors.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when attempting to insert a record
	// with a key that already exists. Append-only stores do not allow updates.
	ErrDuplicateKey = errors.New("duplicate key: append-only store does not allow updates")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrStoreBusy is returned when another writer holds the store lock.
	ErrStoreBusy = errors.New("store busy: another writer holds the lock")

	// ErrInvalidTransition is returned when a candidate status change is not allowed
	// from its current status.
	ErrInvalidTransition = errors.New("invalid candidate status transition")
)
