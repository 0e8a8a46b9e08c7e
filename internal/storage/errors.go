// Package storage defines the storage engine contract: the operations any
// backing implementation must provide, the error taxonomy callers can
// branch on, and shared path helpers.
package storage

import "errors"

// Sentinel errors for expected conditions. Backing-store faults are wrapped
// and surfaced verbatim, never translated into these.
var (
	// ErrNodeAlreadyExists is returned when an insert collides with the
	// path of a non-deleted node.
	ErrNodeAlreadyExists = errors.New("node already exists")

	// ErrNotFound is returned when a referenced node, version, or lock
	// is absent.
	ErrNotFound = errors.New("not found")

	// ErrConcurrencyConflict is returned when a writer presents a stale
	// timestamp on an update-class operation.
	ErrConcurrencyConflict = errors.New("concurrent update detected")

	// ErrTreeLockConflict is returned when a tree lock overlaps an
	// existing lock (same path, ancestor, or descendant).
	ErrTreeLockConflict = errors.New("tree lock conflict")

	// ErrSchemaOutOfDate is returned when a schema writer presents a
	// stale schema timestamp.
	ErrSchemaOutOfDate = errors.New("schema out of date")

	// ErrSchemaLocked is returned when another schema update is in flight.
	ErrSchemaLocked = errors.New("schema is locked")

	// ErrInvalidSchemaLock is returned when a schema lock token does not
	// match the currently held lock.
	ErrInvalidSchemaLock = errors.New("invalid schema lock token")
)
