package store

import "errors"

var (
	// ErrNotFound is returned when a node UUID is not in the store.
	ErrNotFound = errors.New("node not found")

	// ErrImmutable is returned when a stored node's identity-relevant
	// state would change.
	ErrImmutable = errors.New("node is immutable once stored")

	// ErrNotStored is returned when an operation needs a persisted node.
	ErrNotStored = errors.New("node is not stored")
)
