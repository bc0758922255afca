package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned for a row that does not exist.
	ErrNotFound = errors.New("not found")

	// ErrVersionConflict is returned when a row changed since it was read.
	ErrVersionConflict = errors.New("row version conflict")

	// ErrCollision if an item already exists within the store.
	ErrCollision = errors.New("item already exists")
)

// VersionConflictError names the row that changed concurrently.
func VersionConflictError(topicID, id string, version int64) error {
	return fmt.Errorf("row '%s' of topic '%s' is no longer at version %d: %w", id, topicID, version, ErrVersionConflict)
}

// NotFoundError names the row that does not exist.
func NotFoundError(topicID, id string) error {
	return fmt.Errorf("row '%s' of topic '%s': %w", id, topicID, ErrNotFound)
}
