package activity

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by a RecordStore when no record exists.
	ErrNotFound = errors.New("activity record not found")
	// ErrVersionConflict is returned by a RecordStore when a save raced
	// another writer.
	ErrVersionConflict = errors.New("activity record version conflict")
)

// PartialSourceError reports a collaborator failure for one category.
type PartialSourceError struct {
	Category Category
	Err      error
}

func (e *PartialSourceError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Category, e.Err)
}

func (e *PartialSourceError) Unwrap() error { return e.Err }

// ExternalAdapterError reports a failed external contribution fetch.
type ExternalAdapterError struct {
	Username string
	Err      error
}

func (e *ExternalAdapterError) Error() string {
	return fmt.Sprintf("external contribution %s: %v", e.Username, e.Err)
}

func (e *ExternalAdapterError) Unwrap() error { return e.Err }

// PersistenceError reports a failed record save.
type PersistenceError struct {
	Entity EntityRef
	Err    error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("save %s: %v", e.Entity, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
