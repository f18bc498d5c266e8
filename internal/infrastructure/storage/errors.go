package storage

import (
	"errors"
	"fmt"
)

// Sentinel errors returned (wrapped in *Error) by Store operations.
var (
	// ErrUnknownCollection is a configuration error: the collection is not part
	// of the set the store was built with.
	ErrUnknownCollection = errors.New("unknown collection")

	// ErrNotFound means no record carries the requested id.
	ErrNotFound = errors.New("record not found")

	// ErrStorage means the backing storage could not be read or written.
	ErrStorage = errors.New("storage unavailable")

	// ErrCorrupt means the stored document is not a JSON array of objects.
	ErrCorrupt = fmt.Errorf("%w: corrupt collection data", ErrStorage)

	// ErrInvalidRecord means a record cannot be stored, e.g. it has no id.
	ErrInvalidRecord = errors.New("invalid record")
)

// Error describes a failed store operation.
type Error struct {
	Op         string
	Collection string
	ID         string
	Err        error
}

func (e *Error) Error() string {
	msg := "storage: " + e.Op
	if e.Collection != "" {
		msg += " " + e.Collection
	}
	if e.ID != "" {
		msg += "/" + e.ID
	}
	return msg + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

func opError(op, collection, id string, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	return &Error{Op: op, Collection: collection, ID: id, Err: err}
}

// storageError tags a backend failure so that errors.Is(err, ErrStorage) holds
// while keeping the underlying cause in the message and chain.
func storageError(err error) error {
	if err == nil || errors.Is(err, ErrStorage) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStorage, err)
}

// IsNotFound reports whether err is a missing-record error.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsUnavailable reports whether err is a storage I/O or corruption error.
func IsUnavailable(err error) bool { return errors.Is(err, ErrStorage) }
