package repository

import (
	"errors"
	"fmt"
)

// DuplicateKeyError is returned by Insert when a user with the same ID is
// already stored.
type DuplicateKeyError struct {
	ID int64
}

func (e *DuplicateKeyError) Error() string {
	return "a user with this ID already exists"
}

// StorageError wraps any other database failure. Its message is for logs
// only and must never reach a client.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsDuplicateKey reports whether err is, or wraps, a *DuplicateKeyError.
func IsDuplicateKey(err error) bool {
	var target *DuplicateKeyError
	return errors.As(err, &target)
}

// IsStorageError reports whether err is, or wraps, a *StorageError.
func IsStorageError(err error) bool {
	var target *StorageError
	return errors.As(err, &target)
}
