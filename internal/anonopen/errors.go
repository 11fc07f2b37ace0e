package anonopen

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument is returned for a missing or non-positive mailing ID.
	ErrInvalidArgument = errors.New("invalid mailing id")

	// ErrNotFound is returned when no queue entry can stand in for the
	// anonymous opener.
	ErrNotFound = errors.New("not found")
)

// DataStoreError wraps any failure returned by the Store.  The original
// error stays reachable through errors.Is / errors.As.
type DataStoreError struct {
	Op  string
	Err error
}

func (e *DataStoreError) Error() string {
	return fmt.Sprintf("anonopen: %s: %v", e.Op, e.Err)
}

func (e *DataStoreError) Unwrap() error { return e.Err }

func storeErr(op string, err error) error {
	return &DataStoreError{Op: op, Err: err}
}
