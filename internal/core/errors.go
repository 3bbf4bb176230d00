// SPDX-License-Identifier: MIT

package core

import (
	"errors"
	"fmt"
)

// Sentinel errors forming the service taxonomy. Handlers map these to HTTP
// statuses; background loops log and continue.
var (
	// ErrNotFound reports an absent action, action group or visitor.
	ErrNotFound = errors.New("not found")
	// ErrBadRequest reports a missing or malformed required field.
	ErrBadRequest = errors.New("bad request")
	// ErrInvalidTicket reports an expired, malformed or revoked ticket.
	ErrInvalidTicket = errors.New("invalid ticket")
	// ErrNotModified is a control signal: the caller's config version is
	// already current. Not a failure.
	ErrNotModified = errors.New("not modified")
)

// StorageError wraps a transient failure talking to the shared store. It is
// the only error class logged at error level on the request path.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// WrapStorage annotates err as a storage failure for operation op.
// Returns nil when err is nil.
func WrapStorage(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// IsStorage reports whether err is (or wraps) a StorageError.
func IsStorage(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
