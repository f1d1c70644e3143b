// Package vfderrors defines the error taxonomy consumed and produced by
// the VFD layer (spec §7): BudgetExhausted, InvalidPath, InvalidHandle,
// BackendIO, ReopenFailed and PositionMismatch. Each is a distinct type
// so callers can classify with errors.As instead of string matching.
// BackendIO and ReopenFailed wrap their cause with
// github.com/pkg/errors.WithStack so a stack trace survives to the log
// line it's eventually printed on; BudgetExhausted keeps its cause
// unwrapped, and the other three carry no cause.
package vfderrors

import (
	"fmt"

	"github.com/pkg/errors"
)

// BudgetExhaustedError is returned when the FD budget manager cannot
// free a descriptor even after one LRU eviction pass, or when the
// allocated-desc table is full.
type BudgetExhaustedError struct {
	Op    string
	cause error
}

func (e *BudgetExhaustedError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: file descriptor budget exhausted: %v", e.Op, e.cause)
	}
	return fmt.Sprintf("%s: file descriptor budget exhausted", e.Op)
}

// Unwrap returns the wrapped error, if any.
func (e *BudgetExhaustedError) Unwrap() error { return e.cause }

// NewBudgetExhausted builds a BudgetExhaustedError for operation op.
func NewBudgetExhausted(op string, cause error) error {
	return &BudgetExhaustedError{Op: op, cause: cause}
}

// InvalidPathError reports a malformed remote URI (spec §4.1).
type InvalidPathError struct {
	Path   string
	Reason string
}

func (e *InvalidPathError) Error() string {
	return fmt.Sprintf("invalid path %q: %s", e.Path, e.Reason)
}

// NewInvalidPath builds an InvalidPathError.
func NewInvalidPath(path, reason string) error {
	return &InvalidPathError{Path: path, Reason: reason}
}

// InvalidHandleError reports a File index out of range or referring to
// a free slot. Per spec §7 this is a programmer error.
type InvalidHandleError struct {
	Handle int
}

func (e *InvalidHandleError) Error() string {
	return fmt.Sprintf("invalid VFD handle %d", e.Handle)
}

// NewInvalidHandle builds an InvalidHandleError.
func NewInvalidHandle(handle int) error {
	return &InvalidHandleError{Handle: handle}
}

// BackendIOError wraps an error surfaced by a back-end adapter (ENOSPC,
// EIO, a network error, ...). Per spec §7 the slot's seek position is
// always reset to UNKNOWN when this error is produced.
type BackendIOError struct {
	Op    string
	Path  string
	cause error
}

func (e *BackendIOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.cause)
}

// Unwrap returns the wrapped cause.
func (e *BackendIOError) Unwrap() error { return e.cause }

// NewBackendIO wraps cause as a BackendIOError for op on path.
func NewBackendIO(op, path string, cause error) error {
	if cause == nil {
		return nil
	}
	return &BackendIOError{Op: op, Path: path, cause: errors.WithStack(cause)}
}

// ReopenFailedError reports that file_access (spec §4.2) could not
// physically reopen a virtually-open slot after eviction.
type ReopenFailedError struct {
	Path        string
	CorrelateID string
	cause       error
}

func (e *ReopenFailedError) Error() string {
	return fmt.Sprintf("reopen failed for %s (trace %s): %v", e.Path, e.CorrelateID, e.cause)
}

// Unwrap returns the wrapped cause.
func (e *ReopenFailedError) Unwrap() error { return e.cause }

// NewReopenFailed builds a ReopenFailedError.
func NewReopenFailed(path, correlateID string, cause error) error {
	return &ReopenFailedError{Path: path, CorrelateID: correlateID, cause: errors.WithStack(cause)}
}

// PositionMismatchError reports that a post-reopen or post-truncate
// `tell` disagreed with the expected logical position (spec §4.3, §7).
type PositionMismatchError struct {
	Path     string
	Expected int64
	Observed int64
}

func (e *PositionMismatchError) Error() string {
	return fmt.Sprintf("position mismatch on %s: expected %d, observed %d (EIO)", e.Path, e.Expected, e.Observed)
}

// NewPositionMismatch builds a PositionMismatchError.
func NewPositionMismatch(path string, expected, observed int64) error {
	return &PositionMismatchError{Path: path, Expected: expected, Observed: observed}
}

// IsBudgetExhausted reports whether err is (or wraps) a BudgetExhaustedError.
func IsBudgetExhausted(err error) bool {
	var e *BudgetExhaustedError
	return errors.As(err, &e)
}

// IsBackendIO reports whether err is (or wraps) a BackendIOError.
func IsBackendIO(err error) bool {
	var e *BackendIOError
	return errors.As(err, &e)
}

// IsReopenFailed reports whether err is (or wraps) a ReopenFailedError.
func IsReopenFailed(err error) bool {
	var e *ReopenFailedError
	return errors.As(err, &e)
}

// IsPositionMismatch reports whether err is (or wraps) a PositionMismatchError.
func IsPositionMismatch(err error) bool {
	var e *PositionMismatchError
	return errors.As(err, &e)
}

// IsInvalidHandle reports whether err is (or wraps) an InvalidHandleError.
func IsInvalidHandle(err error) bool {
	var e *InvalidHandleError
	return errors.As(err, &e)
}
