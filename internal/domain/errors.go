package domain

import (
	"errors"
	"fmt"
)

// NetworkError is a transient failure talking to the store. Retryable.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Temporary reports that the operation may succeed if retried.
func (e *NetworkError) Temporary() bool { return true }

// PermissionError is returned when the acting actor may not write a resource.
type PermissionError struct {
	Actor    string
	Resource string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("permission denied: %s may not modify %s", e.Actor, e.Resource)
}

// ValidationError reports an invalid field value.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// NotFoundError is returned when a row does not exist.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// ETagMismatchError is returned when an etag doesn't match
type ETagMismatchError struct {
	Expected int64
	Actual   int64
}

func (e *ETagMismatchError) Error() string {
	return fmt.Sprintf("etag mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// CheckETag validates an etag against the current value.
// An expected value of zero disables the check.
func CheckETag(expected, actual int64) error {
	if expected > 0 && expected != actual {
		return &ETagMismatchError{Expected: expected, Actual: actual}
	}
	return nil
}

// StaleReason says why a reference went stale.
type StaleReason string

const (
	StaleVanished StaleReason = "vanished"
	StaleVersion  StaleReason = "version"
)

// StaleReferenceError means the item changed or disappeared between read and write.
type StaleReferenceError struct {
	Kind   Kind
	ID     string
	Reason StaleReason
	Err    error
}

func (e *StaleReferenceError) Error() string {
	if e.Reason == StaleVanished {
		return fmt.Sprintf("%s %s no longer exists", e.Kind, e.ID)
	}
	return fmt.Sprintf("%s %s was changed elsewhere", e.Kind, e.ID)
}

func (e *StaleReferenceError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is, or wraps, a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
