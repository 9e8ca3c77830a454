package domain

import (
	"errors"
	"fmt"
)

// ErrSyncInProgress is returned when a sync for the same tenant is already running
var ErrSyncInProgress = errors.New("sync already in progress for tenant")

// UpstreamFetchError is returned when the external source fails, times out or answers non-2xx.
// Status is 0 when no HTTP response was received.
type UpstreamFetchError struct {
	Resource ResourceType
	Status   int
	Err      error
}

func (e *UpstreamFetchError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("upstream fetch of %s failed with status %d: %v", e.Resource, e.Status, e.Err)
	}
	return fmt.Sprintf("upstream fetch of %s failed: %v", e.Resource, e.Err)
}

func (e *UpstreamFetchError) Unwrap() error {
	return e.Err
}

// NotFoundError is returned when a referenced entity does not exist
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

// ValidationError describes a malformed ingestion record or API request
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// StoreError wraps any persistence failure
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s failed: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError wraps err unless it already is a StoreError
func NewStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

// IsNotFound reports whether err is a NotFoundError
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsValidation reports whether err is a ValidationError
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
