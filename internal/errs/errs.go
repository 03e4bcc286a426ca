// Package errs defines the error taxonomy shared by the cache, the index
// engines and the API: validation failures, upstream fetch failures and
// durable store failures.
package errs

import (
	"errors"
	"fmt"

	"github.com/seenimoa/moexidx/pkg/models"
)

// ErrNotFound is returned when a requested index or record does not exist.
var ErrNotFound = errors.New("not found")

// ValidationError reports a caller mistake. It is never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid request: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Invalid builds a ValidationError.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// FetchError reports a failed upstream fetch for one series range. An
// empty upstream result is not a FetchError.
type FetchError struct {
	Source   string
	SeriesID string
	Range    models.DateRange
	Err      error
}

func (e *FetchError) Error() string {
	if e.Range.From.IsZero() && e.Range.Till.IsZero() {
		return fmt.Sprintf("fetch %s %s: %v", e.Source, e.SeriesID, e.Err)
	}
	return fmt.Sprintf("fetch %s %s [%s]: %v", e.Source, e.SeriesID, e.Range, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// StoreError reports a durable store failure.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return fmt.Sprintf("store %s: %v", e.Op, e.Err) }

func (e *StoreError) Unwrap() error { return e.Err }

// Store wraps err as a StoreError, passing nil and ErrNotFound through.
func Store(op string, err error) error {
	if err == nil || errors.Is(err, ErrNotFound) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

// IsValidation reports whether err is or wraps a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsFetch reports whether err is or wraps a FetchError.
func IsFetch(err error) bool {
	var f *FetchError
	return errors.As(err, &f)
}

// IsStore reports whether err is or wraps a StoreError.
func IsStore(err error) bool {
	var s *StoreError
	return errors.As(err, &s)
}
