package entities

import (
	"errors"
	"fmt"
	"strings"
)

// Error categories. Every error returned by the engine matches exactly one
// of these through errors.Is.
var (
	ErrMalformedRecord    = errors.New("malformed record")
	ErrValidationFailure  = errors.New("validation failure")
	ErrConflict           = errors.New("version conflict")
	ErrNotFound           = errors.New("relationship not found")
	ErrTenantMismatch     = errors.New("tenant mismatch")
	ErrDepthExceeded      = errors.New("depth exceeded")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrScoringTimeout     = errors.New("scoring timed out")
)

// MalformedRecordError reports a structurally invalid field.
type MalformedRecordError struct {
	Field  string
	Reason string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("malformed record: %s: %s", e.Field, e.Reason)
}

// Is matches ErrMalformedRecord.
func (e *MalformedRecordError) Is(target error) bool { return target == ErrMalformedRecord }

// Malformed builds a MalformedRecordError.
func Malformed(field, format string, args ...any) error {
	return &MalformedRecordError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// ValidationError carries the violated rules of a rejected write.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.Rule + ": " + v.Message
	}
	return "validation failure: " + strings.Join(parts, "; ")
}

// Is matches ErrValidationFailure, and ErrDepthExceeded when the depth
// budget of a cycle check ran out.
func (e *ValidationError) Is(target error) bool {
	switch target {
	case ErrValidationFailure:
		return true
	case ErrDepthExceeded:
		for _, v := range e.Violations {
			if v.Rule == RuleMaxDepth {
				return true
			}
		}
	}
	return false
}

// ConflictError is returned when an update presents a stale version.
// Current is the stored record at the time of the check.
type ConflictError struct {
	Expected int64
	Current  *Relationship
}

func (e *ConflictError) Error() string {
	if e.Current == nil {
		return fmt.Sprintf("version conflict: expected version %d", e.Expected)
	}
	return fmt.Sprintf("version conflict: expected version %d, current version %d", e.Expected, e.Current.Version)
}

// Is matches ErrConflict.
func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// StorageError wraps a backing store failure.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage unavailable: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Is matches ErrStorageUnavailable.
func (e *StorageError) Is(target error) bool { return target == ErrStorageUnavailable }

// TenantMismatch reports a record submitted under the wrong organization.
func TenantMismatch(requested, submitted string) error {
	return fmt.Errorf("%w: record belongs to %q, request is scoped to %q", ErrTenantMismatch, submitted, requested)
}
