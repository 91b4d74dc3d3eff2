package entities

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorCategories(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"malformed", Malformed("strength", "out of range"), ErrMalformedRecord},
		{"validation", &ValidationError{Violations: []Violation{{Rule: RulePreventCycles}}}, ErrValidationFailure},
		{"conflict", &ConflictError{Expected: 2}, ErrConflict},
		{"storage", &StorageError{Op: "insert", Err: errors.New("locked")}, ErrStorageUnavailable},
		{"tenant", TenantMismatch("org-1", "org-2"), ErrTenantMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("outer: %w", tt.err)
			assert.ErrorIs(t, wrapped, tt.want)
			for _, other := range []error{ErrMalformedRecord, ErrValidationFailure, ErrConflict, ErrStorageUnavailable, ErrTenantMismatch, ErrNotFound} {
				if other != tt.want {
					assert.NotErrorIs(t, wrapped, other)
				}
			}
		})
	}
}

func TestConflictError_Message(t *testing.T) {
	err := &ConflictError{Expected: 1, Current: &Relationship{Version: 3}}
	assert.Equal(t, "version conflict: expected version 1, current version 3", err.Error())
}

func TestStorageError_Unwrap(t *testing.T) {
	cause := errors.New("database is locked")
	err := &StorageError{Op: "commit", Err: cause}

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "storage unavailable: commit: database is locked", err.Error())
}
