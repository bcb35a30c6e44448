// Package apperr holds the error values shared between the client and the
// character service.
package apperr

import (
	"errors"
	"strings"

	"github.com/starford/charforge/internal/models"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalid       = errors.New("invalid")
)

// ConflictError reports a failed save precondition. Current is the record
// the server holds.
type ConflictError struct {
	Current *models.CharacterSheet
}

func (e *ConflictError) Error() string {
	return "conflict: remote has a newer version"
}

// Is makes ConflictError match ErrConflict.
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// ValidationError carries the list of schema problems that rejected a record.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid character: " + strings.Join(e.Problems, "; ")
}

// Is makes ValidationError match ErrInvalid.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalid
}
