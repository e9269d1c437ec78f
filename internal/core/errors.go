package core

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the engine. Callers classify failures with
// errors.Is; everything that does not match one of these is treated as an
// unexpected store or network failure.
var (
	ErrUnauthorized    = errors.New("unauthorized")
	ErrNotFound        = errors.New("not found")
	ErrValidation      = errors.New("invalid input")
	ErrConflict        = errors.New("conflict")
	ErrRateUnavailable = errors.New("exchange rate unavailable")
	ErrCannotDelete    = errors.New("cannot delete")
)

// Validationf builds a validation error with a formatted reason.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrValidation)
}

// NotFoundf builds a not-found error with a formatted reason.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrNotFound)
}

// Conflictf builds a conflict error with a formatted reason.
func Conflictf(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrConflict)
}
