package admin

import (
	"fmt"

	"github.com/kirinyoku/airbook-go/internal/domain"
)

var (
	ErrRouteConflict      = fmt.Errorf("%w: route already exists", domain.ErrConflict)
	ErrScheduleRefMissing = fmt.Errorf("route or aircraft %w", domain.ErrNotFound)
	ErrCabinNotFound      = fmt.Errorf("cabin %w", domain.ErrNotFound)
)

type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return "invalid input: " + e.Err.Error()
}

func (e *ValidationError) Unwrap() []error {
	return []error{domain.ErrInvalidInput, e.Err}
}
