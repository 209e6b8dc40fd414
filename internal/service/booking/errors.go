package booking

import (
	"errors"
	"fmt"
	"time"

	"github.com/kirinyoku/airbook-go/internal/domain"
)

var (
	ErrFlightNotFound    = fmt.Errorf("flight %w", domain.ErrNotFound)
	ErrOrderNotFound     = fmt.Errorf("order %w", domain.ErrNotFound)
	ErrPassengerNotFound = fmt.Errorf("passenger %w", domain.ErrNotFound)

	ErrForbidden = fmt.Errorf("%w: order belongs to another user", domain.ErrForbidden)

	ErrFlightNotBookable = fmt.Errorf("%w: flight is not open for booking", domain.ErrInvalidState)
	ErrAlreadyPaid       = fmt.Errorf("%w: order already paid", domain.ErrInvalidState)
	ErrOrderCancelled    = fmt.Errorf("%w: order is cancelled", domain.ErrInvalidState)
	ErrOrderNotConfirmed = fmt.Errorf("%w: order is not confirmed", domain.ErrInvalidState)
	ErrNotPaid           = fmt.Errorf("%w: order is not paid", domain.ErrInvalidState)

	ErrSeatTaken = fmt.Errorf("%w: seat already taken", domain.ErrConflict)

	ErrInvalidClass = fmt.Errorf("%w: cabin class not offered", domain.ErrInvalidInput)
	ErrInvalidSeat  = fmt.Errorf("%w: malformed seat number", domain.ErrInvalidInput)

	ErrRateLimited = errors.New("too many booking attempts")
)

// InsufficientSeatsError names the class that could not cover the request.
type InsufficientSeatsError struct {
	FlightID  int64
	Class     domain.CabinClass
	Requested int
}

func (e *InsufficientSeatsError) Error() string {
	return fmt.Sprintf("insufficient seats: %d %s seats requested on flight %d", e.Requested, e.Class, e.FlightID)
}

func (e *InsufficientSeatsError) Unwrap() error { return domain.ErrInsufficientInventory }

type InvalidClassError struct {
	Class string
}

func (e *InvalidClassError) Error() string {
	return fmt.Sprintf("%s: %q", ErrInvalidClass, e.Class)
}

func (e *InvalidClassError) Unwrap() error { return ErrInvalidClass }

// TransitionError reports a status move the transition table forbids.
type TransitionError struct {
	From, To string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid state: cannot move order from %s to %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return domain.ErrInvalidState }

type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return "invalid input: " + e.Err.Error()
}

func (e *ValidationError) Unwrap() []error { return []error{domain.ErrInvalidInput, e.Err} }

type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("%s, retry in %s", ErrRateLimited, e.RetryAfter)
}

func (e *RateLimitedError) Unwrap() error { return ErrRateLimited }
