package domain

import "errors"

// Error kinds shared by every service. Specific service errors wrap exactly
// one of these so transports can map them without knowing the details.
var (
	ErrNotFound              = errors.New("not found")
	ErrForbidden             = errors.New("forbidden")
	ErrInvalidState          = errors.New("invalid state")
	ErrInsufficientInventory = errors.New("insufficient inventory")
	ErrInvalidInput          = errors.New("invalid input")
	ErrConflict              = errors.New("conflict")
)
