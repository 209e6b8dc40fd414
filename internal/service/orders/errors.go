package orders

import (
	"fmt"

	"github.com/kirinyoku/airbook-go/internal/domain"
)

var (
	ErrOrderNotFound = fmt.Errorf("order %w", domain.ErrNotFound)
	ErrForbidden     = fmt.Errorf("%w: order belongs to another user", domain.ErrForbidden)
	ErrNotCheckedIn  = fmt.Errorf("%w: order is not checked in", domain.ErrInvalidState)
	ErrInvalidStatus = fmt.Errorf("%w: unknown trip status", domain.ErrInvalidInput)
)
