package search

import (
	"fmt"

	"github.com/kirinyoku/airbook-go/internal/domain"
)

var (
	ErrFlightNotFound  = fmt.Errorf("flight %w", domain.ErrNotFound)
	ErrInvalidCriteria = fmt.Errorf("search criteria: %w", domain.ErrInvalidInput)
)
