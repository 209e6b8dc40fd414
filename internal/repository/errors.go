package repository

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrInsufficientSeats = errors.New("insufficient seats")
	ErrClassNotOffered   = errors.New("class not offered on flight")
	ErrStaleStatus       = errors.New("status changed concurrently")
)
