package repository

import "errors"

// Sentinel kinds for storage errors.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("state conflict")
	ErrNotOwned     = errors.New("item not owned")
	ErrStorage      = errors.New("storage error")
	ErrInvalidLimit = errors.New("invalid limit")
)
