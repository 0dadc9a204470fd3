package repository

import "errors"

// Sentinel kinds for store input errors. Lifecycle errors live in model.
var (
	ErrInvalidLimit = errors.New("invalid list limit")
	ErrInvalidEntry = errors.New("invalid entry")
	ErrInvalidLine  = errors.New("invalid line")
)
