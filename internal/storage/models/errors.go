package models

import "errors"

// Sentinel errors shared across layers. Handlers map these to HTTP status
// codes: ErrInvalidInput -> 400, ErrNotFound -> 404, everything else -> 500.
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrUpstream     = errors.New("upstream service failed")
)
