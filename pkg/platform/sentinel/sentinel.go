package sentinel

import "errors"

// Sentinel errors for storage facts. Stores return these (optionally wrapped)
// and services translate them into domain errors:
//   - ErrNotFound: no row for the requested pet code, reservation or lockout key
//   - ErrConflict: unique constraint hit (pet code, reservation code, idempotency key)
//   - ErrExpired: a time-bounded record passed its deadline
//   - ErrAlreadyUsed: a one-time record (OTP, idempotency key) was consumed
//   - ErrInvalidState: record exists but cannot take the requested change
//   - ErrUnavailable: backing service temporarily unavailable
//
// Validation failures use pkg/domain-errors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrExpired      = errors.New("expired")
	ErrAlreadyUsed  = errors.New("already used")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
