package billing

import "errors"

var (
	ErrUnknownProvider  = errors.New("unknown billing provider")
	ErrUnknownStore     = errors.New("unknown billing store")
	ErrInvalidSchedule  = errors.New("invalid sweep schedule")
	ErrMissingSessionID = errors.New("session_id is required")
	ErrInvalidRequest   = errors.New("invalid request body")
	ErrUnauthenticated  = errors.New("authentication required")

	ErrCheckoutLimitDisabled = errors.New("checkout rate limit is not available")
)
