package ratelimiter

import "errors"

var (
	ErrInvalidConfig     = errors.New("ratelimiter: invalid configuration")
	ErrInvalidTokenCount = errors.New("ratelimiter: invalid token count")
	ErrStoreUnavailable  = errors.New("ratelimiter: store unavailable")

	// ErrRateLimited is passed to the middleware's denied handler.
	ErrRateLimited = errors.New("ratelimiter: too many requests")
)
