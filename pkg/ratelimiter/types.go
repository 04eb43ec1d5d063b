package ratelimiter

import "time"

// Result is the outcome of a single bucket check.
type Result struct {
	Limit     int       // bucket capacity
	Remaining int       // negative when the request was denied
	ResetAt   time.Time // next refill
}

// Allowed reports whether the request fit in the bucket.
func (r *Result) Allowed() bool {
	return r.Remaining >= 0
}

// RetryAfter is the wait until the next refill, or 0 when allowed.
func (r *Result) RetryAfter() time.Duration {
	if r.Allowed() {
		return 0
	}
	return max(time.Until(r.ResetAt), 0)
}

// Config is the token bucket shape.
type Config struct {
	Capacity       int           // burst size
	RefillRate     int           // tokens added per interval
	RefillInterval time.Duration
}

func (c Config) validate() error {
	switch {
	case c.Capacity <= 0:
		return errorf(ErrInvalidConfig, "capacity must be positive, got %d", c.Capacity)
	case c.RefillRate <= 0:
		return errorf(ErrInvalidConfig, "refill rate must be positive, got %d", c.RefillRate)
	case c.RefillInterval <= 0:
		return errorf(ErrInvalidConfig, "refill interval must be positive, got %v", c.RefillInterval)
	}
	return nil
}

// refill returns the token count after the intervals elapsed since
// lastRefill, and the new refill timestamp.
func (c Config) refill(tokens int, lastRefill, now time.Time) (int, time.Time) {
	elapsed := now.Sub(lastRefill)
	if elapsed < c.RefillInterval {
		return tokens, lastRefill
	}
	// Capping the interval count keeps the multiplication from overflowing
	// for buckets idle for a long time.
	intervals := min(int64(elapsed/c.RefillInterval), int64(c.Capacity/c.RefillRate+1))
	return min(tokens+int(intervals)*c.RefillRate, c.Capacity), now
}
