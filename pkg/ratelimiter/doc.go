// Package ratelimiter throttles per-key actions with a token bucket.
//
// The billing API uses it to cap how often a tenant may open checkout
// sessions, since each one costs a provider API call. A bucket holds up to
// Capacity tokens and regains RefillRate tokens every RefillInterval.
//
// Two stores are provided. MemoryStore keeps buckets in process and suits a
// single instance. RedisStore runs the refill and consume step as one Lua
// script, so every instance sharing the Redis database sees the same bucket.
//
// # Usage
//
//	bucket, err := ratelimiter.NewBucket(ratelimiter.NewRedisStore(client, "billing:"), ratelimiter.Config{
//		Capacity:       5,
//		RefillRate:     1,
//		RefillInterval: time.Minute,
//	})
//	if err != nil {
//		return err
//	}
//
//	r.With(ratelimiter.Middleware(bucket, tenantKey)).Post("/checkout", h.CreateCheckout)
//
// Denied requests get 429 with Retry-After. Every response carries the
// X-RateLimit-Limit, X-RateLimit-Remaining and X-RateLimit-Reset headers.
package ratelimiter
