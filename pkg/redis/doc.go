// Package redis connects to Redis with retries and offers a small prefixed
// key-value Storage with expiring entries and best-effort leases.
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	store := redis.NewStorage(client, cfg.KeyPrefix)
//	token, ok, err := store.TryLock(ctx, "quota-sweep", 10*time.Minute)
//	if err == nil && ok {
//		defer store.Unlock(ctx, "quota-sweep", token)
//	}
//
// Healthcheck returns a readiness check for the HTTP server.
package redis
