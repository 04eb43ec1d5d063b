package billing

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/dmitrymomot/billingcore/pkg/logger"
	"github.com/dmitrymomot/billingcore/pkg/subscription"
)

// KV is the key-value store behind the session cache.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
}

// SessionCache keeps verified paid checkout sessions in Redis so polling
// after the redirect is answered without a provider call. Failures are logged
// and treated as misses.
type SessionCache struct {
	kv  KV
	ttl time.Duration
	log *slog.Logger
}

var _ subscription.SessionCache = (*SessionCache)(nil)

// NewSessionCache creates a cache with entries expiring after ttl.
func NewSessionCache(kv KV, ttl time.Duration, log *slog.Logger) *SessionCache {
	if kv == nil {
		panic("billing: KV is required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &SessionCache{kv: kv, ttl: ttl, log: log}
}

func sessionKey(id string) string { return "verify:" + id }

func (c *SessionCache) Get(ctx context.Context, sessionID string) (*subscription.VerifyResult, bool) {
	raw, err := c.kv.Get(ctx, sessionKey(sessionID))
	if err != nil {
		c.log.WarnContext(ctx, "Session cache read failed", logger.SessionID(sessionID), logger.Error(err))
		return nil, false
	}
	if raw == nil {
		return nil, false
	}
	var res subscription.VerifyResult
	if err := json.Unmarshal(raw, &res); err != nil {
		c.log.WarnContext(ctx, "Session cache entry is corrupt", logger.SessionID(sessionID), logger.Error(err))
		return nil, false
	}
	return &res, true
}

func (c *SessionCache) Set(ctx context.Context, sessionID string, res *subscription.VerifyResult) {
	if res == nil {
		return
	}
	raw, err := json.Marshal(res)
	if err != nil {
		c.log.WarnContext(ctx, "Session cache encode failed", logger.SessionID(sessionID), logger.Error(err))
		return
	}
	if err := c.kv.Set(ctx, sessionKey(sessionID), raw, c.ttl); err != nil {
		c.log.WarnContext(ctx, "Session cache write failed", logger.SessionID(sessionID), logger.Error(err))
	}
}
