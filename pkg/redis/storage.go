package redis

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Storage is a prefixed key-value store with expiry on top of go-redis.
type Storage struct {
	db     redis.UniversalClient
	prefix string
}

// NewStorage wraps client. Every key is stored under prefix.
func NewStorage(client redis.UniversalClient, prefix string) *Storage {
	return &Storage{db: client, prefix: prefix}
}

// Get returns nil, nil for a missing key.
func (s *Storage) Get(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	val, err := s.db.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return val, err
}

// Set stores val under key. A zero ttl means no expiration.
func (s *Storage) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	if key == "" {
		return ErrEmptyKey
	}
	return s.db.Set(ctx, s.prefix+key, val, ttl).Err()
}

// Delete removes key. Missing keys are not an error.
func (s *Storage) Delete(ctx context.Context, key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	return s.db.Del(ctx, s.prefix+key).Err()
}

// unlockScript deletes the lease only while it still carries the holder's token.
var unlockScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// TryLock acquires a lease on key for ttl and returns the token that releases
// it. ok is false when another holder owns the lease. The lease is not
// renewed; keep ttl above the work's duration.
func (s *Storage) TryLock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error) {
	if key == "" {
		return "", false, ErrEmptyKey
	}
	token = uuid.NewString()
	ok, err = s.db.SetNX(ctx, s.prefix+"lock:"+key, token, ttl).Result()
	if err != nil || !ok {
		return "", false, err
	}
	return token, true, nil
}

// Unlock releases a lease taken with TryLock. A lease that expired and was
// taken by another holder is left alone.
func (s *Storage) Unlock(ctx context.Context, key, token string) error {
	if key == "" {
		return ErrEmptyKey
	}
	return unlockScript.Run(ctx, s.db, []string{s.prefix + "lock:" + key}, token).Err()
}
