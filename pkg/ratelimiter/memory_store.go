package ratelimiter

import (
	"context"
	"sync"
	"time"
)

type memBucket struct {
	tokens     int
	lastRefill time.Time
	lastSeen   time.Time
}

// MemoryStore keeps buckets in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string]*memBucket

	now       func() time.Time
	sweepEach time.Duration
	idleTTL   time.Duration
	stop      chan struct{}
	stopOnce  sync.Once
}

// MemoryStoreOption configures a MemoryStore.
type MemoryStoreOption func(*MemoryStore)

// WithCleanupInterval sets how often idle buckets are dropped. Zero disables
// the background sweep.
func WithCleanupInterval(d time.Duration) MemoryStoreOption {
	return func(s *MemoryStore) { s.sweepEach = d }
}

// WithIdleTTL sets how long an untouched bucket is kept. Default is one hour.
func WithIdleTTL(d time.Duration) MemoryStoreOption {
	return func(s *MemoryStore) {
		if d > 0 {
			s.idleTTL = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) MemoryStoreOption {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewMemoryStore creates a store. Call Close to stop the background sweep.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		buckets:   make(map[string]*memBucket),
		now:       time.Now,
		sweepEach: 5 * time.Minute,
		idleTTL:   time.Hour,
		stop:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.sweepEach > 0 {
		go s.sweepLoop()
	}
	return s
}

// ConsumeTokens implements Store. A short bucket is left untouched, so
// denied requests do not push the next allowed one further out.
func (s *MemoryStore) ConsumeTokens(_ context.Context, key string, tokens int, cfg Config) (int, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	b, ok := s.buckets[key]
	if !ok {
		b = &memBucket{tokens: cfg.Capacity, lastRefill: now}
		s.buckets[key] = b
	}
	b.tokens, b.lastRefill = cfg.refill(b.tokens, b.lastRefill, now)
	b.lastSeen = now

	resetAt := b.lastRefill.Add(cfg.RefillInterval)
	if tokens > b.tokens {
		return b.tokens - tokens, resetAt, nil
	}
	b.tokens -= tokens
	return b.tokens, resetAt, nil
}

// Reset implements Store.
func (s *MemoryStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.buckets, key)
	s.mu.Unlock()
	return nil
}

// Close stops the background sweep. Safe to call more than once.
func (s *MemoryStore) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *MemoryStore) sweepLoop() {
	ticker := time.NewTicker(s.sweepEach)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.dropIdle()
		case <-s.stop:
			return
		}
	}
}

func (s *MemoryStore) dropIdle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-s.idleTTL)
	for key, b := range s.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(s.buckets, key)
		}
	}
}
