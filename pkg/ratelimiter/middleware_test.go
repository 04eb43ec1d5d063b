package ratelimiter_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingcore/pkg/ratelimiter"
)

func headerKey(r *http.Request) string {
	return r.Header.Get("X-Tenant")
}

func TestMiddleware(t *testing.T) {
	t.Parallel()
	store := ratelimiter.NewMemoryStore(ratelimiter.WithCleanupInterval(0))
	t.Cleanup(store.Close)
	b, err := ratelimiter.NewBucket(store, ratelimiter.Config{
		Capacity:       2,
		RefillRate:     1,
		RefillInterval: time.Minute,
	})
	require.NoError(t, err)

	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	h := ratelimiter.Middleware(b, headerKey)(ok)

	call := func(tenant string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/checkout", nil)
		if tenant != "" {
			req.Header.Set("X-Tenant", tenant)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	rec := call("t1")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))

	assert.Equal(t, http.StatusNoContent, call("t1").Code)

	rec = call("t1")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	for range 5 {
		assert.Equal(t, http.StatusNoContent, call("").Code, "empty key bypasses the limiter")
	}
}

func TestMiddleware_ErrorHandler(t *testing.T) {
	t.Parallel()
	store := ratelimiter.NewMemoryStore(ratelimiter.WithCleanupInterval(0))
	t.Cleanup(store.Close)
	b, err := ratelimiter.NewBucket(store, ratelimiter.Config{
		Capacity:       1,
		RefillRate:     1,
		RefillInterval: time.Hour,
	})
	require.NoError(t, err)

	var got error
	h := ratelimiter.Middleware(b, headerKey, ratelimiter.WithErrorHandler(
		func(w http.ResponseWriter, _ *http.Request, err error) {
			got = err
			w.WriteHeader(http.StatusTeapot)
		},
	))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	for range 2 {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("X-Tenant", "t")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if got != nil {
			assert.Equal(t, http.StatusTeapot, rec.Code)
		}
	}
	assert.True(t, errors.Is(got, ratelimiter.ErrRateLimited))

	assert.Panics(t, func() { ratelimiter.Middleware(nil, headerKey) })
}
