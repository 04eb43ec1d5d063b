package jwt_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingcore/pkg/jwt"
)

type tenantKey struct{}

func TestMiddleware(t *testing.T) {
	t.Parallel()
	svc, err := jwt.New([]byte("test-secret"), "", time.Hour)
	require.NoError(t, err)

	tenantID := uuid.New()
	token, err := svc.Issue(tenantID, "")
	require.NoError(t, err)

	var gotErr error
	handler := jwt.Middleware(svc,
		jwt.WithContextFunc(func(ctx context.Context, c *jwt.TenantClaims) context.Context {
			id, _ := c.TenantID()
			return context.WithValue(ctx, tenantKey{}, id)
		}),
		jwt.WithErrorHandler(func(w http.ResponseWriter, _ *http.Request, err error) {
			gotErr = err
			w.WriteHeader(http.StatusUnauthorized)
		}),
	)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := jwt.ClaimsFromContext(r.Context())
		require.True(t, ok)
		assert.Equal(t, tenantID.String(), claims.Subject)
		assert.Equal(t, tenantID, r.Context().Value(tenantKey{}))
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("valid bearer token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("missing token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.True(t, errors.Is(gotErr, jwt.ErrMissingToken))
	})

	t.Run("tampered token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token+"x")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.ErrorIs(t, gotErr, jwt.ErrInvalidToken)
	})
}

func TestMiddleware_DefaultErrorHandler(t *testing.T) {
	t.Parallel()
	svc, err := jwt.New([]byte("test-secret"), "", time.Hour)
	require.NoError(t, err)

	handler := jwt.Middleware(svc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler must not run")
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Basic abc")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBearerToken(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"Bearer abc":  "abc",
		"bearer abc":  "abc",
		"Basic abc":   "",
		"Bearer":      "",
		"":            "",
		"Bearer  abc": "abc",
	}
	for header, want := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		assert.Equal(t, want, jwt.BearerToken(req), header)
	}
}
