package jwt

import (
	"context"
	"net/http"
	"strings"
)

// ErrorHandler writes the response for a rejected request.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// ContextFunc enriches the request context once the token is accepted.
type ContextFunc func(ctx context.Context, claims *TenantClaims) context.Context

// MiddlewareOption configures Middleware.
type MiddlewareOption func(*middleware)

type middleware struct {
	svc     *Service
	onError ErrorHandler
	enrich  []ContextFunc
}

// WithErrorHandler replaces the default plain-text 401 response.
func WithErrorHandler(h ErrorHandler) MiddlewareOption {
	return func(m *middleware) {
		if h != nil {
			m.onError = h
		}
	}
}

// WithContextFunc runs fn after the claims are stored in the context.
func WithContextFunc(fn ContextFunc) MiddlewareOption {
	return func(m *middleware) {
		if fn != nil {
			m.enrich = append(m.enrich, fn)
		}
	}
}

// Middleware authenticates requests with an "Authorization: Bearer" token and
// stores the tenant claims in the request context.
func Middleware(svc *Service, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	if svc == nil {
		panic("jwt: Service is required")
	}
	m := &middleware{
		svc: svc,
		onError: func(w http.ResponseWriter, _ *http.Request, _ error) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		},
	}
	for _, opt := range opts {
		opt(m)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := m.svc.Parse(BearerToken(r))
			if err != nil {
				m.onError(w, r, err)
				return
			}
			ctx := WithClaims(r.Context(), claims)
			for _, fn := range m.enrich {
				ctx = fn(ctx, claims)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BearerToken returns the token of an "Authorization: Bearer <token>" header,
// or "" when the header is absent or malformed.
func BearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
