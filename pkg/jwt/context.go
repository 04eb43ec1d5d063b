package jwt

import "context"

type claimsCtxKey struct{}

// WithClaims stores parsed claims in ctx.
func WithClaims(ctx context.Context, claims *TenantClaims) context.Context {
	return context.WithValue(ctx, claimsCtxKey{}, claims)
}

// ClaimsFromContext returns the claims stored by the middleware.
func ClaimsFromContext(ctx context.Context) (*TenantClaims, bool) {
	claims, ok := ctx.Value(claimsCtxKey{}).(*TenantClaims)
	return claims, ok && claims != nil
}
