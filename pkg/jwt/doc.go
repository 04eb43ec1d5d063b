// Package jwt issues and validates HS256 tenant tokens and provides bearer
// authentication middleware.
//
// The token subject is the tenant id. Middleware stores the parsed
// TenantClaims in the request context; WithContextFunc lets callers bind
// further values, such as the tenant id used by the billing core:
//
//	auth := jwt.Middleware(tokens,
//		jwt.WithContextFunc(func(ctx context.Context, c *jwt.TenantClaims) context.Context {
//			id, _ := c.TenantID()
//			return subscription.WithTenantID(ctx, id)
//		}),
//	)
package jwt
