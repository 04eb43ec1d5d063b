package subscription

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billingcore/pkg/logger"
)

type tenantIDCtxKey struct{}

// WithTenantID stores the authenticated tenant in the context.
func WithTenantID(ctx context.Context, tenantID uuid.UUID) context.Context {
	return context.WithValue(ctx, tenantIDCtxKey{}, tenantID)
}

// TenantIDFromContext returns the tenant stored by WithTenantID.
func TenantIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(tenantIDCtxKey{}).(uuid.UUID)
	return id, ok && id != uuid.Nil
}

// LoggerExtractor adds tenant_id to log records when the context carries one.
func LoggerExtractor() logger.ContextExtractor {
	return func(ctx context.Context) (slog.Attr, bool) {
		if id, ok := TenantIDFromContext(ctx); ok {
			return logger.TenantID(id.String()), true
		}
		return slog.Attr{}, false
	}
}
