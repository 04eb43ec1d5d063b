package requestid

import (
	"context"
	"log/slog"

	"github.com/dmitrymomot/billingcore/pkg/logger"
)

// LoggerExtractor adds request_id to every log record whose context carries one.
func LoggerExtractor() logger.ContextExtractor {
	return func(ctx context.Context) (slog.Attr, bool) {
		id := FromContext(ctx)
		if id == "" {
			return slog.Attr{}, false
		}
		return logger.RequestID(id), true
	}
}
