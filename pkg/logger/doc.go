// Package logger builds slog loggers with environment defaults, consistent
// attribute names and context-aware attribute injection.
//
// New wraps a text or JSON handler in LogHandlerDecorator, which runs the
// registered ContextExtractor callbacks on every record. Request and tenant
// ids reach the log line without being passed to each call.
//
// # Usage
//
//	log := logger.New(
//		logger.WithEnvironment("production", "billingd"),
//		logger.WithContextExtractors(requestid.LoggerExtractor()),
//	)
//	log.InfoContext(ctx, "Checkout session created",
//		logger.TenantID(tenantID),
//		logger.PlanID("pro"),
//	)
//
// Attribute helpers such as Error, CustomerID and SessionID return an empty
// attribute for nil or empty input, so callers do not need to check first.
package logger
