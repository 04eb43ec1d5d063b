// Package billing runs the subscription billing core as a service: Postgres
// profile and resource stores, a Redis cache for verified checkout sessions,
// Prometheus metrics, a cron enforcement sweep and the chi HTTP API.
//
// Routes:
//
//	POST /api/checkout                      start a hosted checkout (bearer)
//	GET  /api/checkout/verify?session_id=   poll a checkout after redirect (bearer)
//	POST /api/webhooks/billing              provider webhook (signature)
//	POST /api/billing/plan                  request a downgrade or cancellation (bearer)
//	GET  /api/billing/usage                 resource usage against the plan (bearer)
//	GET  /api/billing/fee?amount=           platform fee for a sale (bearer)
//	GET  /api/billing/profile               current billing profile (bearer)
//	GET  /api/plans                         public plan catalog
//	GET  /healthz, /readyz, /metrics
//
// Errors are returned as {"error":{"code":"...","message":"..."}}.
package billing
