package billing

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrymomot/billingcore/pkg/httpserver"
	"github.com/dmitrymomot/billingcore/pkg/jwt"
	"github.com/dmitrymomot/billingcore/pkg/ratelimiter"
	"github.com/dmitrymomot/billingcore/pkg/requestid"
	"github.com/dmitrymomot/billingcore/pkg/subscription"
)

// RouterDeps are the collaborators of the HTTP router. Metrics, Checks and
// CheckoutLimit are optional.
type RouterDeps struct {
	Handlers      *Handlers
	Tokens        *jwt.Service
	Metrics       *Metrics
	Checks        []httpserver.Check
	CheckoutLimit *ratelimiter.Bucket
	Log           *slog.Logger
}

// NewRouter mounts the billing API.
func NewRouter(d RouterDeps) http.Handler {
	if d.Handlers == nil {
		panic("billing: Handlers are required")
	}
	if d.Tokens == nil {
		panic("billing: jwt.Service is required")
	}
	log := d.Log
	if log == nil {
		log = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(requestid.Middleware)
	if d.Metrics != nil {
		r.Use(d.Metrics.Middleware)
	}
	r.Use(middleware.Recoverer)

	r.Get("/healthz", httpserver.LivenessHandler())
	r.Get("/readyz", httpserver.ReadinessHandler(log, 5*time.Second, d.Checks...))
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics.Handler())
	}

	onError := func(w http.ResponseWriter, r *http.Request, err error) {
		writeError(w, r, log, err)
	}
	checkout := chi.Chain()
	if d.CheckoutLimit != nil {
		checkout = chi.Chain(ratelimiter.Middleware(d.CheckoutLimit, tenantKey, ratelimiter.WithErrorHandler(onError)))
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/plans", d.Handlers.Plans)
		r.Post("/webhooks/billing", d.Handlers.Webhook)

		r.Group(func(r chi.Router) {
			r.Use(jwt.Middleware(d.Tokens,
				jwt.WithContextFunc(bindTenant),
				jwt.WithErrorHandler(onError),
			))
			r.With(checkout...).Post("/checkout", d.Handlers.CreateCheckout)
			r.Get("/checkout/verify", d.Handlers.VerifyCheckout)
			r.Post("/billing/plan", d.Handlers.ChangePlan)
			r.Get("/billing/usage", d.Handlers.Usage)
			r.Get("/billing/fee", d.Handlers.Fee)
			r.Get("/billing/profile", d.Handlers.Profile)
		})
	})

	return r
}

func tenantKey(r *http.Request) string {
	id, ok := subscription.TenantIDFromContext(r.Context())
	if !ok {
		return ""
	}
	return CheckoutLimitKey(id)
}

func bindTenant(ctx context.Context, claims *jwt.TenantClaims) context.Context {
	id, err := claims.TenantID()
	if err != nil {
		return ctx
	}
	return subscription.WithTenantID(ctx, id)
}
