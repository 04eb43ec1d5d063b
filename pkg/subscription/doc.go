// Package subscription keeps a tenant's local billing state in line with an
// external payment provider and enforces the resource quota of the tenant's plan.
//
// The provider owns money and subscription lifecycle. This package owns the
// plan a tenant is on, the customer and subscription it is bound to, and how
// many managed resources it may keep active. All changes flow in through two
// paths that converge on the same transitions:
//
//   - HandleWebhook: signed provider events (checkout completed, subscription
//     changed or deleted, invoice paid or failed).
//   - VerifyCheckout: a synchronous check after the checkout redirect, so the
//     tenant sees the upgrade before the webhook arrives.
//
// Every transition is written as an absolute target state, so replayed or
// reordered deliveries converge on the same profile.
//
// # Components
//
//   - Catalog: immutable plan definitions with limits, fees and price ids.
//   - Enforcer: archives the newest active resources above a plan's limit.
//   - Service: checkout orchestration, webhook reconciliation, session
//     verification, plan changes and quota sweeps.
//   - BillingProvider: the provider boundary, implemented by StripeProvider
//     and PaddleProvider.
//   - ProfileStore and ResourceStore: persistence, with MemoryStore for tests.
//
// # Usage
//
//	catalog, err := subscription.LoadCatalog(ctx, subscription.DefaultPlansSource())
//	if err != nil {
//		return err
//	}
//	provider, err := subscription.NewStripeProvider(stripeCfg)
//	if err != nil {
//		return err
//	}
//	svc := subscription.NewService(catalog, provider, profiles, resources,
//		subscription.WithLogger(log),
//	)
//
//	session, err := svc.CreateCheckout(ctx, tenantID, "pro", subscription.CycleMonthly,
//		subscription.CheckoutOptions{SuccessURL: successURL, CancelURL: cancelURL})
//
// # Error Handling
//
// Errors are sentinel values combined with errors.Join. Callers classify them
// with errors.Is against the class errors ErrConfiguration, ErrNotFound,
// ErrProviderError and ErrTimeout; IsRetryable reports whether a retry may help.
package subscription
