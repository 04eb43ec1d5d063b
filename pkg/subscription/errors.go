package subscription

import "errors"

// Error classes. Concrete errors below are joined with one of these so callers
// can decide on retry and status mapping with errors.Is.
var (
	ErrConfiguration = errors.New("billing configuration error")
	ErrNotFound      = errors.New("billing resource not found")
	ErrProviderError = errors.New("billing provider error")
	ErrTimeout       = errors.New("billing operation timed out")
)

var (
	ErrPlanNotFound             = errors.New("subscription plan not found")
	ErrInvalidPlanConfiguration = errors.New("invalid subscription plan configuration")
	ErrPriceNotConfigured       = errors.New("price not configured for plan and billing cycle")
	ErrInvalidBillingCycle      = errors.New("invalid billing cycle")
	ErrFreePlanCheckout         = errors.New("free plan does not require checkout")
	ErrFailedToLoadPlans        = errors.New("failed to load subscription plans")

	ErrInvalidAmount              = errors.New("sale amount must not be negative")
	ErrLimitExceeded              = errors.New("subscription limit exceeded")
	ErrFailedToCountResourceUsage = errors.New("failed to count resource usage")
	ErrFailedToArchiveResources   = errors.New("failed to archive resources")

	ErrProfileNotFound      = errors.New("billing profile not found")
	ErrSessionNotFound      = errors.New("checkout session not found")
	ErrCheckoutPending      = errors.New("checkout payment not confirmed yet")
	ErrInvalidPlanChange    = errors.New("invalid plan change")
	ErrNoActiveSubscription = errors.New("no active subscription")

	ErrWebhookVerificationFailed = errors.New("webhook signature verification failed")
	ErrMissingSignature          = errors.New("webhook signature is missing")
	ErrInvalidEventPayload       = errors.New("invalid webhook event payload")

	ErrMissingAPIKey              = errors.New("billing provider API key is required")
	ErrMissingWebhookSecret       = errors.New("billing provider webhook secret is required")
	ErrInvalidProviderEnvironment = errors.New("invalid billing provider environment")
	ErrNoCheckoutURL              = errors.New("no checkout URL returned from provider")
	ErrMissingCustomerID          = errors.New("provider customer ID is required")
	ErrMissingTenantID            = errors.New("tenant ID is required")
	ErrMissingPriceID             = errors.New("price ID is required")
	ErrUnsupported                = errors.New("operation not supported by billing provider")
)

// IsRetryable reports whether the failure is transient and the caller (or the
// provider's redelivery) may try again.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrProviderError)
}

// IsNotFound reports whether err describes a missing plan, profile or session.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrPlanNotFound) ||
		errors.Is(err, ErrProfileNotFound) ||
		errors.Is(err, ErrSessionNotFound)
}
