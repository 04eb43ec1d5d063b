package billing

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/billingcore/pkg/jwt"
	"github.com/dmitrymomot/billingcore/pkg/logger"
	"github.com/dmitrymomot/billingcore/pkg/ratelimiter"
	"github.com/dmitrymomot/billingcore/pkg/subscription"
)

// HTTPError pairs a status code with a stable machine-readable key.
type HTTPError struct {
	Status int
	Code   string
}

var (
	errBadRequest     = HTTPError{Status: http.StatusBadRequest, Code: "bad_request"}
	errInvalidPlan    = HTTPError{Status: http.StatusBadRequest, Code: "invalid_plan"}
	errInvalidWebhook = HTTPError{Status: http.StatusBadRequest, Code: "invalid_webhook"}
	errUnauthorized   = HTTPError{Status: http.StatusUnauthorized, Code: "unauthorized"}
	errLimitExceeded  = HTTPError{Status: http.StatusForbidden, Code: "limit_exceeded"}
	errRateLimited    = HTTPError{Status: http.StatusTooManyRequests, Code: "rate_limited"}
	errNotFound       = HTTPError{Status: http.StatusNotFound, Code: "not_found"}
	errInternal       = HTTPError{Status: http.StatusInternalServerError, Code: "internal_error"}
	errRetryLater     = HTTPError{Status: http.StatusInternalServerError, Code: "temporary_failure"}
	errConfiguration  = HTTPError{Status: http.StatusInternalServerError, Code: "configuration_error"}
	errUnsupported    = HTTPError{Status: http.StatusNotImplemented, Code: "unsupported"}
	errProvider       = HTTPError{Status: http.StatusBadGateway, Code: "provider_error"}
	errTimeout        = HTTPError{Status: http.StatusGatewayTimeout, Code: "timeout"}
)

// errorBody is the JSON envelope of every error response.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// classify maps an error onto its HTTP class and a message safe for clients.
// Order matters: the class sentinels joined by the core take precedence over
// the concrete errors they wrap.
func classify(err error) (HTTPError, string) {
	switch {
	case errors.Is(err, subscription.ErrTimeout):
		return errTimeout, "billing operation timed out"
	case errors.Is(err, subscription.ErrConfiguration):
		return errConfiguration, "billing is misconfigured"
	case errors.Is(err, subscription.ErrProviderError):
		return errProvider, "billing provider request failed"
	case errors.Is(err, ErrUnauthenticated),
		errors.Is(err, subscription.ErrMissingTenantID),
		errors.Is(err, jwt.ErrMissingToken),
		errors.Is(err, jwt.ErrInvalidToken),
		errors.Is(err, jwt.ErrExpiredToken),
		errors.Is(err, jwt.ErrInvalidClaims):
		return errUnauthorized, ErrUnauthenticated.Error()
	case errors.Is(err, subscription.ErrWebhookVerificationFailed),
		errors.Is(err, subscription.ErrInvalidEventPayload):
		return errInvalidWebhook, subscription.ErrWebhookVerificationFailed.Error()
	case errors.Is(err, subscription.ErrSessionNotFound):
		return errNotFound, subscription.ErrSessionNotFound.Error()
	case errors.Is(err, ratelimiter.ErrRateLimited):
		return errRateLimited, "too many checkout attempts, retry later"
	case errors.Is(err, subscription.ErrLimitExceeded):
		return errLimitExceeded, subscription.ErrLimitExceeded.Error()
	case errors.Is(err, subscription.ErrPlanNotFound):
		return errInvalidPlan, subscription.ErrPlanNotFound.Error()
	case errors.Is(err, subscription.ErrInvalidBillingCycle):
		return errInvalidPlan, subscription.ErrInvalidBillingCycle.Error()
	case errors.Is(err, subscription.ErrFreePlanCheckout):
		return errInvalidPlan, subscription.ErrFreePlanCheckout.Error()
	case errors.Is(err, subscription.ErrInvalidPlanChange):
		return errInvalidPlan, subscription.ErrInvalidPlanChange.Error()
	case errors.Is(err, subscription.ErrNoActiveSubscription):
		return errBadRequest, subscription.ErrNoActiveSubscription.Error()
	case errors.Is(err, subscription.ErrUnsupported):
		return errUnsupported, subscription.ErrUnsupported.Error()
	case errors.Is(err, ErrMissingSessionID):
		return errBadRequest, ErrMissingSessionID.Error()
	case errors.Is(err, subscription.ErrInvalidAmount):
		return errBadRequest, subscription.ErrInvalidAmount.Error()
	case errors.Is(err, ErrInvalidRequest):
		return errBadRequest, ErrInvalidRequest.Error()
	default:
		return errInternal, "internal error"
	}
}

// classifyWebhook answers provider deliveries: client faults keep their 4xx
// class, every other failure is a 500 so the provider redelivers.
func classifyWebhook(err error) (HTTPError, string) {
	class, msg := classify(err)
	switch {
	case class.Status < http.StatusInternalServerError:
		return class, msg
	case subscription.IsRetryable(err):
		return errRetryLater, "billing event could not be processed yet"
	default:
		return errInternal, "billing event processing failed"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError logs server-side failures with the full error and answers with
// the classified envelope.
func writeError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	class, msg := classify(err)
	respondError(w, r, log, err, class, msg)
}

func writeWebhookError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	class, msg := classifyWebhook(err)
	respondError(w, r, log, err, class, msg)
}

func respondError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error, class HTTPError, msg string) {
	if class.Status >= http.StatusInternalServerError {
		log.ErrorContext(r.Context(), "Billing request failed",
			slog.String("path", r.URL.Path),
			slog.Int("status", class.Status),
			logger.Error(err),
		)
	}
	writeJSON(w, class.Status, errorBody{Error: errorDetail{Code: class.Code, Message: msg}})
}
