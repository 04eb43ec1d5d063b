package logger

import (
	"log/slog"
	"strconv"
	"time"
)

// Group creates a slog group attribute from the provided attributes.
func Group(name string, attrs ...slog.Attr) slog.Attr {
	return slog.Attr{Key: name, Value: slog.GroupValue(attrs...)}
}

// Errors groups multiple non-nil errors under the key "errors".
// If all errors are nil, it returns an empty Attr.
func Errors(errs ...error) slog.Attr {
	as := make([]slog.Attr, 0, len(errs))
	for i, err := range errs {
		if err != nil {
			as = append(as, slog.Any(strconv.Itoa(i), err))
		}
	}
	if len(as) == 0 {
		return slog.Attr{}
	}
	return slog.Attr{Key: "errors", Value: slog.GroupValue(as...)}
}

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// TenantID records the tenant identifier under the key "tenant_id".
// If id is nil, it returns an empty Attr.
func TenantID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("tenant_id", id)
}

// RequestID records the request identifier under the key "request_id".
// If id is nil, it returns an empty Attr.
func RequestID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("request_id", id)
}

// CustomerID records the billing provider customer under the key "customer_id".
func CustomerID(id string) slog.Attr {
	return optionalString("customer_id", id)
}

// SubscriptionID records the provider subscription under the key "subscription_id".
func SubscriptionID(id string) slog.Attr {
	return optionalString("subscription_id", id)
}

// SessionID records a checkout session under the key "session_id".
func SessionID(id string) slog.Attr {
	return optionalString("session_id", id)
}

// PlanID records the plan under the key "plan_id".
func PlanID(id string) slog.Attr {
	return optionalString("plan_id", id)
}

// PriceID records a provider price under the key "price_id".
func PriceID(id string) slog.Attr {
	return optionalString("price_id", id)
}

// BillingCycle records the billing cycle under the key "billing_cycle".
func BillingCycle(cycle string) slog.Attr {
	return optionalString("billing_cycle", cycle)
}

// EventID records a provider event id under the key "event_id".
func EventID(id string) slog.Attr {
	return optionalString("event_id", id)
}

// EventType records the event type under the key "event_type".
func EventType(eventType string) slog.Attr {
	return slog.String("event_type", eventType)
}

// Count records a number of affected items under the key "count".
func Count(n int) slog.Attr {
	return slog.Int("count", n)
}

// Duration records a duration under the key "duration".
func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}

// Component records the component name under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

func optionalString(key, v string) slog.Attr {
	if v == "" {
		return slog.Attr{}
	}
	return slog.String(key, v)
}
