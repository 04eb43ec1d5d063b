package billing

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmitrymomot/billingcore/pkg/subscription"
)

// Metrics exports billing counters to Prometheus and implements
// subscription.Observer.
type Metrics struct {
	CheckoutsCreated  *prometheus.CounterVec
	EventsHandled     *prometheus.CounterVec
	ArchivedResources *prometheus.CounterVec
	ProviderCalls     *prometheus.CounterVec
	ProviderDuration  *prometheus.HistogramVec

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

var _ subscription.Observer = (*Metrics)(nil)

// NewMetrics creates and registers the billing metrics on registry.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		CheckoutsCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_checkouts_created_total",
				Help: "Checkout sessions created",
			},
			[]string{"plan", "cycle"},
		),
		EventsHandled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_events_handled_total",
				Help: "Provider events processed by kind and result",
			},
			[]string{"kind", "result"},
		),
		ArchivedResources: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_resources_archived_total",
				Help: "Resources archived by quota enforcement",
			},
			[]string{"plan"},
		),
		ProviderCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_provider_calls_total",
				Help: "Billing provider API calls",
			},
			[]string{"op", "result"},
		),
		ProviderDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "billing_provider_call_duration_seconds",
				Help:    "Billing provider API call duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_http_requests_total",
				Help: "HTTP requests by route and status",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "billing_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		gatherer: registry,
	}

	registry.MustRegister(
		m.CheckoutsCreated,
		m.EventsHandled,
		m.ArchivedResources,
		m.ProviderCalls,
		m.ProviderDuration,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
	)
	return m
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (m *Metrics) CheckoutCreated(plan subscription.PlanID, cycle subscription.BillingCycle) {
	m.CheckoutsCreated.WithLabelValues(string(plan), string(cycle)).Inc()
}

func (m *Metrics) EventHandled(kind string, err error) {
	m.EventsHandled.WithLabelValues(kind, result(err)).Inc()
}

func (m *Metrics) ResourcesArchived(plan subscription.PlanID, count int) {
	m.ArchivedResources.WithLabelValues(string(plan)).Add(float64(count))
}

func (m *Metrics) ProviderCall(op string, elapsed time.Duration, err error) {
	m.ProviderCalls.WithLabelValues(op, result(err)).Inc()
	m.ProviderDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency by chi route pattern, which
// keeps label cardinality bounded.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
