package billing

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dmitrymomot/billingcore/pkg/jwt"
	"github.com/dmitrymomot/billingcore/pkg/logger"
	"github.com/dmitrymomot/billingcore/pkg/subscription"
)

// maxJSONBody caps request bodies of the tenant-facing endpoints.
const maxJSONBody = 1 << 16

// Handlers exposes the billing core over HTTP.
type Handlers struct {
	svc subscription.Service
	cfg Config
	log *slog.Logger
}

// NewHandlers creates the HTTP handlers.
func NewHandlers(svc subscription.Service, cfg Config, log *slog.Logger) *Handlers {
	if svc == nil {
		panic("billing: subscription.Service is required")
	}
	if log == nil {
		log = slog.Default()
	}
	if cfg.MaxWebhookBody <= 0 {
		cfg.MaxWebhookBody = 1 << 16
	}
	return &Handlers{svc: svc, cfg: cfg, log: log.With(logger.Component("billing_http"))}
}

func tenantFrom(r *http.Request) (uuid.UUID, error) {
	id, ok := subscription.TenantIDFromContext(r.Context())
	if !ok {
		return uuid.Nil, ErrUnauthenticated
	}
	return id, nil
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Join(ErrInvalidRequest, err)
	}
	return nil
}

type checkoutRequest struct {
	PlanID       string `json:"plan_id"`
	BillingCycle string `json:"billing_cycle"`
}

type checkoutResponse struct {
	SessionID  string `json:"session_id"`
	SessionURL string `json:"session_url"`
}

// CreateCheckout handles POST /api/checkout.
func (h *Handlers) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	tenantID, err := tenantFrom(r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	var req checkoutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	cycle, err := subscription.ParseBillingCycle(req.BillingCycle)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	opts := subscription.CheckoutOptions{
		SuccessURL: h.cfg.SuccessURL(),
		CancelURL:  h.cfg.CancelURL(),
	}
	if claims, ok := jwt.ClaimsFromContext(r.Context()); ok {
		opts.Email = claims.Email
	}

	session, err := h.svc.CreateCheckout(r.Context(), tenantID, subscription.PlanID(req.PlanID), cycle, opts)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, checkoutResponse{SessionID: session.ID, SessionURL: session.URL})
}

type verifyResponse struct {
	Success      bool   `json:"success"`
	Message      string `json:"message,omitempty"`
	Subscription string `json:"subscription,omitempty"`
	CustomerID   string `json:"customerId,omitempty"`
	PlanID       string `json:"plan_id,omitempty"`
}

// VerifyCheckout handles GET /api/checkout/verify?session_id=.
func (h *Handlers) VerifyCheckout(w http.ResponseWriter, r *http.Request) {
	tenantID, err := tenantFrom(r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		writeError(w, r, h.log, ErrMissingSessionID)
		return
	}

	res, err := h.svc.VerifyCheckout(r.Context(), tenantID, sessionID)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	resp := verifyResponse{Success: res.Paid}
	switch {
	case !res.Paid:
		resp.Message = "payment not confirmed yet"
	case res.Profile != nil:
		resp.Subscription = res.Profile.SubscriptionID
		resp.CustomerID = res.Profile.CustomerID
		resp.PlanID = string(res.Profile.PlanID)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Webhook handles POST /api/webhooks/billing. The body is read raw because
// the signature covers the exact bytes.
func (h *Handlers) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.cfg.MaxWebhookBody))
	if err != nil {
		writeWebhookError(w, r, h.log, errors.Join(subscription.ErrInvalidEventPayload, err))
		return
	}

	signature := r.Header.Get(h.svc.SignatureHeader())
	if err := h.svc.HandleWebhook(r.Context(), payload, signature); err != nil {
		writeWebhookError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

type changePlanRequest struct {
	PlanID string `json:"plan_id"`
}

type changePlanResponse struct {
	Message     string    `json:"message"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	Immediate   bool      `json:"immediate"`
	EffectiveAt time.Time `json:"effective_at"`
	Archived    int       `json:"archived,omitempty"`
}

// ChangePlan handles POST /api/billing/plan.
func (h *Handlers) ChangePlan(w http.ResponseWriter, r *http.Request) {
	tenantID, err := tenantFrom(r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	var req changePlanRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}

	change, err := h.svc.ChangePlan(r.Context(), tenantID, subscription.PlanID(req.PlanID))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	msg := "plan change scheduled for the end of the billing period"
	if change.Immediate {
		msg = "plan changed"
	}
	writeJSON(w, http.StatusOK, changePlanResponse{
		Message:     msg,
		From:        string(change.From),
		To:          string(change.To),
		Immediate:   change.Immediate,
		EffectiveAt: change.EffectiveAt,
		Archived:    change.Archived,
	})
}

type usageResponse struct {
	subscription.Usage
	Percent int `json:"percent"`
}

// Usage handles GET /api/billing/usage.
func (h *Handlers) Usage(w http.ResponseWriter, r *http.Request) {
	tenantID, err := tenantFrom(r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	u, err := h.svc.Usage(r.Context(), tenantID)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, usageResponse{Usage: u, Percent: u.Percent()})
}

// Fee handles GET /api/billing/fee?amount=.
func (h *Handlers) Fee(w http.ResponseWriter, r *http.Request) {
	tenantID, err := tenantFrom(r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	amount, err := decimal.NewFromString(r.URL.Query().Get("amount"))
	if err != nil {
		writeError(w, r, h.log, errors.Join(subscription.ErrInvalidAmount, err))
		return
	}

	quote, err := h.svc.Fee(r.Context(), tenantID, amount)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

// Profile handles GET /api/billing/profile.
func (h *Handlers) Profile(w http.ResponseWriter, r *http.Request) {
	tenantID, err := tenantFrom(r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	p, err := h.svc.Profile(r.Context(), tenantID)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type planView struct {
	ID            string                     `json:"id"`
	Name          string                     `json:"name"`
	Free          bool                       `json:"free"`
	ResourceLimit int64                      `json:"resource_limit"`
	FeePercent    decimal.Decimal            `json:"fee_percent"`
	Amounts       map[string]decimal.Decimal `json:"amounts,omitempty"`
	Features      []string                   `json:"features,omitempty"`
}

// Plans handles GET /api/plans. Provider price ids are not exposed.
func (h *Handlers) Plans(w http.ResponseWriter, r *http.Request) {
	plans := h.svc.Catalog().Plans()
	out := make([]planView, 0, len(plans))
	for _, p := range plans {
		v := planView{
			ID:            string(p.ID),
			Name:          p.Name,
			Free:          p.Free,
			ResourceLimit: p.ResourceLimit,
			FeePercent:    p.FeePercent,
		}
		if len(p.Amounts) > 0 {
			v.Amounts = make(map[string]decimal.Decimal, len(p.Amounts))
			for cycle, amount := range p.Amounts {
				v.Amounts[string(cycle)] = amount
			}
		}
		for _, f := range p.Features {
			v.Features = append(v.Features, string(f))
		}
		out = append(out, v)
	}
	writeJSON(w, http.StatusOK, map[string]any{"plans": out})
}
