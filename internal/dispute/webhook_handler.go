package dispute

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	internal "github.com/frahmantamala/marketplace-settlement/internal"
	gatewaytypes "github.com/frahmantamala/marketplace-settlement/internal/core/datamodel/paymentgateway"
	"github.com/frahmantamala/marketplace-settlement/internal/payout"
	"github.com/frahmantamala/marketplace-settlement/internal/transport"
)

const (
	WebhookPaymentIntentSucceeded = "payment_intent.succeeded"
	WebhookDisputeOpened          = "dispute.opened"
	WebhookDisputeClosed          = "dispute.closed"
)

// WebhookHandler is the single entry point for gateway webhooks. It validates
// the envelope into a closed set of event types and fans out to the payout
// and dispute flows.
type WebhookHandler struct {
	*transport.BaseHandler
	disputes *Service
	payouts  *payout.Service
}

func NewWebhookHandler(disputes *Service, payouts *payout.Service, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		BaseHandler: transport.NewBaseHandler(logger),
		disputes:    disputes,
		payouts:     payouts,
	}
}

// HandleGatewayWebhook processes one webhook delivery. Every known-type
// outcome answers 200 so the gateway stops redelivering; only transient
// processing failures answer 5xx to trigger a retry.
func (h *WebhookHandler) HandleGatewayWebhook(w http.ResponseWriter, r *http.Request) {
	var payload gatewaytypes.WebhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.WriteError(w, internal.NewValidationError("invalid webhook payload", internal.ErrCodeValidationFailed))
		return
	}
	if payload.Object.ID == "" {
		h.WriteError(w, internal.NewValidationError("webhook object id is required", internal.ErrCodeValidationFailed))
		return
	}

	switch payload.Type {
	case WebhookPaymentIntentSucceeded:
		h.handlePaymentIntentSucceeded(w, r, &payload)
	case WebhookDisputeOpened:
		result, err := h.disputes.HandleDisputeOpened(r.Context(), payload.Object.ID)
		h.writeResult(w, result, err)
	case WebhookDisputeClosed:
		result, err := h.disputes.HandleDisputeClosed(r.Context(), payload.Object.ID, payload.Object.Outcome)
		h.writeResult(w, result, err)
	default:
		h.Logger.Info("ignoring webhook with unrecognized type", "type", payload.Type)
		h.WriteJSON(w, http.StatusOK, WebhookResult{Handled: false, Reason: "unrecognized event type"})
	}
}

func (h *WebhookHandler) handlePaymentIntentSucceeded(w http.ResponseWriter, r *http.Request, payload *gatewaytypes.WebhookPayload) {
	meta := payout.ParseMetadata(payload.Object.Metadata)
	recipientAccountID := payload.Object.Metadata["recipient_account_id"]

	// The hold window anchors on when the charge succeeded, not on delivery
	// time, so a delayed redelivery cannot stretch the hold.
	paidAt := time.Now().UTC()
	if raw := payload.Object.Metadata["paid_at"]; raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			h.WriteError(w, internal.NewValidationError("paid_at is not a valid RFC3339 timestamp", internal.ErrCodeValidationFailed))
			return
		}
		paidAt = parsed.UTC()
	}

	p, err := h.payouts.CreateOrRefresh(r.Context(), payload.Object.ID, recipientAccountID, meta, paidAt)
	if err != nil {
		h.WriteError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"handled": true,
		"payout":  p,
	})
}

func (h *WebhookHandler) writeResult(w http.ResponseWriter, result *WebhookResult, err error) {
	if err != nil {
		h.WriteError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, result)
}
