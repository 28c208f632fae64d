package fees

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	internal "github.com/frahmantamala/marketplace-settlement/internal"
	"github.com/frahmantamala/marketplace-settlement/internal/transport"
	"github.com/go-chi/chi"
)

type Handler struct {
	*transport.BaseHandler
	svc *Service
}

func NewHandler(svc *Service, logger *slog.Logger) *Handler {
	return &Handler{
		BaseHandler: transport.NewBaseHandler(logger),
		svc:         svc,
	}
}

type reconcileRequest struct {
	ProcessorFeeCents int64  `json:"processor_fee_cents"`
	CausationID       string `json:"causation_id"`
	CorrelationID     string `json:"correlation_id,omitempty"`
}

// ReconcileFees applies a processor fee report to a payment's ledger.
func (h *Handler) ReconcileFees(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		h.WriteError(w, internal.NewValidationError("payment id must be a positive integer", internal.ErrCodeValidationFailed))
		return
	}

	var req reconcileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.WriteError(w, internal.NewValidationError("invalid request body", internal.ErrCodeValidationFailed))
		return
	}

	result, err := h.svc.ReconcilePaymentFees(r.Context(), id, req.ProcessorFeeCents, req.CausationID, req.CorrelationID)
	if err != nil {
		h.WriteError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, result)
}
