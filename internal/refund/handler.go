package refund

import (
	"encoding/json"
	"log/slog"
	"net/http"

	internal "github.com/frahmantamala/marketplace-settlement/internal"
	"github.com/frahmantamala/marketplace-settlement/internal/transport"
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

// CreateRefund runs the refund orchestration for one order.
func (h *Handler) CreateRefund(w http.ResponseWriter, r *http.Request) {
	var params RefundParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		h.WriteError(w, internal.NewValidationError("invalid request body", internal.ErrCodeValidationFailed))
		return
	}
	if params.RefundedBy == "" {
		params.RefundedBy = h.Actor(r)
	}

	refund, err := h.svc.RefundPayment(r.Context(), params)
	if err != nil {
		h.WriteError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, refund)
}
