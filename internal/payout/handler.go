package payout

import (
	"encoding/json"
	"log/slog"
	"net/http"

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

type blockRequest struct {
	Reason string `json:"reason"`
}

// GetPayout returns one pending payout by payment intent id.
func (h *Handler) GetPayout(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Get(r.Context(), chi.URLParam(r, "paymentIntentID"))
	if err != nil {
		h.WriteError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, p)
}

// BlockPayout takes a payout out of the release sweep.
func (h *Handler) BlockPayout(w http.ResponseWriter, r *http.Request) {
	var req blockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Reason == "" {
		h.WriteError(w, internal.NewValidationError("a block reason is required", internal.ErrCodeValidationFailed))
		return
	}

	ctx := internal.ContextWithActor(r.Context(), h.Actor(r))
	p, err := h.svc.Block(ctx, chi.URLParam(r, "paymentIntentID"), req.Reason)
	if err != nil {
		h.WriteError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, p)
}

// UnblockPayout returns a blocked payout to HELD.
func (h *Handler) UnblockPayout(w http.ResponseWriter, r *http.Request) {
	ctx := internal.ContextWithActor(r.Context(), h.Actor(r))
	p, err := h.svc.Unblock(ctx, chi.URLParam(r, "paymentIntentID"))
	if err != nil {
		h.WriteError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, p)
}

// CancelPayout terminally cancels a payout.
func (h *Handler) CancelPayout(w http.ResponseWriter, r *http.Request) {
	var req blockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		req.Reason = ""
	}

	ctx := internal.ContextWithActor(r.Context(), h.Actor(r))
	p, err := h.svc.Cancel(ctx, chi.URLParam(r, "paymentIntentID"), req.Reason)
	if err != nil {
		h.WriteError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, p)
}
