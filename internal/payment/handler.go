package payment

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

// CreatePayment records a completed checkout.
func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var params CreatePaymentParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		h.WriteError(w, internal.NewValidationError("invalid request body", internal.ErrCodeValidationFailed))
		return
	}

	p, err := h.svc.CreatePayment(r.Context(), params)
	if err != nil {
		h.WriteError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, p)
}

// GetPayment returns one payment with its current ledger balance.
func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	id, err := h.paymentID(r)
	if err != nil {
		h.WriteError(w, err)
		return
	}

	p, err := h.svc.GetPayment(r.Context(), id)
	if err != nil {
		h.WriteError(w, err)
		return
	}

	balance, err := h.svc.GetBalance(r.Context(), id)
	if err != nil {
		h.WriteError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"payment":   p,
		"net_cents": balance,
	})
}

// GetLedger lists the payment's ledger entries.
func (h *Handler) GetLedger(w http.ResponseWriter, r *http.Request) {
	id, err := h.paymentID(r)
	if err != nil {
		h.WriteError(w, err)
		return
	}

	entries, err := h.svc.LedgerEntries(r.Context(), id)
	if err != nil {
		h.WriteError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
	})
}

func (h *Handler) paymentID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, internal.NewValidationError("payment id must be a positive integer", internal.ErrCodeValidationFailed)
	}
	return id, nil
}
