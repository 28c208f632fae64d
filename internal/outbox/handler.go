package outbox

import (
	"encoding/json"
	"log/slog"
	"net/http"

	internal "github.com/frahmantamala/marketplace-settlement/internal"
	"github.com/frahmantamala/marketplace-settlement/internal/transport"
)

// ReplayHandler exposes the operator replay endpoint. The per-event-type
// dispatch func type is Handler, declared next to the consumer.
type ReplayHandler struct {
	*transport.BaseHandler
	replay *ReplayService
}

func NewReplayHandler(replay *ReplayService, logger *slog.Logger) *ReplayHandler {
	return &ReplayHandler{
		BaseHandler: transport.NewBaseHandler(logger),
		replay:      replay,
	}
}

type replayRequest struct {
	RequestID string   `json:"request_id"`
	EventIDs  []string `json:"event_ids"`
}

// ReplayEvents rearms a batch of dead-lettered events.
func (h *ReplayHandler) ReplayEvents(w http.ResponseWriter, r *http.Request) {
	var req replayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.WriteError(w, internal.NewValidationError("invalid request body", internal.ErrCodeValidationFailed))
		return
	}

	result, err := h.replay.ReplayEvents(req.RequestID, h.Actor(r), req.EventIDs)
	if err != nil {
		h.WriteError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, result)
}
