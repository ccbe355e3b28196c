package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/relaycore/relaycore/internal/replay"
)

// ReplaySessionHandler handles POST /v1/sessions/{sessionID}/replay.
func ReplaySessionHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "sessionID")
		applied, err := d.Replay.Replay(r.Context(), sessionID)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, replay.ErrLedgerReplay) {
				status = http.StatusConflict
			}
			jsonError(w, err.Error(), status)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"session_id": sessionID, "entries_applied": len(applied)})
	}
}

type replayBatchRequest struct {
	SessionIDs []string `json:"session_ids"`
}

// ReplayBatchHandler handles POST /v1/replay/batch.
func ReplayBatchHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req replayBatchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			jsonError(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
		result := d.Replay.ReplayBatch(r.Context(), req.SessionIDs)
		writeJSON(w, http.StatusOK, result)
	}
}
