package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// AppendLedgerHandler handles POST /v1/sessions/{sessionID}/ledger.
func AppendLedgerHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "sessionID")
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			jsonError(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
		entry, err := d.Ledger.Append(r.Context(), sessionID, payload)
		if err != nil {
			jsonError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusCreated, entry)
	}
}

// FetchLedgerHandler handles GET /v1/sessions/{sessionID}/ledger.
func FetchLedgerHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "sessionID")
		entries, err := d.Ledger.FetchEntries(r.Context(), sessionID)
		if err != nil {
			jsonError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"session_id": sessionID, "entries": entries})
	}
}
