package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// SaveStateHandler handles PUT /v1/sessions/{sessionID}: save or
// version-bump a session's state payload.
func SaveStateHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "sessionID")
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			jsonError(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
		rec, err := d.Repository.Save(r.Context(), sessionID, payload)
		if err != nil {
			jsonError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

// GetStateHandler handles GET /v1/sessions/{sessionID}.
func GetStateHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "sessionID")
		rec, ok := d.Repository.Get(r.Context(), sessionID)
		if !ok {
			jsonError(w, "session not found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

// DeleteStateHandler handles DELETE /v1/sessions/{sessionID}.
func DeleteStateHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "sessionID")
		if err := d.Repository.Delete(r.Context(), sessionID); err != nil {
			jsonError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// ValidateIntegrityHandler handles GET /v1/sessions/{sessionID}/integrity.
func ValidateIntegrityHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "sessionID")
		ok := d.Repository.ValidateIntegrity(r.Context(), sessionID)
		writeJSON(w, http.StatusOK, map[string]any{"session_id": sessionID, "valid": ok, "checked_at": time.Now().UTC()})
	}
}
