package httpapi

import (
	"net/http"
	"time"
)

// HealthzHandler handles GET /healthz: a liveness/readiness probe.
func HealthzHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status": "ok",
			"time":   time.Now().UTC(),
		})
	}
}
