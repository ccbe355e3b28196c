package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/relaycore/relaycore/internal/router"
)

type routeRequest struct {
	TaskType string         `json:"task_type"`
	Tokens   int            `json:"tokens"`
	Payload  map[string]any `json:"payload"`
}

// RouteHandler handles POST /v1/route: dispatch a task through the
// model router and return the provider's response alongside the
// routing decision.
func RouteHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req routeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			jsonError(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
		payload := req.Payload
		if payload == nil {
			payload = map[string]any{}
		}
		payload["tokens"] = req.Tokens

		resp, err := d.Router.Route(r.Context(), router.Task{Type: req.TaskType, Tokens: req.Tokens}, payload)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, router.ErrBudgetExceeded) {
				status = http.StatusPaymentRequired
			}
			jsonError(w, err.Error(), status)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
