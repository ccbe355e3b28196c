package httpapi

import "net/http"

// BudgetStatusHandler handles GET /admin/v1/budget.
func BudgetStatusHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":    d.Router.BudgetStatus(),
			"remaining": d.Router.RemainingBudget(),
		})
	}
}

// BudgetResetHandler handles POST /admin/v1/budget/reset: clears
// cumulative spend and every provider's circuit breaker.
func BudgetResetHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d.Router.ResetBudget()
		w.WriteHeader(http.StatusNoContent)
	}
}

// AuditLogHandler handles GET /admin/v1/audit.
func AuditLogHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"entries": d.Router.AuditTrail()})
	}
}

// GuardrailAlertsHandler handles GET /admin/v1/guardrails/alerts.
func GuardrailAlertsHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.Guardrails == nil {
			writeJSON(w, http.StatusOK, map[string]any{"alerts": []any{}})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"alerts": d.Guardrails.Alerts()})
	}
}

// GuardrailSnapshotHandler handles GET /admin/v1/guardrails/snapshot.
func GuardrailSnapshotHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.Guardrails == nil {
			jsonError(w, "guardrails not configured", http.StatusNotFound)
			return
		}
		snap, ok := d.Guardrails.LatestSnapshot()
		if !ok {
			jsonError(w, "no guardrail observations yet", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

// HealthStatsHandler handles GET /admin/v1/health: per-provider
// availability as tracked independently of the router's own breaker.
func HealthStatsHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.Health == nil {
			writeJSON(w, http.StatusOK, map[string]any{"providers": []any{}})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"providers": d.Health.AllStats()})
	}
}
