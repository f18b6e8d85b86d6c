package handler

import (
	"log/slog"
	"net/http"

	"github.com/khadira1937/xligo/internal/domain"
)

// IncidentHandler serves incident bookkeeping queries.
type IncidentHandler struct {
	incidents domain.IncidentStore
	plans     domain.PlanStore
	logger    *slog.Logger
}

// NewIncidentHandler creates an IncidentHandler.
func NewIncidentHandler(incidents domain.IncidentStore, plans domain.PlanStore, logger *slog.Logger) *IncidentHandler {
	return &IncidentHandler{incidents: incidents, plans: plans, logger: logger}
}

// ListRecent returns recent incidents, newest first.
// GET /api/incidents
func (h *IncidentHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	log := logHandler(h.logger, "incidents_list")

	opts := parseListOpts(r)
	incidents, err := h.incidents.ListRecent(r.Context(), opts)
	if err != nil {
		log.ErrorContext(r.Context(), "list incidents failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list incidents")
		return
	}

	if incidents == nil {
		incidents = []domain.Incident{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"incidents": incidents,
		"count":     len(incidents),
	})
}

// Get returns one incident by ID.
// GET /api/incidents/{id}
func (h *IncidentHandler) Get(w http.ResponseWriter, r *http.Request) {
	inc, err := h.incidents.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

// ListPlans returns all plans stored for an incident, primary first.
// GET /api/incidents/{id}/plans
func (h *IncidentHandler) ListPlans(w http.ResponseWriter, r *http.Request) {
	log := logHandler(h.logger, "incident_plans")
	id := r.PathValue("id")

	if _, err := h.incidents.GetByID(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}

	plans, err := h.plans.ListByIncident(r.Context(), id)
	if err != nil {
		log.ErrorContext(r.Context(), "list plans failed",
			slog.String("incident_id", id),
			slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list plans")
		return
	}

	if plans == nil {
		plans = []domain.Plan{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"incident_id": id,
		"plans":       plans,
	})
}
