package handler

import (
	"log/slog"
	"net/http"

	"github.com/khadira1937/xligo/internal/domain"
)

// PolicyHandler serves per-user protection policy CRUD.
type PolicyHandler struct {
	policies domain.PolicyStore
	logger   *slog.Logger
}

// NewPolicyHandler creates a PolicyHandler.
func NewPolicyHandler(policies domain.PolicyStore, logger *slog.Logger) *PolicyHandler {
	return &PolicyHandler{policies: policies, logger: logger}
}

// Get returns the stored policy for a user.
// GET /api/policies/{user_id}
func (h *PolicyHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.policies.Get(r.Context(), r.PathValue("user_id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Upsert stores or replaces a user's policy. The path user_id wins over any
// user_id in the body.
// PUT /api/policies/{user_id}
func (h *PolicyHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	log := logHandler(h.logger, "policy_upsert")

	var p domain.Policy
	if err := decodeBody(r, &p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	p.UserID = r.PathValue("user_id")

	if p.MaxPerIncidentUSD < 0 || p.MaxDailySpendUSD < 0 {
		writeError(w, http.StatusBadRequest, "spend limits must be non-negative")
		return
	}
	switch p.ApprovalMode {
	case domain.ApprovalAuto, domain.ApprovalManual, domain.ApprovalAutoIfConfidence:
	default:
		writeError(w, http.StatusBadRequest, "unknown approval mode")
		return
	}

	if err := h.policies.Upsert(r.Context(), p); err != nil {
		log.ErrorContext(r.Context(), "upsert policy failed",
			slog.String("user_id", p.UserID),
			slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to store policy")
		return
	}
	writeJSON(w, http.StatusOK, p)
}
