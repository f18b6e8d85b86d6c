package handler

import (
	"log/slog"
	"net/http"

	"github.com/khadira1937/xligo/internal/domain"
	"github.com/khadira1937/xligo/internal/optimizer"
	"github.com/khadira1937/xligo/internal/pipeline"
	"github.com/khadira1937/xligo/internal/policy"
	"github.com/khadira1937/xligo/internal/risk"
)

// DecisionHandler exposes the pipeline stages individually and as one
// end-to-end run. The individual endpoints serve operators poking at a
// position; /api/decide is what a watcher calls when a position trips its
// alert threshold.
type DecisionHandler struct {
	predictor *risk.Predictor
	optimizer *optimizer.Optimizer
	validator *policy.Validator
	orch      *pipeline.Orchestrator
	prices    domain.PriceSource
	policies  domain.PolicyStore
	venues    []domain.Venue
	logger    *slog.Logger
}

// NewDecisionHandler creates a DecisionHandler.
func NewDecisionHandler(
	predictor *risk.Predictor,
	opt *optimizer.Optimizer,
	validator *policy.Validator,
	orch *pipeline.Orchestrator,
	prices domain.PriceSource,
	policies domain.PolicyStore,
	venues []domain.Venue,
	logger *slog.Logger,
) *DecisionHandler {
	if len(venues) == 0 {
		venues = optimizer.DefaultVenues()
	}
	return &DecisionHandler{
		predictor: predictor,
		optimizer: opt,
		validator: validator,
		orch:      orch,
		prices:    prices,
		policies:  policies,
		venues:    venues,
		logger:    logger,
	}
}

type assessRequest struct {
	Position domain.Position      `json:"position"`
	Params   *domain.AssessParams `json:"params,omitempty"`
}

// Assess runs a standalone risk assessment for a position snapshot.
// POST /api/assess
func (h *DecisionHandler) Assess(w http.ResponseWriter, r *http.Request) {
	log := logHandler(h.logger, "assess")

	var req assessRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := req.Position.Validate(); err != nil {
		writeDomainError(w, err)
		return
	}

	prices, err := h.prices.Snapshot(r.Context(), req.Position.Assets())
	if err != nil {
		log.ErrorContext(r.Context(), "price snapshot failed", slog.String("error", err.Error()))
		writeError(w, http.StatusServiceUnavailable, "price snapshot unavailable")
		return
	}

	params := h.predictor.DefaultParams()
	if req.Params != nil {
		params = *req.Params
	}

	result := h.predictor.Assess(r.Context(), req.Position, prices, params)
	writeJSON(w, http.StatusOK, result)
}

type optimizeRequest struct {
	Position domain.Position `json:"position"`
	UserID   string          `json:"user_id"`
}

// Optimize assesses a position and produces a protection plan under the
// user's stored policy, without validating or executing it.
// POST /api/optimize
func (h *DecisionHandler) Optimize(w http.ResponseWriter, r *http.Request) {
	log := logHandler(h.logger, "optimize")

	var req optimizeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := req.Position.Validate(); err != nil {
		writeDomainError(w, err)
		return
	}

	userPolicy, err := h.policies.Get(r.Context(), req.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	prices, err := h.prices.Snapshot(r.Context(), req.Position.Assets())
	if err != nil {
		log.ErrorContext(r.Context(), "price snapshot failed", slog.String("error", err.Error()))
		writeError(w, http.StatusServiceUnavailable, "price snapshot unavailable")
		return
	}

	assessment := h.predictor.Assess(r.Context(), req.Position, prices, h.predictor.DefaultParams())
	result := h.optimizer.Optimize(r.Context(), req.Position, userPolicy, assessment, h.venues)
	writeJSON(w, http.StatusOK, result)
}

type validateRequest struct {
	Plan   domain.Plan `json:"plan"`
	UserID string      `json:"user_id"`
}

// Validate checks a plan against the user's stored policy.
// POST /api/validate
func (h *DecisionHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	userPolicy, err := h.policies.Get(r.Context(), req.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	user := domain.User{ID: req.UserID}
	result := h.validator.ValidatePlan(req.Plan, userPolicy, user)
	writeJSON(w, http.StatusOK, result)
}

type decideRequest struct {
	Position domain.Position `json:"position"`
	UserID   string          `json:"user_id"`
	Address  string          `json:"address,omitempty"`
}

// Decide runs the full pipeline: assess, optimize, validate, then execution
// hand-off or manual review.
// POST /api/decide
func (h *DecisionHandler) Decide(w http.ResponseWriter, r *http.Request) {
	var req decideRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	user := domain.User{ID: req.UserID}
	if req.Address != "" {
		addr, err := domain.NormalizeAddress(req.Address)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		user.Address = addr
	}

	decision, err := h.orch.Decide(r.Context(), req.Position, user)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, decision)
}
