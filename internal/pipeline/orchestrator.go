// Package pipeline chains the decision stages for one at-risk position:
// assess, optimize, validate, then hand off or park for review. The
// orchestrator owns sequencing and bookkeeping only; all judgment lives in
// the stage components.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/khadira1937/xligo/internal/domain"
	"github.com/khadira1937/xligo/internal/metrics"
	"github.com/khadira1937/xligo/internal/notify"
	"github.com/khadira1937/xligo/internal/optimizer"
	"github.com/khadira1937/xligo/internal/policy"
	"github.com/khadira1937/xligo/internal/risk"
)

// Config holds orchestrator tuning knobs.
type Config struct {
	// DecisionTimeout bounds one full pipeline run.
	DecisionTimeout time.Duration

	// LockTTL is the distributed lock lifetime per position.
	LockTTL time.Duration

	// ImminentBreachProb is the breach probability at or above which the
	// orchestrator raises a breach_imminent alert.
	ImminentBreachProb float64
}

func (c Config) withDefaults() Config {
	if c.DecisionTimeout <= 0 {
		c.DecisionTimeout = 30 * time.Second
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 2 * time.Minute
	}
	if c.ImminentBreachProb <= 0 {
		c.ImminentBreachProb = 0.5
	}
	return c
}

// Orchestrator runs the decision pipeline. The stores, lock manager,
// archiver, notifier, and executor are optional; a nil dependency disables
// that concern without changing decision semantics.
type Orchestrator struct {
	predictor *risk.Predictor
	optimizer *optimizer.Optimizer
	validator *policy.Validator
	prices    domain.PriceSource
	venues    []domain.Venue

	incidents domain.IncidentStore
	plans     domain.PlanStore
	policies  domain.PolicyStore
	locks     domain.LockManager
	archiver  domain.DecisionArchiver
	notifier  *notify.Notifier
	exec      domain.Executor

	cfg    Config
	logger *slog.Logger
}

// Deps bundles the orchestrator's collaborators.
type Deps struct {
	Predictor *risk.Predictor
	Optimizer *optimizer.Optimizer
	Validator *policy.Validator
	Prices    domain.PriceSource
	Venues    []domain.Venue

	Incidents domain.IncidentStore
	Plans     domain.PlanStore
	Policies  domain.PolicyStore
	Locks     domain.LockManager
	Archiver  domain.DecisionArchiver
	Notifier  *notify.Notifier
	Executor  domain.Executor
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(deps Deps, cfg Config, logger *slog.Logger) *Orchestrator {
	venues := deps.Venues
	if len(venues) == 0 {
		venues = optimizer.DefaultVenues()
	}
	return &Orchestrator{
		predictor: deps.Predictor,
		optimizer: deps.Optimizer,
		validator: deps.Validator,
		prices:    deps.Prices,
		venues:    venues,
		incidents: deps.Incidents,
		plans:     deps.Plans,
		policies:  deps.Policies,
		locks:     deps.Locks,
		archiver:  deps.Archiver,
		notifier:  deps.Notifier,
		exec:      deps.Executor,
		cfg:       cfg.withDefaults(),
		logger:    logger.With(slog.String("component", "orchestrator")),
	}
}

// Decide runs the full pipeline for one position snapshot: assessment, plan
// optimization, policy validation, then execution hand-off or manual review.
// Stage outputs are immutable once recorded in the returned Decision.
//
// It returns domain.ErrLockHeld when another pipeline already holds the
// position, and domain.ErrNotFound when the user has no stored policy.
func (o *Orchestrator) Decide(ctx context.Context, pos domain.Position, user domain.User) (domain.Decision, error) {
	if err := pos.Validate(); err != nil {
		return domain.Decision{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, o.cfg.DecisionTimeout)
	defer cancel()

	if o.locks != nil {
		unlock, err := o.locks.Acquire(ctx, "position:"+pos.ID, o.cfg.LockTTL)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				o.logger.InfoContext(ctx, "position already being processed",
					slog.String("position_id", pos.ID))
				return domain.Decision{}, err
			}
			return domain.Decision{}, fmt.Errorf("pipeline: lock position %s: %w", pos.ID, err)
		}
		defer unlock()
	}

	userPolicy, err := o.loadPolicy(ctx, user.ID)
	if err != nil {
		return domain.Decision{}, err
	}

	prices, err := o.prices.Snapshot(ctx, pos.Assets())
	if err != nil {
		return domain.Decision{}, fmt.Errorf("pipeline: price snapshot for %s: %w", pos.ID, err)
	}

	incident := domain.Incident{
		ID:         uuid.NewString(),
		PositionID: pos.ID,
		AccountID:  pos.AccountID,
		UserID:     user.ID,
		Status:     domain.IncidentOpen,
		DetectedAt: time.Now(),
	}
	if err := o.createIncident(ctx, incident); err != nil {
		return domain.Decision{}, err
	}

	// Stage 1: risk assessment.
	assessStart := time.Now()
	assessment := o.predictor.Assess(ctx, pos, prices, o.predictor.DefaultParams())
	metrics.AssessmentDuration.Observe(time.Since(assessStart).Seconds())
	if assessment.Status == domain.AssessmentFallback {
		metrics.FallbacksTotal.WithLabelValues("assessment").Inc()
	}

	incident.TTBMinutes = assessment.TTBMinutes
	incident.BreachProbability = assessment.BreachProbability

	if o.notifier != nil && assessment.BreachProbability >= o.cfg.ImminentBreachProb {
		if err := o.notifier.BreachImminent(ctx, incident); err != nil {
			o.logger.WarnContext(ctx, "breach alert failed", slog.String("error", err.Error()))
		}
	}

	// Stage 2: plan optimization.
	optStart := time.Now()
	optimization := o.optimizer.Optimize(ctx, pos, userPolicy, assessment, o.venues)
	metrics.OptimizationDuration.Observe(time.Since(optStart).Seconds())
	if optimization.PrimaryPlan.SolverStatus == domain.SolverFallback {
		metrics.FallbacksTotal.WithLabelValues("optimization").Inc()
	}

	o.persistPlans(ctx, incident.ID, optimization)

	// Stage 3: policy validation of the primary plan.
	validation := o.validator.ValidatePlan(optimization.PrimaryPlan, userPolicy, user)
	for _, v := range validation.Violations {
		metrics.PolicyViolationsTotal.WithLabelValues(v.Rule).Inc()
	}

	decision := domain.Decision{
		Incident:     incident,
		Assessment:   assessment,
		Optimization: optimization,
		Validation:   validation,
	}

	// Stage 4: hand off or park.
	finalStatus := o.finalize(ctx, &decision, userPolicy)
	decision.Incident.Status = finalStatus
	o.setStatus(ctx, incident.ID, finalStatus)
	metrics.IncidentsTotal.WithLabelValues(string(finalStatus)).Inc()

	o.archive(ctx, decision)

	o.logger.InfoContext(ctx, "decision complete",
		slog.String("incident_id", incident.ID),
		slog.String("position_id", pos.ID),
		slog.String("status", string(finalStatus)),
		slog.Float64("ttb_minutes", assessment.TTBMinutes),
		slog.Float64("breach_probability", assessment.BreachProbability),
		slog.Float64("plan_cost_usd", optimization.PrimaryPlan.TotalCostUSD))

	return decision, nil
}

// loadPolicy fetches the user's policy from the store, or errors when no
// store or no policy exists. Acting without an explicit policy is never safe.
func (o *Orchestrator) loadPolicy(ctx context.Context, userID string) (domain.Policy, error) {
	if o.policies == nil {
		return domain.Policy{}, fmt.Errorf("pipeline: no policy store configured: %w", domain.ErrNotFound)
	}
	p, err := o.policies.Get(ctx, userID)
	if err != nil {
		return domain.Policy{}, fmt.Errorf("pipeline: load policy for %s: %w", userID, err)
	}
	return p, nil
}

// finalize decides the terminal incident status. Approved plans go to the
// executor when one is wired; everything else parks for manual review, except
// empty plans on already-safe positions which close out decided.
func (o *Orchestrator) finalize(ctx context.Context, decision *domain.Decision, userPolicy domain.Policy) domain.IncidentStatus {
	primary := decision.Optimization.PrimaryPlan
	inc := decision.Incident

	if !decision.Validation.Approved {
		if decision.Validation.Valid && len(primary.Actions) == 0 {
			// Nothing to do and nothing rejected.
			return domain.IncidentDecided
		}
		if o.notifier != nil {
			if err := o.notifier.ManualReview(ctx, inc, primary, decision.Validation.Violations); err != nil {
				o.logger.WarnContext(ctx, "manual review alert failed", slog.String("error", err.Error()))
			}
		}
		return domain.IncidentManualReview
	}

	if len(primary.Actions) == 0 {
		return domain.IncidentDecided
	}

	if o.notifier != nil {
		if err := o.notifier.PlanApproved(ctx, inc, primary); err != nil {
			o.logger.WarnContext(ctx, "approval alert failed", slog.String("error", err.Error()))
		}
	}

	if o.exec == nil {
		return domain.IncidentDecided
	}

	receipt, err := o.exec.Execute(ctx, primary)
	if err != nil {
		o.logger.ErrorContext(ctx, "plan execution failed",
			slog.String("incident_id", inc.ID),
			slog.String("plan_id", primary.ID),
			slog.String("error", err.Error()))
		if o.notifier != nil {
			_ = o.notifier.ExecutionError(ctx, inc, primary.ID, err)
		}
		return domain.IncidentFailed
	}

	decision.Receipt = &receipt
	metrics.PlansExecutedTotal.Inc()
	return domain.IncidentExecuted
}

// createIncident records the incident row. A missing store disables
// bookkeeping; a store failure aborts the run since later stages could not
// be attributed to anything.
func (o *Orchestrator) createIncident(ctx context.Context, inc domain.Incident) error {
	if o.incidents == nil {
		return nil
	}
	if err := o.incidents.Create(ctx, inc); err != nil {
		return fmt.Errorf("pipeline: create incident for %s: %w", inc.PositionID, err)
	}
	return nil
}

// persistPlans stores the primary plan and alternatives. Failures here are
// logged and dropped; the decision itself is already made.
func (o *Orchestrator) persistPlans(ctx context.Context, incidentID string, opt domain.OptimizationResult) {
	if o.plans == nil {
		return
	}
	if err := o.plans.Insert(ctx, incidentID, opt.PrimaryPlan, true); err != nil {
		o.logger.WarnContext(ctx, "persist primary plan failed",
			slog.String("incident_id", incidentID),
			slog.String("error", err.Error()))
	}
	for _, alt := range opt.AlternativePlans {
		if err := o.plans.Insert(ctx, incidentID, alt, false); err != nil {
			o.logger.WarnContext(ctx, "persist alternative plan failed",
				slog.String("incident_id", incidentID),
				slog.String("error", err.Error()))
		}
	}
	if o.incidents != nil {
		if err := o.incidents.AttachPlan(ctx, incidentID, opt.PrimaryPlan.ID); err != nil {
			o.logger.WarnContext(ctx, "attach plan failed",
				slog.String("incident_id", incidentID),
				slog.String("error", err.Error()))
		}
	}
}

func (o *Orchestrator) setStatus(ctx context.Context, incidentID string, status domain.IncidentStatus) {
	if o.incidents == nil {
		return
	}
	if err := o.incidents.UpdateStatus(ctx, incidentID, status); err != nil {
		o.logger.WarnContext(ctx, "update incident status failed",
			slog.String("incident_id", incidentID),
			slog.String("error", err.Error()))
	}
}

// archive uploads the decision trail. Best effort; archival never blocks a
// decision.
func (o *Orchestrator) archive(ctx context.Context, d domain.Decision) {
	if o.archiver == nil {
		return
	}
	if err := o.archiver.ArchiveDecision(ctx, d); err != nil {
		o.logger.WarnContext(ctx, "archive decision failed",
			slog.String("incident_id", d.Incident.ID),
			slog.String("error", err.Error()))
	}
}
