// Package optimizer synthesizes cost-minimal protective action plans. The
// decision variables are the USD amount of collateral to add and the USD
// amount of debt to repay; candidates blending the two levers are enumerated
// in closed form and compared by total cost.
package optimizer

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/khadira1937/xligo/internal/domain"
)

// blendFractions are the add-collateral shares of the health-factor deficit
// evaluated as plan candidates; 1 is a pure collateral add, 0 a pure repay.
var blendFractions = []float64{0, 0.25, 0.5, 0.75, 1}

// Config holds optimizer tunables.
type Config struct {
	// MinActionUSD is the smallest principal worth routing; candidates below
	// it are dropped as noise.
	MinActionUSD float64
	// FallbackSpendUSD sizes the minimal protective action in the fallback
	// plan emitted after an internal failure.
	FallbackSpendUSD float64
}

func (c Config) withDefaults() Config {
	if c.MinActionUSD <= 0 {
		c.MinActionUSD = 10
	}
	if c.FallbackSpendUSD <= 0 {
		c.FallbackSpendUSD = 100
	}
	return c
}

// Optimizer produces OptimizationResults for at-risk positions. The price
// source is injected once at composition time; tests use a static source.
type Optimizer struct {
	prices domain.PriceSource
	cfg    Config
	logger *slog.Logger
}

// NewOptimizer creates an Optimizer that values positions through the given
// price source.
func NewOptimizer(prices domain.PriceSource, cfg Config, logger *slog.Logger) *Optimizer {
	return &Optimizer{
		prices: prices,
		cfg:    cfg.withDefaults(),
		logger: logger.With(slog.String("component", "plan_optimizer")),
	}
}

// lever is one sized decision variable bound to a venue and asset.
type lever struct {
	venue  domain.Venue
	asset  string
	price  float64
	usable bool
}

// candidate is a fully costed (add, repay) pair.
type candidate struct {
	addUSD   float64
	repayUSD float64
	cost     float64
}

// Optimize finds the minimum-cost action combination that lifts the projected
// health factor to the policy target, subject to allowed strategies, venue and
// asset lists, and the per-incident spend cap. It never returns an error: when
// no feasible combination exists the best-effort plan is returned with
// ConstraintsSatisfied=false, and internal failures degrade to a minimal
// fallback plan so downstream validation always has something to evaluate.
func (o *Optimizer) Optimize(ctx context.Context, pos domain.Position, policy domain.Policy, assessment domain.TimeToBreachResult, venues []domain.Venue) (res domain.OptimizationResult) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			o.logger.ErrorContext(ctx, "optimization panicked, using fallback plan",
				slog.String("position_id", pos.ID),
				slog.Any("panic", r),
			)
			res = o.fallbackResult(pos, policy, start)
		}
	}()

	if len(venues) == 0 {
		venues = DefaultVenues()
	}

	prices, err := o.prices.Snapshot(ctx, pos.Assets())
	if err != nil {
		o.logger.WarnContext(ctx, "price snapshot failed, using fallback plan",
			slog.String("position_id", pos.ID),
			slog.String("error", err.Error()),
		)
		return o.fallbackResult(pos, policy, start)
	}

	collateral := pos.CollateralValueUSD(prices) // haircut-adjusted
	debt := pos.DebtValueUSD(prices)
	if debt <= 0 {
		return o.fallbackResult(pos, policy, start)
	}
	hf := collateral / debt

	target := policy.HFTarget
	if target <= 0 {
		target = 1.5
	}

	var warnings []string

	// Already at or above target: an empty plan is optimal.
	if hf >= target {
		plan := o.newPlan(nil, hf, hf, assessment, domain.SolverOptimal, 0.9)
		return domain.OptimizationResult{
			PrimaryPlan:          plan,
			AlternativePlans:     o.alternatives(pos, policy, assessment, venues, prices, solveState{hf: hf, target: target, collateral: collateral, debt: debt}),
			OptimizationTimeMs:   msSince(start),
			ObjectiveValue:       0,
			ConstraintsSatisfied: true,
			Warnings:             warnings,
		}
	}

	// The relative overshoot keeps the projected health factor at or above
	// the target under float rounding of the closed-form amounts.
	const overshoot = 1 + 1e-6

	st := solveState{
		hf:          hf,
		target:      target,
		collateral:  collateral,
		debt:        debt,
		lt:          pos.LiquidationThreshold,
		addNeeded:   overshoot * (target*debt - collateral) / pos.LiquidationThreshold,
		repayNeeded: overshoot * (debt - collateral/target),
	}

	st.addLever = o.buildLever(pos.Collateral, prices, policy, venues, domain.VenueLending, st.addNeeded, policy.CollateralAdd)
	st.repayLever = o.buildLever(pos.Debt, prices, policy, venues, domain.VenueLending, st.repayNeeded, policy.PartialRepay)

	if !st.addLever.usable && !st.repayLever.usable {
		warnings = append(warnings, "no allowed strategy can improve the health factor")
		plan := o.newPlan(nil, hf, hf, assessment, domain.SolverInfeasible, 0.6)
		return domain.OptimizationResult{
			PrimaryPlan:          plan,
			AlternativePlans:     o.alternatives(pos, policy, assessment, venues, prices, st),
			OptimizationTimeMs:   msSince(start),
			ObjectiveValue:       0,
			ConstraintsSatisfied: false,
			Warnings:             warnings,
		}
	}

	best, found := o.bestCandidate(st)
	if !found {
		// Both levers exist but every blend degenerated (e.g. repay alone
		// cannot reach the target and adds are disallowed).
		warnings = append(warnings, "no candidate reaches the health factor target")
	}

	satisfied := found
	status := domain.SolverOptimal
	confidence := 0.85

	if found && policy.MaxPerIncidentUSD > 0 && best.cost > policy.MaxPerIncidentUSD {
		best = o.scaleToBudget(best, st, policy.MaxPerIncidentUSD)
		satisfied = false
		status = domain.SolverInfeasible
		confidence = 0.6
		warnings = append(warnings, fmt.Sprintf(
			"target unreachable within per-incident budget of $%.2f", policy.MaxPerIncidentUSD))
	}
	if !found {
		status = domain.SolverInfeasible
		confidence = 0.6
	}

	actions := o.buildActions(best, st)
	hfAfter := st.projectedHF(best.addUSD, best.repayUSD)
	plan := o.newPlan(actions, hf, hfAfter, assessment, status, confidence)

	return domain.OptimizationResult{
		PrimaryPlan:          plan,
		AlternativePlans:     o.alternatives(pos, policy, assessment, venues, prices, st),
		OptimizationTimeMs:   msSince(start),
		ObjectiveValue:       plan.TotalCostUSD,
		ConstraintsSatisfied: satisfied,
		Warnings:             warnings,
	}
}

// solveState carries the valuation inputs shared by candidate generation,
// budget scaling, and alternative synthesis.
type solveState struct {
	hf          float64
	target      float64
	collateral  float64 // haircut-adjusted USD
	debt        float64 // USD
	lt          float64
	addNeeded   float64 // USD of collateral for a pure add
	repayNeeded float64 // USD of debt for a pure repay
	addLever    lever
	repayLever  lever
}

// projectedHF is the health factor after adding addUSD of collateral and
// repaying repayUSD of debt.
func (st solveState) projectedHF(addUSD, repayUSD float64) float64 {
	newDebt := st.debt - repayUSD
	if newDebt <= 0 {
		return math.Inf(1)
	}
	return (st.collateral + st.lt*addUSD) / newDebt
}

// bestCandidate enumerates the blend fractions and returns the cheapest
// candidate that reaches the target using only usable levers.
func (o *Optimizer) bestCandidate(st solveState) (candidate, bool) {
	var best candidate
	bestCost := math.Inf(1)
	found := false

	for _, alpha := range blendFractions {
		repayUSD := (1 - alpha) * st.repayNeeded
		if repayUSD < 0 {
			repayUSD = 0
		}
		if repayUSD > 0 && !st.repayLever.usable {
			continue
		}
		if repayUSD >= st.debt {
			repayUSD = st.debt * 0.999
		}

		// Whatever the repay leg leaves uncovered is closed by collateral.
		addUSD := (1 + 1e-6) * (st.target*(st.debt-repayUSD) - st.collateral) / st.lt
		if addUSD < 0 {
			addUSD = 0
		}
		if addUSD > 0 && !st.addLever.usable {
			continue
		}
		if st.projectedHF(addUSD, repayUSD) < st.target-1e-9 {
			continue
		}

		c := candidate{addUSD: addUSD, repayUSD: repayUSD}
		c.cost = o.candidateCost(c, st)
		if c.cost < bestCost {
			best, bestCost, found = c, c.cost, true
		}
	}
	return best, found
}

func (o *Optimizer) candidateCost(c candidate, st solveState) float64 {
	var total float64
	if c.addUSD >= o.cfg.MinActionUSD {
		cost, _, _ := actionCost(st.addLever.venue, c.addUSD)
		total += cost
	}
	if c.repayUSD >= o.cfg.MinActionUSD {
		cost, _, _ := actionCost(st.repayLever.venue, c.repayUSD)
		total += cost
	}
	return total
}

// scaleToBudget shrinks a candidate until its cost fits the per-incident cap.
// Cost is monotone in the scale factor, so a bisection converges quickly.
func (o *Optimizer) scaleToBudget(c candidate, st solveState, capUSD float64) candidate {
	lo, hi := 0.0, 1.0
	for i := 0; i < 40; i++ {
		mid := (lo + hi) / 2
		scaled := candidate{addUSD: c.addUSD * mid, repayUSD: c.repayUSD * mid}
		if o.candidateCost(scaled, st) <= capUSD {
			lo = mid
		} else {
			hi = mid
		}
	}
	out := candidate{addUSD: c.addUSD * lo, repayUSD: c.repayUSD * lo}
	out.cost = o.candidateCost(out, st)
	return out
}

// buildLever selects the asset and venue for one decision variable. The asset
// is the largest-value policy-allowed entry of the given balance-sheet side.
func (o *Optimizer) buildLever(side []domain.AssetAmount, prices map[string]float64, policy domain.Policy, venues []domain.Venue, class domain.VenueClass, refSizeUSD float64, allowed bool) lever {
	if !allowed {
		return lever{}
	}

	var best lever
	bestValue := -1.0
	for _, a := range side {
		price, ok := prices[a.Symbol]
		if !ok || price <= 0 || !policy.AssetAllowed(a.Symbol) {
			continue
		}
		if value := a.ValueUSD(price); value > bestValue {
			best = lever{asset: a.Symbol, price: price}
			bestValue = value
		}
	}
	if bestValue < 0 {
		return lever{}
	}

	venue, ok := chooseVenue(venues, policy, class, math.Max(refSizeUSD, slippageFlatThresholdUSD))
	if !ok {
		return lever{}
	}
	best.venue = venue
	best.usable = true
	return best
}

// buildActions materializes a candidate into concrete actions, repay first so
// freed borrowing capacity lands before new collateral.
func (o *Optimizer) buildActions(c candidate, st solveState) []domain.Action {
	var actions []domain.Action
	if c.repayUSD >= o.cfg.MinActionUSD && st.repayLever.usable {
		actions = append(actions, makeAction(domain.ActionRepay, st.repayLever, c.repayUSD))
	}
	if c.addUSD >= o.cfg.MinActionUSD && st.addLever.usable {
		actions = append(actions, makeAction(domain.ActionAddCollateral, st.addLever, c.addUSD))
	}
	return actions
}

func makeAction(t domain.ActionType, lv lever, principalUSD float64) domain.Action {
	cost, gas, slip := actionCost(lv.venue, principalUSD)
	return domain.Action{
		Type:             t,
		Asset:            lv.asset,
		Amount:           principalUSD / lv.price,
		Venue:            lv.venue.ID,
		EstimatedCostUSD: cost,
		EstimatedGas:     gas,
		SlippageImpact:   slip,
		RouteInfo:        fmt.Sprintf("%s %s via %s", t, lv.asset, lv.venue.Name),
	}
}

// newPlan assembles an immutable Plan from its actions and projections.
func (o *Optimizer) newPlan(actions []domain.Action, hfBefore, hfAfter float64, assessment domain.TimeToBreachResult, status domain.SolverStatus, confidence float64) domain.Plan {
	var totalCost, totalGas float64
	balanceSheetOnly := true
	for _, a := range actions {
		totalCost += a.EstimatedCostUSD
		totalGas += a.EstimatedGas
		if a.Type != domain.ActionAddCollateral && a.Type != domain.ActionRepay {
			balanceSheetOnly = false
		}
	}

	riskReduction := 0.0
	if hfBefore > 0 && hfAfter > hfBefore {
		riskReduction = math.Min(1, (hfAfter-hfBefore)/hfBefore)
	}

	return domain.Plan{
		ID:              uuid.NewString(),
		Actions:         actions,
		TotalCostUSD:    totalCost,
		TotalGasCost:    totalGas,
		HFAfter:         hfAfter,
		RiskReduction:   riskReduction,
		Confidence:      confidence,
		SolverStatus:    status,
		CanBeNetted:     balanceSheetOnly && len(actions) > 0,
		NettingPriority: assessment.BreachProbability,
		CreatedAt:       time.Now().UTC(),
	}
}

// fallbackResult is the degraded output emitted when optimization cannot run:
// a single small collateral add that keeps downstream validation supplied.
func (o *Optimizer) fallbackResult(pos domain.Position, policy domain.Policy, start time.Time) domain.OptimizationResult {
	spend := o.cfg.FallbackSpendUSD
	if policy.MaxPerIncidentUSD > 0 {
		spend = math.Min(spend, policy.MaxPerIncidentUSD)
	}

	asset := "USDC"
	if len(pos.Collateral) > 0 {
		asset = pos.Collateral[0].Symbol
	}
	venue := DefaultVenues()[1] // lending
	cost, gas, slip := actionCost(venue, spend)

	plan := domain.Plan{
		ID: uuid.NewString(),
		Actions: []domain.Action{{
			Type:             domain.ActionAddCollateral,
			Asset:            asset,
			Amount:           spend, // valued 1:1, prices unavailable
			Venue:            venue.ID,
			EstimatedCostUSD: cost,
			EstimatedGas:     gas,
			SlippageImpact:   slip,
			RouteInfo:        fmt.Sprintf("fallback add_collateral %s via %s", asset, venue.Name),
		}},
		TotalCostUSD:    cost,
		TotalGasCost:    gas,
		HFAfter:         pos.HealthFactor,
		RiskReduction:   0,
		Confidence:      0.5,
		SolverStatus:    domain.SolverFallback,
		CanBeNetted:     true,
		NettingPriority: 1,
		CreatedAt:       time.Now().UTC(),
	}

	return domain.OptimizationResult{
		PrimaryPlan:          plan,
		OptimizationTimeMs:   msSince(start),
		ObjectiveValue:       plan.TotalCostUSD,
		ConstraintsSatisfied: false,
		Warnings:             []string{"optimizer degraded to fallback plan"},
	}
}

func msSince(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}
