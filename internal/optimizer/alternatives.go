package optimizer

import (
	"math"

	"github.com/khadira1937/xligo/internal/domain"
)

// alternatives derives the named plan variants from the solved state. Each is
// generated deterministically so repeated optimizations rank identically:
//
//   - conservative: 1.5× the collateral add a pure-add solution needs,
//     trading cost for safety margin
//   - aggressive: the minimal repay that exactly reaches the target,
//     leaving no buffer
//   - hedge: a short hedge sized at 30% of collateral value, only when the
//     policy allows hedging and a perpetual venue is available
func (o *Optimizer) alternatives(pos domain.Position, policy domain.Policy, assessment domain.TimeToBreachResult, venues []domain.Venue, prices map[string]float64, st solveState) []domain.Plan {
	var out []domain.Plan

	if st.addNeeded > 0 && st.addLever.usable {
		addUSD := 1.5 * st.addNeeded
		action := makeAction(domain.ActionAddCollateral, st.addLever, addUSD)
		plan := o.newPlan([]domain.Action{action}, st.hf, st.projectedHF(addUSD, 0), assessment, domain.SolverOptimal, 0.95)
		out = append(out, plan)
	}

	if st.repayNeeded > 0 && st.repayNeeded < st.debt && st.repayLever.usable {
		action := makeAction(domain.ActionRepay, st.repayLever, st.repayNeeded)
		plan := o.newPlan([]domain.Action{action}, st.hf, st.projectedHF(0, st.repayNeeded), assessment, domain.SolverOptimal, 0.75)
		out = append(out, plan)
	}

	if policy.Hedge {
		if plan, ok := o.hedgePlan(pos, policy, assessment, venues, prices, st); ok {
			out = append(out, plan)
		}
	}

	return out
}

// hedgePlan opens a short perp position against the dominant collateral asset
// sized at 30% of the raw (pre-haircut) collateral value. It does not move
// the health factor; its value is reduced downside exposure.
func (o *Optimizer) hedgePlan(pos domain.Position, policy domain.Policy, assessment domain.TimeToBreachResult, venues []domain.Venue, prices map[string]float64, st solveState) (domain.Plan, bool) {
	var hedgeAsset string
	var hedgePrice, rawValue, bestValue float64
	for _, c := range pos.Collateral {
		price, ok := prices[c.Symbol]
		if !ok || price <= 0 {
			continue
		}
		value := c.ValueUSD(price)
		rawValue += value
		if value > bestValue {
			hedgeAsset, hedgePrice, bestValue = c.Symbol, price, value
		}
	}
	if hedgeAsset == "" || rawValue <= 0 || !policy.AssetAllowed(hedgeAsset) {
		return domain.Plan{}, false
	}

	notional := 0.3 * rawValue
	venue, ok := requireVenueClass(venues, policy, domain.VenuePerpetual, math.Max(notional, slippageFlatThresholdUSD))
	if !ok {
		return domain.Plan{}, false
	}

	lv := lever{venue: venue, asset: hedgeAsset, price: hedgePrice, usable: true}
	action := makeAction(domain.ActionHedge, lv, notional)

	plan := o.newPlan([]domain.Action{action}, st.hf, st.hf, assessment, domain.SolverOptimal, 0.8)
	plan.RiskReduction = 0.3
	plan.CanBeNetted = false
	return plan, true
}
