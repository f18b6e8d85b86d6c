package optimizer

import (
	"context"
	"log/slog"
	"math"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/khadira1937/xligo/internal/domain"
)

// staticPrices is a fixed-map PriceSource for tests.
type staticPrices map[string]float64

func (s staticPrices) Snapshot(_ context.Context, _ []string) (map[string]float64, error) {
	return s, nil
}

func testOptimizer(prices map[string]float64) *Optimizer {
	return NewOptimizer(staticPrices(prices), Config{}, slog.New(slog.DiscardHandler))
}

func ethPosition() domain.Position {
	return domain.Position{
		ID:        "pos-1",
		AccountID: "acct-1",
		Chain:     "ethereum",
		Protocol:  "aave_v3",
		Collateral: []domain.AssetAmount{
			{Symbol: "ETH", Amount: decimal.NewFromInt(10)},
		},
		Debt: []domain.AssetAmount{
			{Symbol: "USDC", Amount: decimal.NewFromInt(15000)},
		},
		HealthFactor:         1.383,
		LiquidationThreshold: 0.83,
	}
}

func permissivePolicy() domain.Policy {
	return domain.Policy{
		UserID:            "user-1",
		MaxPerIncidentUSD: 5000,
		HFTarget:          1.5,
		CriticalHF:        1.1,
		ApprovalMode:      domain.ApprovalAuto,
		CollateralAdd:     true,
		PartialRepay:      true,
		Hedge:             true,
		Migration:         true,
	}
}

var ethPrices = map[string]float64{"ETH": 2500, "USDC": 1}

func optimize(t *testing.T, pos domain.Position, policy domain.Policy) domain.OptimizationResult {
	t.Helper()
	o := testOptimizer(ethPrices)
	return o.Optimize(context.Background(), pos, policy, domain.TimeToBreachResult{BreachProbability: 0.2, Confidence: 0.7}, nil)
}

func TestOptimize_ReferenceScenario(t *testing.T) {
	res := optimize(t, ethPosition(), permissivePolicy())

	if !res.ConstraintsSatisfied {
		t.Fatalf("expected constraints satisfied, warnings: %v", res.Warnings)
	}
	plan := res.PrimaryPlan
	if plan.SolverStatus != domain.SolverOptimal {
		t.Errorf("expected optimal solver status, got %s", plan.SolverStatus)
	}
	if plan.HFAfter < 1.5 {
		t.Errorf("expected hf_after >= 1.5, got %.6f", plan.HFAfter)
	}
	if plan.TotalCostUSD <= 0 {
		t.Errorf("expected a positive total cost, got %.4f", plan.TotalCostUSD)
	}
	if len(plan.Actions) == 0 {
		t.Error("expected at least one protective action")
	}
}

func TestOptimize_PureRepayIsCheapestForReferenceScenario(t *testing.T) {
	// Reaching hf 1.5 needs ~$1167 of repay or ~$2108 of added collateral;
	// with identical venue profiles the smaller principal wins, and blends
	// pay gas twice.
	res := optimize(t, ethPosition(), permissivePolicy())

	plan := res.PrimaryPlan
	if len(plan.Actions) != 1 || plan.Actions[0].Type != domain.ActionRepay {
		t.Fatalf("expected a single repay action, got %+v", plan.Actions)
	}
	if got := plan.Actions[0].Asset; got != "USDC" {
		t.Errorf("expected repay in USDC, got %s", got)
	}
}

func TestOptimize_Idempotent(t *testing.T) {
	o := testOptimizer(ethPrices)
	assessment := domain.TimeToBreachResult{BreachProbability: 0.2, Confidence: 0.7}

	a := o.Optimize(context.Background(), ethPosition(), permissivePolicy(), assessment, nil)
	b := o.Optimize(context.Background(), ethPosition(), permissivePolicy(), assessment, nil)

	if a.PrimaryPlan.TotalCostUSD != b.PrimaryPlan.TotalCostUSD {
		t.Errorf("total cost not deterministic: %.6f vs %.6f",
			a.PrimaryPlan.TotalCostUSD, b.PrimaryPlan.TotalCostUSD)
	}
	if a.PrimaryPlan.HFAfter != b.PrimaryPlan.HFAfter {
		t.Errorf("hf_after not deterministic: %.8f vs %.8f",
			a.PrimaryPlan.HFAfter, b.PrimaryPlan.HFAfter)
	}
}

func TestOptimize_BudgetCapForcesBestEffort(t *testing.T) {
	policy := permissivePolicy()
	policy.MaxPerIncidentUSD = 5 // below even the flat gas estimate

	res := optimize(t, ethPosition(), policy)

	if res.ConstraintsSatisfied {
		t.Error("expected constraints_satisfied=false under a tiny budget")
	}
	if res.PrimaryPlan.SolverStatus != domain.SolverInfeasible {
		t.Errorf("expected infeasible solver status, got %s", res.PrimaryPlan.SolverStatus)
	}
	if res.PrimaryPlan.HFAfter >= 1.5 {
		t.Errorf("best-effort plan should not reach the target, hf_after=%.4f", res.PrimaryPlan.HFAfter)
	}
	if len(res.Warnings) == 0 {
		t.Error("expected a budget warning")
	}
}

func TestOptimize_AddOnlyWhenRepayDisallowed(t *testing.T) {
	policy := permissivePolicy()
	policy.PartialRepay = false

	res := optimize(t, ethPosition(), policy)

	if !res.ConstraintsSatisfied {
		t.Fatalf("expected feasible add-only solution, warnings: %v", res.Warnings)
	}
	plan := res.PrimaryPlan
	if len(plan.Actions) != 1 || plan.Actions[0].Type != domain.ActionAddCollateral {
		t.Fatalf("expected a single add_collateral action, got %+v", plan.Actions)
	}
	if plan.HFAfter < 1.5 {
		t.Errorf("expected hf_after >= 1.5, got %.6f", plan.HFAfter)
	}
}

func TestOptimize_NoAllowedStrategies(t *testing.T) {
	policy := permissivePolicy()
	policy.CollateralAdd = false
	policy.PartialRepay = false
	policy.Hedge = false
	policy.Migration = false

	res := optimize(t, ethPosition(), policy)

	if res.ConstraintsSatisfied {
		t.Error("expected constraints_satisfied=false with every strategy disabled")
	}
	if len(res.PrimaryPlan.Actions) != 0 {
		t.Errorf("expected an empty best-effort plan, got %+v", res.PrimaryPlan.Actions)
	}
	if len(res.Warnings) == 0 {
		t.Error("expected a warning about disabled strategies")
	}
}

func TestOptimize_AlreadySafePosition(t *testing.T) {
	policy := permissivePolicy()
	policy.HFTarget = 1.2 // below the position's hf of ~1.383

	res := optimize(t, ethPosition(), policy)

	if !res.ConstraintsSatisfied {
		t.Error("expected a safe position to satisfy constraints")
	}
	if len(res.PrimaryPlan.Actions) != 0 {
		t.Errorf("expected no actions for a safe position, got %+v", res.PrimaryPlan.Actions)
	}
	if res.PrimaryPlan.TotalCostUSD != 0 {
		t.Errorf("expected zero cost, got %.4f", res.PrimaryPlan.TotalCostUSD)
	}
}

func TestOptimize_HedgeAlternativeGatedByPolicy(t *testing.T) {
	withHedge := optimize(t, ethPosition(), permissivePolicy())

	var hedge *domain.Plan
	for i := range withHedge.AlternativePlans {
		if len(withHedge.AlternativePlans[i].Actions) == 1 &&
			withHedge.AlternativePlans[i].Actions[0].Type == domain.ActionHedge {
			hedge = &withHedge.AlternativePlans[i]
		}
	}
	if hedge == nil {
		t.Fatal("expected a hedge alternative when hedging is allowed")
	}
	if hedge.RiskReduction != 0.3 {
		t.Errorf("expected hedge risk_reduction 0.3, got %.2f", hedge.RiskReduction)
	}
	// Hedge notional: 30% of the $25000 collateral value, in ETH units.
	wantUnits := 0.3 * 25000 / 2500
	if got := hedge.Actions[0].Amount; math.Abs(got-wantUnits) > 1e-9 {
		t.Errorf("expected hedge size %.2f ETH, got %.4f", wantUnits, got)
	}

	policy := permissivePolicy()
	policy.Hedge = false
	withoutHedge := optimize(t, ethPosition(), policy)
	for _, alt := range withoutHedge.AlternativePlans {
		for _, a := range alt.Actions {
			if a.Type == domain.ActionHedge {
				t.Error("hedge alternative present despite hedge_allowed=false")
			}
		}
	}
}

func TestOptimize_AlternativeConfidences(t *testing.T) {
	res := optimize(t, ethPosition(), permissivePolicy())

	var sawConservative, sawAggressive bool
	for _, alt := range res.AlternativePlans {
		if len(alt.Actions) != 1 {
			continue
		}
		switch alt.Actions[0].Type {
		case domain.ActionAddCollateral:
			sawConservative = true
			if alt.Confidence != 0.95 {
				t.Errorf("conservative alternative confidence: want 0.95, got %.2f", alt.Confidence)
			}
			if alt.HFAfter < 1.5 {
				t.Errorf("conservative alternative should clear the target, hf_after=%.4f", alt.HFAfter)
			}
		case domain.ActionRepay:
			sawAggressive = true
			if alt.Confidence != 0.75 {
				t.Errorf("aggressive alternative confidence: want 0.75, got %.2f", alt.Confidence)
			}
		}
	}
	if !sawConservative || !sawAggressive {
		t.Errorf("expected conservative and aggressive alternatives, got %d plans", len(res.AlternativePlans))
	}
}

func TestOptimize_BalanceSheetPlansNeverLowerHF(t *testing.T) {
	policies := []domain.Policy{permissivePolicy()}
	repayOnly := permissivePolicy()
	repayOnly.CollateralAdd = false
	addOnly := permissivePolicy()
	addOnly.PartialRepay = false
	policies = append(policies, repayOnly, addOnly)

	pos := ethPosition()
	for _, policy := range policies {
		res := optimize(t, pos, policy)
		balanceSheetOnly := true
		for _, a := range res.PrimaryPlan.Actions {
			if a.Type != domain.ActionAddCollateral && a.Type != domain.ActionRepay {
				balanceSheetOnly = false
			}
		}
		if balanceSheetOnly && res.PrimaryPlan.HFAfter < pos.HealthFactor {
			t.Errorf("balance-sheet plan lowered hf: %.4f < %.4f", res.PrimaryPlan.HFAfter, pos.HealthFactor)
		}
	}
}

func TestOptimize_BlockedVenueRerouted(t *testing.T) {
	policy := permissivePolicy()
	policy.BlockedVenues = []string{"aave_v3"}

	res := optimize(t, ethPosition(), policy)

	if !res.ConstraintsSatisfied {
		t.Fatalf("expected a feasible plan on an alternate venue, warnings: %v", res.Warnings)
	}
	for _, a := range res.PrimaryPlan.Actions {
		if a.Venue == "aave_v3" {
			t.Errorf("action routed through blocked venue: %+v", a)
		}
	}
}

func TestOptimize_FallbackOnPriceFailure(t *testing.T) {
	o := NewOptimizer(failingPrices{}, Config{}, slog.New(slog.DiscardHandler))
	res := o.Optimize(context.Background(), ethPosition(), permissivePolicy(), domain.TimeToBreachResult{}, nil)

	plan := res.PrimaryPlan
	if plan.SolverStatus != domain.SolverFallback {
		t.Fatalf("expected fallback solver status, got %s", plan.SolverStatus)
	}
	if plan.Confidence != 0.5 {
		t.Errorf("expected fallback confidence 0.5, got %.2f", plan.Confidence)
	}
	if len(plan.Actions) != 1 || plan.Actions[0].Type != domain.ActionAddCollateral {
		t.Errorf("expected a single small add_collateral fallback action, got %+v", plan.Actions)
	}
	if res.ConstraintsSatisfied {
		t.Error("fallback result should not claim satisfied constraints")
	}
}

type failingPrices struct{}

func (failingPrices) Snapshot(_ context.Context, _ []string) (map[string]float64, error) {
	return nil, context.DeadlineExceeded
}
