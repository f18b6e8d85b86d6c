package policy

import (
	"log/slog"
	"strings"
	"testing"

	"github.com/khadira1937/xligo/internal/domain"
)

func testValidator() *Validator {
	return NewValidator(slog.New(slog.DiscardHandler))
}

func basePolicy() domain.Policy {
	return domain.Policy{
		UserID:            "user-1",
		MaxPerIncidentUSD: 500,
		HFTarget:          1.5,
		ApprovalMode:      domain.ApprovalAuto,
		CollateralAdd:     true,
		PartialRepay:      true,
		Hedge:             true,
		Migration:         true,
	}
}

func addAction() domain.Action {
	return domain.Action{
		Type:             domain.ActionAddCollateral,
		Asset:            "ETH",
		Amount:           0.5,
		Venue:            "aave_v3",
		EstimatedCostUSD: 12,
	}
}

var testUser = domain.User{ID: "user-1", Address: "0x8ba1f109551bD432803012645Ac136ddd64DBA72"}

func TestValidateAction_DisallowedStrategySingleViolation(t *testing.T) {
	v := testValidator()
	policy := basePolicy()
	policy.CollateralAdd = false

	violations := v.ValidateAction(addAction(), policy, testUser)

	if len(violations) != 1 {
		t.Fatalf("expected exactly one violation, got %d: %v", len(violations), violations)
	}
	if !strings.Contains(violations[0].Message, "not allowed by policy") {
		t.Errorf("violation should cite policy: %q", violations[0].Message)
	}
}

func TestValidateAction_VenueAndAssetRules(t *testing.T) {
	v := testValidator()

	tests := []struct {
		name   string
		mutate func(*domain.Policy)
		want   int
	}{
		{"clean", func(p *domain.Policy) {}, 0},
		{"blocked venue", func(p *domain.Policy) { p.BlockedVenues = []string{"aave_v3"} }, 1},
		{"allowlist excludes venue", func(p *domain.Policy) { p.AllowedVenues = []string{"uniswap_v3"} }, 1},
		{"allowlist includes venue", func(p *domain.Policy) { p.AllowedVenues = []string{"aave_v3"} }, 0},
		{"blocked asset", func(p *domain.Policy) { p.BlockedAssets = []string{"ETH"} }, 1},
		{"allowlist excludes asset", func(p *domain.Policy) { p.AllowedAssets = []string{"USDC"} }, 1},
		{"blocked venue and asset accumulate", func(p *domain.Policy) {
			p.BlockedVenues = []string{"aave_v3"}
			p.BlockedAssets = []string{"ETH"}
		}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy := basePolicy()
			tt.mutate(&policy)
			violations := v.ValidateAction(addAction(), policy, testUser)
			if len(violations) != tt.want {
				t.Errorf("expected %d violations, got %d: %v", tt.want, len(violations), violations)
			}
		})
	}
}

func TestValidateAction_StrategyBooleans(t *testing.T) {
	v := testValidator()

	types := []struct {
		actionType domain.ActionType
		disable    func(*domain.Policy)
	}{
		{domain.ActionAddCollateral, func(p *domain.Policy) { p.CollateralAdd = false }},
		{domain.ActionRepay, func(p *domain.Policy) { p.PartialRepay = false }},
		{domain.ActionHedge, func(p *domain.Policy) { p.Hedge = false }},
		{domain.ActionMigrate, func(p *domain.Policy) { p.Migration = false }},
	}

	for _, tt := range types {
		action := addAction()
		action.Type = tt.actionType

		allowed := basePolicy()
		if got := v.ValidateAction(action, allowed, testUser); len(got) != 0 {
			t.Errorf("%s: expected no violations when allowed, got %v", tt.actionType, got)
		}

		disallowed := basePolicy()
		tt.disable(&disallowed)
		if got := v.ValidateAction(action, disallowed, testUser); len(got) != 1 {
			t.Errorf("%s: expected one violation when disabled, got %v", tt.actionType, got)
		}
	}
}

func planWith(actions []domain.Action, cost, confidence float64) domain.Plan {
	return domain.Plan{
		ID:           "plan-1",
		Actions:      actions,
		TotalCostUSD: cost,
		Confidence:   confidence,
		SolverStatus: domain.SolverOptimal,
	}
}

func TestValidatePlan_ValidIffNoViolations(t *testing.T) {
	v := testValidator()

	clean := v.ValidatePlan(planWith([]domain.Action{addAction()}, 12, 0.8), basePolicy(), testUser)
	if !clean.Valid || len(clean.Violations) != 0 {
		t.Errorf("clean plan: valid=%v violations=%v", clean.Valid, clean.Violations)
	}
	if !clean.Approved {
		t.Error("clean plan in auto mode should be approved")
	}

	over := v.ValidatePlan(planWith([]domain.Action{addAction()}, 9999, 0.8), basePolicy(), testUser)
	if over.Valid {
		t.Error("over-budget plan should be invalid")
	}
	if over.Approved {
		t.Error("invalid plan must not be approved")
	}
	if len(over.Violations) == 0 {
		t.Error("expected a max_per_incident violation")
	}
}

func TestValidatePlan_ManualModeNeverAutoApproves(t *testing.T) {
	v := testValidator()
	policy := basePolicy()
	policy.ApprovalMode = domain.ApprovalManual

	res := v.ValidatePlan(planWith([]domain.Action{addAction()}, 12, 0.9), policy, testUser)

	if !res.Valid {
		t.Errorf("manual mode should not invalidate a clean plan: %v", res.Violations)
	}
	if res.Approved {
		t.Error("manual mode must never auto-approve")
	}
}

func TestValidatePlan_ConfidenceGate(t *testing.T) {
	v := testValidator()
	policy := basePolicy()
	policy.ApprovalMode = domain.ApprovalAutoIfConfidence
	policy.ApprovalThreshold = 0.7

	low := v.ValidatePlan(planWith([]domain.Action{addAction()}, 12, 0.6), policy, testUser)
	if low.Valid || low.Approved {
		t.Error("plan below the confidence threshold should be flagged and unapproved")
	}
	if len(low.Violations) != 1 || low.Violations[0].Rule != "approval_confidence" {
		t.Errorf("expected one approval_confidence violation, got %v", low.Violations)
	}

	high := v.ValidatePlan(planWith([]domain.Action{addAction()}, 12, 0.8), policy, testUser)
	if !high.Valid || !high.Approved {
		t.Errorf("plan above the confidence threshold should be approved, got %+v", high)
	}
}

func TestValidatePlan_ViolationsAccumulateAcrossActions(t *testing.T) {
	v := testValidator()
	policy := basePolicy()
	policy.CollateralAdd = false
	policy.PartialRepay = false

	repay := addAction()
	repay.Type = domain.ActionRepay
	repay.Asset = "USDC"

	res := v.ValidatePlan(planWith([]domain.Action{addAction(), repay}, 12, 0.8), policy, testUser)

	if len(res.Violations) != 2 {
		t.Errorf("expected two accumulated violations, got %d: %v", len(res.Violations), res.Violations)
	}
}

func TestValidatePlan_DoesNotMutateInputs(t *testing.T) {
	v := testValidator()
	policy := basePolicy()
	plan := planWith([]domain.Action{addAction()}, 12, 0.8)

	before := plan.Actions[0]
	_ = v.ValidatePlan(plan, policy, testUser)

	if plan.Actions[0] != before {
		t.Error("validation mutated the plan's actions")
	}
}
