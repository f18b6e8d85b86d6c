// Package policy enforces user-defined constraints on plans before they can
// be handed to an executor. Validation is pure: it accumulates violations
// without short-circuiting and never mutates the plan, policy, or user.
package policy

import (
	"fmt"
	"log/slog"

	"github.com/khadira1937/xligo/internal/domain"
)

// Validator checks plans and actions against a user's policy.
type Validator struct {
	logger *slog.Logger
}

// NewValidator creates a Validator.
func NewValidator(logger *slog.Logger) *Validator {
	return &Validator{
		logger: logger.With(slog.String("component", "policy_validator")),
	}
}

// ValidateAction checks a single action against the policy and returns every
// violated rule.
func (v *Validator) ValidateAction(action domain.Action, policy domain.Policy, user domain.User) []domain.Violation {
	var violations []domain.Violation

	if !policy.StrategyAllowed(action.Type) {
		violations = append(violations, domain.Violation{
			Rule:    "strategy",
			Message: fmt.Sprintf("action type %s not allowed by policy", action.Type),
		})
	}

	if action.Venue != "" && !policy.VenueAllowed(action.Venue) {
		violations = append(violations, domain.Violation{
			Rule:    "venue",
			Message: fmt.Sprintf("venue %s not allowed by policy", action.Venue),
		})
	}

	if action.Asset != "" && !policy.AssetAllowed(action.Asset) {
		violations = append(violations, domain.Violation{
			Rule:    "asset",
			Message: fmt.Sprintf("asset %s not allowed by policy", action.Asset),
		})
	}

	return violations
}

// ValidatePlan checks every action plus the plan-level rules and decides
// whether the plan can be auto-approved. Valid is true iff no rule was
// violated; Approved additionally requires an approval mode that permits
// automatic execution.
func (v *Validator) ValidatePlan(plan domain.Plan, policy domain.Policy, user domain.User) domain.ValidationResult {
	var violations []domain.Violation

	if policy.MaxPerIncidentUSD > 0 && plan.TotalCostUSD > policy.MaxPerIncidentUSD {
		violations = append(violations, domain.Violation{
			Rule: "max_per_incident",
			Message: fmt.Sprintf("plan cost $%.2f exceeds per-incident limit $%.2f",
				plan.TotalCostUSD, policy.MaxPerIncidentUSD),
		})
	}

	for i, action := range plan.Actions {
		for _, violation := range v.ValidateAction(action, policy, user) {
			violation.Message = fmt.Sprintf("action %d: %s", i, violation.Message)
			violations = append(violations, violation)
		}
	}

	if policy.ApprovalMode == domain.ApprovalAutoIfConfidence && plan.Confidence < policy.ApprovalThreshold {
		violations = append(violations, domain.Violation{
			Rule: "approval_confidence",
			Message: fmt.Sprintf("plan confidence %.2f below approval threshold %.2f",
				plan.Confidence, policy.ApprovalThreshold),
		})
	}

	valid := len(violations) == 0
	approved := valid && policy.ApprovalMode != domain.ApprovalManual

	if !valid {
		v.logger.Debug("plan rejected by policy",
			slog.String("plan_id", plan.ID),
			slog.String("user_id", user.ID),
			slog.Int("violations", len(violations)),
		)
	}

	return domain.ValidationResult{
		Valid:      valid,
		Violations: violations,
		Approved:   approved,
	}
}
