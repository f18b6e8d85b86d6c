package domain

import "slices"

// ApprovalMode controls whether a validated plan may be auto-approved.
type ApprovalMode string

const (
	ApprovalAuto             ApprovalMode = "auto"
	ApprovalManual           ApprovalMode = "manual"
	ApprovalAutoIfConfidence ApprovalMode = "auto_if_confidence_ge"
)

// Policy holds a user's protection constraints. It is read-only during a
// decision cycle; the validator never mutates it.
type Policy struct {
	UserID             string       `json:"user_id"`
	MaxDailySpendUSD   float64      `json:"max_daily_spend_usd"`
	MaxPerIncidentUSD  float64      `json:"max_per_incident_usd"`
	HFTarget           float64      `json:"hf_target"`
	CriticalHF         float64      `json:"critical_hf"`
	ApprovalMode       ApprovalMode `json:"approval_mode"`
	ApprovalThreshold  float64      `json:"approval_threshold"`
	AllowedVenues      []string     `json:"allowed_venues"`
	BlockedVenues      []string     `json:"blocked_venues"`
	AllowedAssets      []string     `json:"allowed_assets"`
	BlockedAssets      []string     `json:"blocked_assets"`
	CollateralAdd      bool         `json:"collateral_add_allowed"`
	PartialRepay       bool         `json:"partial_repay_allowed"`
	Hedge              bool         `json:"hedge_allowed"`
	Migration          bool         `json:"migration_allowed"`
}

// VenueAllowed reports whether a venue passes the allow/block lists. A blocked
// venue always fails; a non-empty allow list admits only its members.
func (p Policy) VenueAllowed(venue string) bool {
	if slices.Contains(p.BlockedVenues, venue) {
		return false
	}
	if len(p.AllowedVenues) > 0 {
		return slices.Contains(p.AllowedVenues, venue)
	}
	return true
}

// AssetAllowed reports whether an asset passes the allow/block lists.
func (p Policy) AssetAllowed(asset string) bool {
	if slices.Contains(p.BlockedAssets, asset) {
		return false
	}
	if len(p.AllowedAssets) > 0 {
		return slices.Contains(p.AllowedAssets, asset)
	}
	return true
}

// StrategyAllowed reports whether the given action type is enabled by the
// per-strategy policy booleans.
func (p Policy) StrategyAllowed(t ActionType) bool {
	switch t {
	case ActionAddCollateral:
		return p.CollateralAdd
	case ActionRepay:
		return p.PartialRepay
	case ActionHedge:
		return p.Hedge
	case ActionMigrate:
		return p.Migration
	default:
		return false
	}
}

// User identifies the owner of a policy and position. The account address is
// stored in EIP-55 checksummed form.
type User struct {
	ID      string `json:"user_id"`
	Address string `json:"address"`
}

// Violation is a single failed policy rule. Violations accumulate; validation
// never short-circuits on the first failure.
type Violation struct {
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// ValidationResult is the outcome of validating a plan against a policy.
type ValidationResult struct {
	Valid      bool        `json:"valid"`
	Violations []Violation `json:"violations"`
	Approved   bool        `json:"approved"`
}
