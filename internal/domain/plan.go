package domain

import "time"

// ActionType enumerates the protective actions the optimizer can propose.
type ActionType string

const (
	ActionAddCollateral ActionType = "add_collateral"
	ActionRepay         ActionType = "repay"
	ActionHedge         ActionType = "hedge"
	ActionMigrate       ActionType = "migrate"
)

// SolverStatus records how the optimizer arrived at a plan.
type SolverStatus string

const (
	SolverOptimal    SolverStatus = "optimal"
	SolverInfeasible SolverStatus = "infeasible"
	SolverFallback   SolverStatus = "fallback"
)

// Action is the atomic unit of a plan. It is never mutated after creation.
type Action struct {
	Type             ActionType `json:"action_type"`
	Asset            string     `json:"asset"`
	Amount           float64    `json:"amount"`
	Venue            string     `json:"venue"`
	EstimatedCostUSD float64    `json:"estimated_cost_usd"`
	EstimatedGas     float64    `json:"estimated_gas"`
	SlippageImpact   float64    `json:"slippage_impact"`
	RouteInfo        string     `json:"route_info"`
}

// Plan is an ordered set of protective actions with an aggregate cost and the
// projected health factor after execution.
type Plan struct {
	ID              string       `json:"plan_id"`
	Actions         []Action     `json:"actions"`
	TotalCostUSD    float64      `json:"total_cost_usd"`
	TotalGasCost    float64      `json:"total_gas_cost"`
	HFAfter         float64      `json:"hf_after"`
	RiskReduction   float64      `json:"risk_reduction"`
	Confidence      float64      `json:"confidence"`
	SolverStatus    SolverStatus `json:"solver_status"`
	CanBeNetted     bool         `json:"can_be_netted"`
	NettingPriority float64      `json:"netting_priority"`
	CreatedAt       time.Time    `json:"created_at"`
}

// OptimizationResult bundles the cost-minimal primary plan with ranked
// alternatives for a human decision-maker.
type OptimizationResult struct {
	PrimaryPlan          Plan     `json:"primary_plan"`
	AlternativePlans     []Plan   `json:"alternative_plans"`
	OptimizationTimeMs   float64  `json:"optimization_time_ms"`
	ObjectiveValue       float64  `json:"objective_value"`
	ConstraintsSatisfied bool     `json:"constraints_satisfied"`
	Warnings             []string `json:"warnings"`
}

// ExecutionReceipt reports the outcome of handing a plan to an executor.
type ExecutionReceipt struct {
	PlanID     string    `json:"plan_id"`
	TxRefs     []string  `json:"tx_refs"`
	Simulated  bool      `json:"simulated"`
	ExecutedAt time.Time `json:"executed_at"`
}
