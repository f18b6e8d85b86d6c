package domain

import "time"

// AssessmentStatus distinguishes a normally computed assessment from one that
// fell back to conservative defaults after an internal failure. Callers can
// branch on this without inspecting log output.
type AssessmentStatus string

const (
	AssessmentOK       AssessmentStatus = "ok"
	AssessmentFallback AssessmentStatus = "fallback"
)

// AssessParams tunes a single time-to-breach assessment. Values are taken
// literally; callers wanting configured defaults start from the predictor's
// DefaultParams. A fixed Seed gives reproducible Monte Carlo paths.
type AssessParams struct {
	HorizonMinutes  float64 `json:"horizon_minutes"`
	ConfidenceLevel float64 `json:"confidence_level"`
	NumSimulations  int     `json:"n_simulations"`
	Seed            uint64  `json:"seed"`
}

// TimeToBreachResult is the immutable output of one predictor invocation.
type TimeToBreachResult struct {
	TTBMinutes          float64            `json:"ttb_minutes"`
	BreachProbability   float64            `json:"breach_probability"`
	ShockScenarios      []float64          `json:"shock_scenarios"`
	CriticalPriceLevels map[string]float64 `json:"critical_price_levels"`
	Confidence          float64            `json:"confidence"`
	CalculatedAt        time.Time          `json:"calculation_time"`
	Status              AssessmentStatus   `json:"status"`
}
