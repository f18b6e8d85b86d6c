package domain

import "time"

// IncidentStatus tracks an incident through the decision pipeline.
type IncidentStatus string

const (
	IncidentOpen         IncidentStatus = "open"
	IncidentDecided      IncidentStatus = "decided"
	IncidentManualReview IncidentStatus = "manual_review"
	IncidentExecuted     IncidentStatus = "executed"
	IncidentFailed       IncidentStatus = "failed"
)

// Incident is one pipeline run for one at-risk position. It carries the
// bookkeeping around the pipeline; the pipeline stages themselves only read
// the embedded position snapshot.
type Incident struct {
	ID                string         `json:"incident_id"`
	PositionID        string         `json:"position_id"`
	AccountID         string         `json:"account_id"`
	UserID            string         `json:"user_id"`
	Status            IncidentStatus `json:"status"`
	TTBMinutes        float64        `json:"ttb_minutes"`
	BreachProbability float64        `json:"breach_probability"`
	PlanID            string         `json:"plan_id,omitempty"`
	DetectedAt        time.Time      `json:"detected_at"`
	DecidedAt         *time.Time     `json:"decided_at,omitempty"`
}

// Decision is the full output of one pipeline run: the assessment, the
// optimization result, and the validation verdict, in the order they were
// produced. Each stage's output is immutable once recorded here.
type Decision struct {
	Incident     Incident           `json:"incident"`
	Assessment   TimeToBreachResult `json:"assessment"`
	Optimization OptimizationResult `json:"optimization"`
	Validation   ValidationResult   `json:"validation"`
	Receipt      *ExecutionReceipt  `json:"receipt,omitempty"`
}
