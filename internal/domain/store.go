package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
}

// IncidentStore persists incident bookkeeping rows.
type IncidentStore interface {
	Create(ctx context.Context, inc Incident) error
	UpdateStatus(ctx context.Context, id string, status IncidentStatus) error
	AttachPlan(ctx context.Context, id, planID string) error
	GetByID(ctx context.Context, id string) (Incident, error)
	ListOpen(ctx context.Context) ([]Incident, error)
	ListRecent(ctx context.Context, opts ListOpts) ([]Incident, error)
}

// PlanStore persists plans produced by the optimizer, primary and
// alternatives alike, keyed back to their incident.
type PlanStore interface {
	Insert(ctx context.Context, incidentID string, plan Plan, primary bool) error
	GetByID(ctx context.Context, id string) (Plan, error)
	ListByIncident(ctx context.Context, incidentID string) ([]Plan, error)
}

// PolicyStore serves per-user protection policies.
type PolicyStore interface {
	Get(ctx context.Context, userID string) (Policy, error)
	Upsert(ctx context.Context, p Policy) error
}
