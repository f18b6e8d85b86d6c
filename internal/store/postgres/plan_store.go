package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/khadira1937/xligo/internal/domain"
)

// PlanStore implements domain.PlanStore using PostgreSQL. Actions are stored
// as a JSONB document since the pipeline only ever reads a plan whole.
type PlanStore struct {
	pool *pgxpool.Pool
}

// NewPlanStore creates a new PlanStore backed by the given pool.
func NewPlanStore(pool *pgxpool.Pool) *PlanStore {
	return &PlanStore{pool: pool}
}

// Insert persists a plan under its incident. primary marks the plan the
// pipeline selected; alternatives are stored with primary=false.
func (s *PlanStore) Insert(ctx context.Context, incidentID string, plan domain.Plan, primary bool) error {
	actions, err := json.Marshal(plan.Actions)
	if err != nil {
		return fmt.Errorf("postgres: marshal plan actions %s: %w", plan.ID, err)
	}

	const query = `
		INSERT INTO plans (
			id, incident_id, is_primary, actions,
			total_cost_usd, total_gas_cost, hf_after, risk_reduction,
			confidence, solver_status, can_be_netted, netting_priority, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err = s.pool.Exec(ctx, query,
		plan.ID, incidentID, primary, actions,
		plan.TotalCostUSD, plan.TotalGasCost, plan.HFAfter, plan.RiskReduction,
		plan.Confidence, string(plan.SolverStatus), plan.CanBeNetted,
		plan.NettingPriority, plan.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert plan %s: %w", plan.ID, err)
	}
	return nil
}

const planSelectCols = `id, actions, total_cost_usd, total_gas_cost, hf_after,
	risk_reduction, confidence, solver_status, can_be_netted, netting_priority, created_at`

func scanPlan(scanner interface{ Scan(dest ...any) error }) (domain.Plan, error) {
	var p domain.Plan
	var actions []byte
	var status string

	err := scanner.Scan(
		&p.ID, &actions, &p.TotalCostUSD, &p.TotalGasCost, &p.HFAfter,
		&p.RiskReduction, &p.Confidence, &status, &p.CanBeNetted,
		&p.NettingPriority, &p.CreatedAt,
	)
	if err != nil {
		return domain.Plan{}, err
	}

	if err := json.Unmarshal(actions, &p.Actions); err != nil {
		return domain.Plan{}, fmt.Errorf("unmarshal actions: %w", err)
	}
	p.SolverStatus = domain.SolverStatus(status)
	return p, nil
}

// GetByID retrieves a single plan by ID.
func (s *PlanStore) GetByID(ctx context.Context, id string) (domain.Plan, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+planSelectCols+` FROM plans WHERE id = $1`, id)

	p, err := scanPlan(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Plan{}, domain.ErrNotFound
		}
		return domain.Plan{}, fmt.Errorf("postgres: get plan %s: %w", id, err)
	}
	return p, nil
}

// ListByIncident returns all plans stored for an incident, primary first.
func (s *PlanStore) ListByIncident(ctx context.Context, incidentID string) ([]domain.Plan, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+planSelectCols+` FROM plans
		 WHERE incident_id = $1
		 ORDER BY is_primary DESC, created_at ASC`, incidentID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list plans for incident %s: %w", incidentID, err)
	}
	defer rows.Close()

	var plans []domain.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan plan: %w", err)
		}
		plans = append(plans, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate plans: %w", err)
	}
	return plans, nil
}

// Compile-time interface check.
var _ domain.PlanStore = (*PlanStore)(nil)
