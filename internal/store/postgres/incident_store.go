package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/khadira1937/xligo/internal/domain"
)

// IncidentStore implements domain.IncidentStore using PostgreSQL.
type IncidentStore struct {
	pool *pgxpool.Pool
}

// NewIncidentStore creates a new IncidentStore backed by the given pool.
func NewIncidentStore(pool *pgxpool.Pool) *IncidentStore {
	return &IncidentStore{pool: pool}
}

// Create inserts a new incident row.
func (s *IncidentStore) Create(ctx context.Context, inc domain.Incident) error {
	const query = `
		INSERT INTO incidents (
			id, position_id, account_id, user_id, status,
			ttb_minutes, breach_probability, plan_id, detected_at, decided_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, $10)`

	_, err := s.pool.Exec(ctx, query,
		inc.ID, inc.PositionID, inc.AccountID, inc.UserID, string(inc.Status),
		inc.TTBMinutes, inc.BreachProbability, inc.PlanID, inc.DetectedAt, inc.DecidedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create incident %s: %w", inc.ID, err)
	}
	return nil
}

// UpdateStatus moves an incident to a new status. Terminal statuses also set
// decided_at.
func (s *IncidentStore) UpdateStatus(ctx context.Context, id string, status domain.IncidentStatus) error {
	var query string
	switch status {
	case domain.IncidentDecided, domain.IncidentExecuted, domain.IncidentFailed, domain.IncidentManualReview:
		query = `UPDATE incidents SET status = $1, decided_at = COALESCE(decided_at, NOW()), updated_at = NOW() WHERE id = $2`
	default:
		query = `UPDATE incidents SET status = $1, updated_at = NOW() WHERE id = $2`
	}

	tag, err := s.pool.Exec(ctx, query, string(status), id)
	if err != nil {
		return fmt.Errorf("postgres: update incident status %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// AttachPlan records the primary plan chosen for an incident.
func (s *IncidentStore) AttachPlan(ctx context.Context, id, planID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE incidents SET plan_id = $1, updated_at = NOW() WHERE id = $2`,
		planID, id)
	if err != nil {
		return fmt.Errorf("postgres: attach plan to incident %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

const incidentSelectCols = `id, position_id, account_id, user_id, status,
	ttb_minutes, breach_probability, COALESCE(plan_id, ''), detected_at, decided_at`

func scanIncident(scanner interface{ Scan(dest ...any) error }) (domain.Incident, error) {
	var inc domain.Incident
	var status string

	err := scanner.Scan(
		&inc.ID, &inc.PositionID, &inc.AccountID, &inc.UserID, &status,
		&inc.TTBMinutes, &inc.BreachProbability, &inc.PlanID,
		&inc.DetectedAt, &inc.DecidedAt,
	)
	if err != nil {
		return domain.Incident{}, err
	}

	inc.Status = domain.IncidentStatus(status)
	return inc, nil
}

func scanIncidentRows(rows pgx.Rows) ([]domain.Incident, error) {
	var incidents []domain.Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		incidents = append(incidents, inc)
	}
	return incidents, rows.Err()
}

// GetByID retrieves a single incident by ID.
func (s *IncidentStore) GetByID(ctx context.Context, id string) (domain.Incident, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+incidentSelectCols+` FROM incidents WHERE id = $1`, id)

	inc, err := scanIncident(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Incident{}, domain.ErrNotFound
		}
		return domain.Incident{}, fmt.Errorf("postgres: get incident %s: %w", id, err)
	}
	return inc, nil
}

// ListOpen returns all incidents still awaiting a decision, oldest first.
func (s *IncidentStore) ListOpen(ctx context.Context) ([]domain.Incident, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+incidentSelectCols+` FROM incidents
		 WHERE status IN ('open', 'manual_review')
		 ORDER BY detected_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open incidents: %w", err)
	}
	defer rows.Close()

	incidents, err := scanIncidentRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan open incidents: %w", err)
	}
	return incidents, nil
}

// ListRecent returns incidents ordered by detection time with pagination.
func (s *IncidentStore) ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.Incident, error) {
	query := `SELECT ` + incidentSelectCols + ` FROM incidents`
	args := []any{}
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" WHERE detected_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}

	query += " ORDER BY detected_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent incidents: %w", err)
	}
	defer rows.Close()

	incidents, err := scanIncidentRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan recent incidents: %w", err)
	}
	return incidents, nil
}

// Compile-time interface check.
var _ domain.IncidentStore = (*IncidentStore)(nil)
