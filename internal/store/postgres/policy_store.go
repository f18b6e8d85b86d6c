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

// PolicyStore implements domain.PolicyStore using PostgreSQL. The venue and
// asset lists are stored as JSONB arrays.
type PolicyStore struct {
	pool *pgxpool.Pool
}

// NewPolicyStore creates a new PolicyStore backed by the given pool.
func NewPolicyStore(pool *pgxpool.Pool) *PolicyStore {
	return &PolicyStore{pool: pool}
}

func marshalList(list []string) ([]byte, error) {
	if list == nil {
		list = []string{}
	}
	return json.Marshal(list)
}

// Upsert inserts or replaces a user's policy.
func (s *PolicyStore) Upsert(ctx context.Context, p domain.Policy) error {
	allowedVenues, err := marshalList(p.AllowedVenues)
	if err != nil {
		return fmt.Errorf("postgres: marshal allowed venues: %w", err)
	}
	blockedVenues, err := marshalList(p.BlockedVenues)
	if err != nil {
		return fmt.Errorf("postgres: marshal blocked venues: %w", err)
	}
	allowedAssets, err := marshalList(p.AllowedAssets)
	if err != nil {
		return fmt.Errorf("postgres: marshal allowed assets: %w", err)
	}
	blockedAssets, err := marshalList(p.BlockedAssets)
	if err != nil {
		return fmt.Errorf("postgres: marshal blocked assets: %w", err)
	}

	const query = `
		INSERT INTO policies (
			user_id, max_daily_spend_usd, max_per_incident_usd, hf_target,
			critical_hf, approval_mode, approval_threshold,
			allowed_venues, blocked_venues, allowed_assets, blocked_assets,
			collateral_add_allowed, partial_repay_allowed, hedge_allowed, migration_allowed
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (user_id) DO UPDATE SET
			max_daily_spend_usd = EXCLUDED.max_daily_spend_usd,
			max_per_incident_usd = EXCLUDED.max_per_incident_usd,
			hf_target = EXCLUDED.hf_target,
			critical_hf = EXCLUDED.critical_hf,
			approval_mode = EXCLUDED.approval_mode,
			approval_threshold = EXCLUDED.approval_threshold,
			allowed_venues = EXCLUDED.allowed_venues,
			blocked_venues = EXCLUDED.blocked_venues,
			allowed_assets = EXCLUDED.allowed_assets,
			blocked_assets = EXCLUDED.blocked_assets,
			collateral_add_allowed = EXCLUDED.collateral_add_allowed,
			partial_repay_allowed = EXCLUDED.partial_repay_allowed,
			hedge_allowed = EXCLUDED.hedge_allowed,
			migration_allowed = EXCLUDED.migration_allowed,
			updated_at = NOW()`

	_, err = s.pool.Exec(ctx, query,
		p.UserID, p.MaxDailySpendUSD, p.MaxPerIncidentUSD, p.HFTarget,
		p.CriticalHF, string(p.ApprovalMode), p.ApprovalThreshold,
		allowedVenues, blockedVenues, allowedAssets, blockedAssets,
		p.CollateralAdd, p.PartialRepay, p.Hedge, p.Migration,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert policy %s: %w", p.UserID, err)
	}
	return nil
}

// Get retrieves the policy for a user. It returns domain.ErrNotFound when the
// user has no stored policy.
func (s *PolicyStore) Get(ctx context.Context, userID string) (domain.Policy, error) {
	const query = `
		SELECT user_id, max_daily_spend_usd, max_per_incident_usd, hf_target,
			critical_hf, approval_mode, approval_threshold,
			allowed_venues, blocked_venues, allowed_assets, blocked_assets,
			collateral_add_allowed, partial_repay_allowed, hedge_allowed, migration_allowed
		FROM policies WHERE user_id = $1`

	var p domain.Policy
	var mode string
	var allowedVenues, blockedVenues, allowedAssets, blockedAssets []byte

	err := s.pool.QueryRow(ctx, query, userID).Scan(
		&p.UserID, &p.MaxDailySpendUSD, &p.MaxPerIncidentUSD, &p.HFTarget,
		&p.CriticalHF, &mode, &p.ApprovalThreshold,
		&allowedVenues, &blockedVenues, &allowedAssets, &blockedAssets,
		&p.CollateralAdd, &p.PartialRepay, &p.Hedge, &p.Migration,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Policy{}, domain.ErrNotFound
		}
		return domain.Policy{}, fmt.Errorf("postgres: get policy %s: %w", userID, err)
	}

	p.ApprovalMode = domain.ApprovalMode(mode)

	lists := []struct {
		raw []byte
		dst *[]string
	}{
		{allowedVenues, &p.AllowedVenues},
		{blockedVenues, &p.BlockedVenues},
		{allowedAssets, &p.AllowedAssets},
		{blockedAssets, &p.BlockedAssets},
	}
	for _, l := range lists {
		if err := json.Unmarshal(l.raw, l.dst); err != nil {
			return domain.Policy{}, fmt.Errorf("postgres: unmarshal policy lists %s: %w", userID, err)
		}
	}

	return p, nil
}

// Compile-time interface check.
var _ domain.PolicyStore = (*PolicyStore)(nil)
