package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/khadira1937/xligo/internal/domain"
	"github.com/khadira1937/xligo/internal/executor"
	"github.com/khadira1937/xligo/internal/feed"
	"github.com/khadira1937/xligo/internal/market"
	"github.com/khadira1937/xligo/internal/optimizer"
	"github.com/khadira1937/xligo/internal/policy"
	"github.com/khadira1937/xligo/internal/risk"
)

type memIncidentStore struct {
	mu        sync.Mutex
	incidents map[string]domain.Incident
}

func newMemIncidentStore() *memIncidentStore {
	return &memIncidentStore{incidents: make(map[string]domain.Incident)}
}

func (s *memIncidentStore) Create(_ context.Context, inc domain.Incident) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.incidents[inc.ID]; ok {
		return domain.ErrAlreadyExists
	}
	s.incidents[inc.ID] = inc
	return nil
}

func (s *memIncidentStore) UpdateStatus(_ context.Context, id string, status domain.IncidentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inc, ok := s.incidents[id]
	if !ok {
		return domain.ErrNotFound
	}
	inc.Status = status
	s.incidents[id] = inc
	return nil
}

func (s *memIncidentStore) AttachPlan(_ context.Context, id, planID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inc, ok := s.incidents[id]
	if !ok {
		return domain.ErrNotFound
	}
	inc.PlanID = planID
	s.incidents[id] = inc
	return nil
}

func (s *memIncidentStore) GetByID(_ context.Context, id string) (domain.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inc, ok := s.incidents[id]
	if !ok {
		return domain.Incident{}, domain.ErrNotFound
	}
	return inc, nil
}

func (s *memIncidentStore) ListOpen(_ context.Context) ([]domain.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Incident
	for _, inc := range s.incidents {
		if inc.Status == domain.IncidentOpen || inc.Status == domain.IncidentManualReview {
			out = append(out, inc)
		}
	}
	return out, nil
}

func (s *memIncidentStore) ListRecent(_ context.Context, _ domain.ListOpts) ([]domain.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Incident
	for _, inc := range s.incidents {
		out = append(out, inc)
	}
	return out, nil
}

type memPlanStore struct {
	mu    sync.Mutex
	plans map[string][]domain.Plan // keyed by incident ID
}

func newMemPlanStore() *memPlanStore {
	return &memPlanStore{plans: make(map[string][]domain.Plan)}
}

func (s *memPlanStore) Insert(_ context.Context, incidentID string, plan domain.Plan, _ bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans[incidentID] = append(s.plans[incidentID], plan)
	return nil
}

func (s *memPlanStore) GetByID(_ context.Context, id string) (domain.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, plans := range s.plans {
		for _, p := range plans {
			if p.ID == id {
				return p, nil
			}
		}
	}
	return domain.Plan{}, domain.ErrNotFound
}

func (s *memPlanStore) ListByIncident(_ context.Context, incidentID string) ([]domain.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.plans[incidentID], nil
}

type memPolicyStore struct {
	mu       sync.Mutex
	policies map[string]domain.Policy
}

func newMemPolicyStore() *memPolicyStore {
	return &memPolicyStore{policies: make(map[string]domain.Policy)}
}

func (s *memPolicyStore) Get(_ context.Context, userID string) (domain.Policy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.policies[userID]
	if !ok {
		return domain.Policy{}, domain.ErrNotFound
	}
	return p, nil
}

func (s *memPolicyStore) Upsert(_ context.Context, p domain.Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policies[p.UserID] = p
	return nil
}

type heldLock struct{}

func (heldLock) Acquire(context.Context, string, time.Duration) (func(), error) {
	return nil, domain.ErrLockHeld
}

type memArchiver struct {
	mu        sync.Mutex
	decisions []domain.Decision
}

func (a *memArchiver) ArchiveDecision(_ context.Context, d domain.Decision) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.decisions = append(a.decisions, d)
	return nil
}

type fixture struct {
	orch      *Orchestrator
	incidents *memIncidentStore
	plans     *memPlanStore
	policies  *memPolicyStore
	archiver  *memArchiver
}

func newFixture(t *testing.T, pol domain.Policy, opts ...func(*Deps)) *fixture {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)

	prices := feed.NewStaticSource(map[string]float64{"ETH": 2500, "USDC": 1})
	model := market.NewModel(0)
	predictor := risk.NewPredictor(model, risk.Config{NumSimulations: 500, Workers: 2}, logger)
	opt := optimizer.NewOptimizer(prices, optimizer.Config{}, logger)
	validator := policy.NewValidator(logger)

	f := &fixture{
		incidents: newMemIncidentStore(),
		plans:     newMemPlanStore(),
		policies:  newMemPolicyStore(),
		archiver:  &memArchiver{},
	}
	if err := f.policies.Upsert(context.Background(), pol); err != nil {
		t.Fatalf("seed policy: %v", err)
	}

	deps := Deps{
		Predictor: predictor,
		Optimizer: opt,
		Validator: validator,
		Prices:    prices,
		Incidents: f.incidents,
		Plans:     f.plans,
		Policies:  f.policies,
		Archiver:  f.archiver,
		Executor:  executor.NewSimulated(0, logger),
	}
	for _, o := range opts {
		o(&deps)
	}

	f.orch = NewOrchestrator(deps, Config{}, logger)
	return f
}

func riskyPosition() domain.Position {
	return domain.Position{
		ID:        "pos-1",
		AccountID: "acct-1",
		Chain:     "ethereum",
		Protocol:  "aave_v3",
		Collateral: []domain.AssetAmount{
			{Symbol: "ETH", Amount: decimal.NewFromInt(10)},
		},
		Debt: []domain.AssetAmount{
			{Symbol: "USDC", Amount: decimal.NewFromInt(19760)},
		},
		LiquidationThreshold: 0.83,
	}
}

func autoPolicy() domain.Policy {
	return domain.Policy{
		UserID:            "user-1",
		MaxPerIncidentUSD: 100000,
		HFTarget:          1.5,
		ApprovalMode:      domain.ApprovalAuto,
		CollateralAdd:     true,
		PartialRepay:      true,
	}
}

var pipelineUser = domain.User{ID: "user-1", Address: "0x8ba1f109551bD432803012645Ac136ddd64DBA72"}

func TestDecide_ApprovedPlanIsExecuted(t *testing.T) {
	f := newFixture(t, autoPolicy())

	decision, err := f.orch.Decide(context.Background(), riskyPosition(), pipelineUser)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}

	if decision.Incident.Status != domain.IncidentExecuted {
		t.Errorf("status = %s, want %s", decision.Incident.Status, domain.IncidentExecuted)
	}
	if decision.Receipt == nil {
		t.Fatal("expected an execution receipt")
	}
	if !decision.Receipt.Simulated {
		t.Error("simulated executor should mark receipts simulated")
	}
	if len(decision.Receipt.TxRefs) != len(decision.Optimization.PrimaryPlan.Actions) {
		t.Errorf("tx refs %d != actions %d",
			len(decision.Receipt.TxRefs), len(decision.Optimization.PrimaryPlan.Actions))
	}
	if decision.Optimization.PrimaryPlan.HFAfter < 1.5 {
		t.Errorf("plan leaves HF %.4f below target", decision.Optimization.PrimaryPlan.HFAfter)
	}
}

func TestDecide_PersistsIncidentAndPlans(t *testing.T) {
	f := newFixture(t, autoPolicy())

	decision, err := f.orch.Decide(context.Background(), riskyPosition(), pipelineUser)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}

	stored, err := f.incidents.GetByID(context.Background(), decision.Incident.ID)
	if err != nil {
		t.Fatalf("incident not persisted: %v", err)
	}
	if stored.Status != domain.IncidentExecuted {
		t.Errorf("stored status = %s, want %s", stored.Status, domain.IncidentExecuted)
	}
	if stored.PlanID != decision.Optimization.PrimaryPlan.ID {
		t.Errorf("stored plan_id = %q, want %q", stored.PlanID, decision.Optimization.PrimaryPlan.ID)
	}

	plans, err := f.plans.ListByIncident(context.Background(), decision.Incident.ID)
	if err != nil {
		t.Fatalf("ListByIncident: %v", err)
	}
	want := 1 + len(decision.Optimization.AlternativePlans)
	if len(plans) != want {
		t.Errorf("stored %d plans, want %d", len(plans), want)
	}

	if len(f.archiver.decisions) != 1 {
		t.Fatalf("archived %d decisions, want 1", len(f.archiver.decisions))
	}
	if f.archiver.decisions[0].Incident.ID != decision.Incident.ID {
		t.Error("archived decision does not match")
	}
}

func TestDecide_ManualModeParksForReview(t *testing.T) {
	pol := autoPolicy()
	pol.ApprovalMode = domain.ApprovalManual
	f := newFixture(t, pol)

	decision, err := f.orch.Decide(context.Background(), riskyPosition(), pipelineUser)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}

	if decision.Incident.Status != domain.IncidentManualReview {
		t.Errorf("status = %s, want %s", decision.Incident.Status, domain.IncidentManualReview)
	}
	if decision.Receipt != nil {
		t.Error("manual review must not produce a receipt")
	}
	if !decision.Validation.Valid {
		t.Errorf("clean plan should still be valid: %v", decision.Validation.Violations)
	}
}

func TestDecide_SafePositionClosesDecided(t *testing.T) {
	pol := autoPolicy()
	pol.HFTarget = 1.2
	f := newFixture(t, pol)

	pos := riskyPosition()
	pos.Debt = []domain.AssetAmount{
		{Symbol: "USDC", Amount: decimal.NewFromInt(10000)},
	}

	decision, err := f.orch.Decide(context.Background(), pos, pipelineUser)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}

	if decision.Incident.Status != domain.IncidentDecided {
		t.Errorf("status = %s, want %s", decision.Incident.Status, domain.IncidentDecided)
	}
	if len(decision.Optimization.PrimaryPlan.Actions) != 0 {
		t.Errorf("safe position should get an empty plan, got %d actions",
			len(decision.Optimization.PrimaryPlan.Actions))
	}
	if decision.Receipt != nil {
		t.Error("empty plan must not be executed")
	}
}

func TestDecide_LockHeld(t *testing.T) {
	f := newFixture(t, autoPolicy(), func(d *Deps) {
		d.Locks = heldLock{}
	})

	_, err := f.orch.Decide(context.Background(), riskyPosition(), pipelineUser)
	if !errors.Is(err, domain.ErrLockHeld) {
		t.Fatalf("err = %v, want ErrLockHeld", err)
	}

	open, _ := f.incidents.ListOpen(context.Background())
	if len(open) != 0 {
		t.Errorf("no incident should be created while locked, got %d", len(open))
	}
}

func TestDecide_UnknownUserPolicy(t *testing.T) {
	f := newFixture(t, autoPolicy())

	_, err := f.orch.Decide(context.Background(), riskyPosition(), domain.User{ID: "stranger"})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestDecide_InvalidPositionRejected(t *testing.T) {
	f := newFixture(t, autoPolicy())

	pos := riskyPosition()
	pos.LiquidationThreshold = 0

	_, err := f.orch.Decide(context.Background(), pos, pipelineUser)
	if !errors.Is(err, domain.ErrInvalidPosition) {
		t.Fatalf("err = %v, want ErrInvalidPosition", err)
	}
}

func TestDecide_AssessmentFeedsIncident(t *testing.T) {
	f := newFixture(t, autoPolicy())

	decision, err := f.orch.Decide(context.Background(), riskyPosition(), pipelineUser)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}

	if decision.Incident.TTBMinutes != decision.Assessment.TTBMinutes {
		t.Error("incident TTB should mirror the assessment")
	}
	if decision.Incident.BreachProbability != decision.Assessment.BreachProbability {
		t.Error("incident breach probability should mirror the assessment")
	}
	if decision.Assessment.Status != domain.AssessmentOK {
		t.Errorf("assessment status = %s, want %s", decision.Assessment.Status, domain.AssessmentOK)
	}
}
