// Package executor hands approved plans to an execution backend. The decision
// core never signs or submits transactions itself; the live backend sits
// behind the domain.Executor seam.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/khadira1937/xligo/internal/domain"
)

// Simulated implements domain.Executor with synthetic receipts. It is used in
// simulation mode and in tests; every action gets a fake transaction
// reference so downstream bookkeeping exercises the same paths as live
// execution.
type Simulated struct {
	latency time.Duration
	logger  *slog.Logger
}

// NewSimulated creates a Simulated executor. latency is added per plan to
// mimic submission time; zero disables it.
func NewSimulated(latency time.Duration, logger *slog.Logger) *Simulated {
	return &Simulated{
		latency: latency,
		logger:  logger.With(slog.String("component", "simulated_executor")),
	}
}

// Execute produces a receipt with one synthetic transaction reference per
// action. It honors context cancellation during the simulated latency.
func (e *Simulated) Execute(ctx context.Context, plan domain.Plan) (domain.ExecutionReceipt, error) {
	if len(plan.Actions) == 0 {
		return domain.ExecutionReceipt{}, fmt.Errorf("executor: plan %s has no actions", plan.ID)
	}

	if e.latency > 0 {
		select {
		case <-ctx.Done():
			return domain.ExecutionReceipt{}, fmt.Errorf("executor: plan %s: %w", plan.ID, ctx.Err())
		case <-time.After(e.latency):
		}
	}

	txRefs := make([]string, 0, len(plan.Actions))
	for range plan.Actions {
		txRefs = append(txRefs, "sim-"+uuid.NewString())
	}

	receipt := domain.ExecutionReceipt{
		PlanID:     plan.ID,
		TxRefs:     txRefs,
		Simulated:  true,
		ExecutedAt: time.Now(),
	}

	e.logger.InfoContext(ctx, "plan executed",
		slog.String("plan_id", plan.ID),
		slog.Int("actions", len(plan.Actions)),
		slog.Float64("total_cost_usd", plan.TotalCostUSD))

	return receipt, nil
}

// Compile-time interface check.
var _ domain.Executor = (*Simulated)(nil)
