// Package notify delivers operator alerts for pipeline events. Alerts are
// dispatched to all registered senders (Telegram, Discord) and filtered by
// event type so operators receive only the alerts they care about.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/khadira1937/xligo/internal/domain"
)

// Event types raised by the decision pipeline.
const (
	EventBreachImminent = "breach_imminent"
	EventPlanApproved   = "plan_approved"
	EventManualReview   = "manual_review"
	EventExecutionError = "execution_error"
)

// Sender is the interface that each notification channel must implement.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a human-readable identifier for the sender (e.g. "telegram").
	Name() string
}

// Notifier dispatches pipeline alerts to one or more Senders. It maintains a
// set of allowed event types; events not in the set are dropped. An empty set
// allows everything.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier that will deliver to the given senders.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[strings.TrimSpace(e)] = true
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// BreachImminent alerts that a position is close to liquidation.
func (n *Notifier) BreachImminent(ctx context.Context, inc domain.Incident) error {
	title := fmt.Sprintf("Breach imminent: %s", inc.PositionID)
	msg := fmt.Sprintf("incident %s\nTTB %.1f min, breach probability %.1f%%",
		inc.ID, inc.TTBMinutes, inc.BreachProbability*100)
	return n.notify(ctx, EventBreachImminent, title, msg)
}

// PlanApproved alerts that a protection plan was auto-approved.
func (n *Notifier) PlanApproved(ctx context.Context, inc domain.Incident, plan domain.Plan) error {
	title := fmt.Sprintf("Plan approved: %s", inc.PositionID)
	msg := fmt.Sprintf("incident %s, plan %s\n%d action(s), cost $%.2f, HF after %.3f",
		inc.ID, plan.ID, len(plan.Actions), plan.TotalCostUSD, plan.HFAfter)
	return n.notify(ctx, EventPlanApproved, title, msg)
}

// ManualReview alerts that a plan needs a human decision.
func (n *Notifier) ManualReview(ctx context.Context, inc domain.Incident, plan domain.Plan, violations []domain.Violation) error {
	title := fmt.Sprintf("Manual review required: %s", inc.PositionID)

	var b strings.Builder
	fmt.Fprintf(&b, "incident %s, plan %s, cost $%.2f", inc.ID, plan.ID, plan.TotalCostUSD)
	for _, v := range violations {
		fmt.Fprintf(&b, "\n- %s: %s", v.Rule, v.Message)
	}
	return n.notify(ctx, EventManualReview, title, b.String())
}

// ExecutionError alerts that handing a plan to the executor failed.
func (n *Notifier) ExecutionError(ctx context.Context, inc domain.Incident, planID string, execErr error) error {
	title := fmt.Sprintf("Execution failed: %s", inc.PositionID)
	msg := fmt.Sprintf("incident %s, plan %s\n%v", inc.ID, planID, execErr)
	return n.notify(ctx, EventExecutionError, title, msg)
}

// notify applies the event filter, then dispatches to all senders. Errors
// from individual senders are collected; one sender failing does not prevent
// delivery to the rest.
func (n *Notifier) notify(ctx context.Context, event, title, message string) error {
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
		} else {
			n.logger.DebugContext(ctx, "notification sent",
				slog.String("sender", s.Name()),
				slog.String("title", title),
			)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
