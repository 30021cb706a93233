// Package approval decides whether a spend request is auto-approved, rejected
// or routed to FP&A review.
package approval

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Outcome is the decision variant.
type Outcome string

const (
	OutcomeAutoApproved Outcome = "auto_approved"
	OutcomeRejected     Outcome = "rejected"
	OutcomePending      Outcome = "pending"
)

// Decision is the result of Decide with the numbers that produced it.
type Decision struct {
	Outcome            Outcome         `json:"outcome"`
	Reason             string          `json:"reason"`
	CanAutoApprove     bool            `json:"can_auto_approve"`
	Available          decimal.Decimal `json:"available"`
	Requested          decimal.Decimal `json:"requested"`
	UtilizationPercent decimal.Decimal `json:"utilization_percent"`
	Threshold          decimal.Decimal `json:"auto_approval_threshold"`
	TargetBudgetID     *uuid.UUID      `json:"target_budget_id,omitempty"`
}

// Decide maps a snapshot and a policy to a decision. It has no side effects.
func Decide(s Snapshot, department, fiscalPeriod string, p Policy) Decision {
	threshold := p.ThresholdFor(department)
	d := Decision{
		Requested: s.Requested,
		Threshold: threshold,
	}
	if !s.Found {
		d.Outcome = OutcomeRejected
		d.Reason = fmt.Sprintf("No budget found for %s in %s", department, fiscalPeriod)
		return d
	}

	target := s.TargetBudgetID
	d.TargetBudgetID = &target
	d.Available = s.Available()
	d.UtilizationPercent = s.UtilizationPercent().Round(2)

	if s.Requested.GreaterThan(d.Available) {
		d.Outcome = OutcomeRejected
		d.Reason = fmt.Sprintf("Insufficient budget: available %s %s, requested %s %s",
			d.Available.StringFixed(2), s.Currency, s.Requested.StringFixed(2), s.Currency)
		return d
	}

	withinThreshold := s.Requested.LessThanOrEqual(threshold)
	critical := !s.UtilizationPercent().LessThan(p.CriticalUtilizationPercent)
	d.CanAutoApprove = withinThreshold && !critical

	switch {
	case d.CanAutoApprove:
		d.Outcome = OutcomeAutoApproved
		d.Reason = fmt.Sprintf("Within auto-approval threshold of %s %s", threshold.StringFixed(2), s.Currency)
	case !withinThreshold:
		d.Outcome = OutcomePending
		d.Reason = fmt.Sprintf("Requires FP&A approval: amount %s exceeds auto-approval threshold of %s for %s",
			s.Requested.StringFixed(2), threshold.StringFixed(2), department)
	default:
		d.Outcome = OutcomePending
		d.Reason = fmt.Sprintf("Requires FP&A approval: budget utilization is critical (%s%%)",
			d.UtilizationPercent.StringFixed(2))
	}
	return d
}

// SnapshotSource loads the ledger state for an input.
type SnapshotSource interface {
	Snapshot(ctx context.Context, in Input) (Snapshot, error)
}

// Engine evaluates inputs against live ledger state.
type Engine struct {
	Source SnapshotSource
	Policy Policy
}

// Evaluate loads a snapshot and decides on it.
func (e *Engine) Evaluate(ctx context.Context, in Input) (Decision, Snapshot, error) {
	s, err := e.Source.Snapshot(ctx, in)
	if err != nil {
		return Decision{}, Snapshot{}, err
	}
	return Decide(s, in.Department, in.FiscalPeriod, e.Policy), s, nil
}
