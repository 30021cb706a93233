// Package ledger owns the committed and reserved buckets of every budget.
// Nothing else writes BudgetUtilizations.
package ledger

import (
	"context"
	"errors"
	"strings"
	"time"

	"budget-tracker/internal/application/approval"
	"budget-tracker/internal/config"
	"budget-tracker/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Service struct {
	DB            *gorm.DB
	Rates         Rates
	PendingWindow time.Duration
	Policy        approval.Policy
	Now           func() time.Time
}

// NewService builds a ledger using the approval settings for conversion,
// the pending-hold window and the Check decision.
func NewService(db *gorm.DB, cfg config.ApprovalConfig) *Service {
	return &Service{
		DB:            db,
		Rates:         Rates(cfg.CurrencyRates),
		PendingWindow: cfg.PendingWindow,
		Policy:        approval.PolicyFromConfig(cfg),
		Now:           time.Now,
	}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Snapshot resolves the budgets matching the selector and sums their buckets.
// A miss is not an error: Found is false and Siblings lists the department's
// other budgets.
func (s *Service) Snapshot(ctx context.Context, in approval.Input) (approval.Snapshot, error) {
	dept := strings.TrimSpace(in.Department)
	period := strings.TrimSpace(in.FiscalPeriod)
	if dept == "" || period == "" {
		return approval.Snapshot{}, ErrSelectorRequired
	}
	db := s.DB.WithContext(ctx)

	q := db.Preload("Utilization").
		Where("customer_id = ? AND LOWER(department) = LOWER(?) AND fiscal_period = ?", in.CustomerID, dept, period)
	if in.SubCategory != nil {
		q = q.Where("LOWER(sub_category) = LOWER(?)", strings.TrimSpace(*in.SubCategory))
	}
	var budgets []domain.Budget
	if err := q.Order(`"createdAt" ASC`).Find(&budgets).Error; err != nil {
		return approval.Snapshot{}, err
	}

	if len(budgets) == 0 {
		siblings, err := s.siblings(db, in.CustomerID, dept)
		if err != nil {
			return approval.Snapshot{}, err
		}
		return approval.Snapshot{
			Requested: in.Amount,
			Currency:  strings.ToUpper(in.Currency),
			Siblings:  siblings,
		}, nil
	}

	target := pickTarget(budgets, in.SubCategory == nil)
	snap := approval.Snapshot{
		Found:          true,
		TargetBudgetID: target.BudgetID,
		Currency:       target.Currency,
		Budgeted:       decimal.Zero,
		Committed:      decimal.Zero,
		Reserved:       decimal.Zero,
		PendingHold:    decimal.Zero,
	}
	currency := in.Currency
	if currency == "" {
		currency = target.Currency
	}
	snap.Requested, snap.Converted = s.Rates.Convert(in.Amount, currency, target.Currency)

	for i := range budgets {
		b := &budgets[i]
		snap.BudgetIDs = append(snap.BudgetIDs, b.BudgetID)
		snap.Budgeted = snap.Budgeted.Add(b.BudgetedAmount)
		snap.Committed = snap.Committed.Add(b.Committed())
		snap.Reserved = snap.Reserved.Add(b.Reserved())
	}

	hold, err := s.pendingHold(db, snap.BudgetIDs, in.ExcludeRequestID, target.Currency)
	if err != nil {
		return approval.Snapshot{}, err
	}
	snap.PendingHold = hold
	return snap, nil
}

// pickTarget chooses the budget a ledger mutation lands on. For a
// department-wide selector that is the department-level budget when one
// exists, else the one with the most room.
func pickTarget(budgets []domain.Budget, departmentWide bool) *domain.Budget {
	if departmentWide {
		for i := range budgets {
			if budgets[i].SubCategory == "" {
				return &budgets[i]
			}
		}
	}
	best := &budgets[0]
	for i := 1; i < len(budgets); i++ {
		if budgets[i].Available().GreaterThan(best.Available()) {
			best = &budgets[i]
		}
	}
	return best
}

func (s *Service) siblings(db *gorm.DB, customerID uuid.UUID, dept string) ([]approval.SiblingBudget, error) {
	var rows []domain.Budget
	if err := db.Where("customer_id = ? AND LOWER(department) = LOWER(?)", customerID, dept).
		Order("fiscal_period ASC, sub_category ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]approval.SiblingBudget, 0, len(rows))
	for _, b := range rows {
		out = append(out, approval.SiblingBudget{
			BudgetID:     b.BudgetID,
			SubCategory:  b.SubCategory,
			FiscalPeriod: b.FiscalPeriod,
			Budgeted:     b.BudgetedAmount,
		})
	}
	return out, nil
}

// pendingHold sums other pending requests against the budgets created inside
// the pending window, converted into the budget currency.
func (s *Service) pendingHold(db *gorm.DB, budgetIDs []uuid.UUID, exclude *uuid.UUID, currency string) (decimal.Decimal, error) {
	total := decimal.Zero
	if s.PendingWindow <= 0 {
		return total, nil
	}
	q := db.Where("status = ? AND budget_id IN ?", domain.RequestPending, budgetIDs)
	if exclude != nil {
		q = q.Where("request_id <> ?", *exclude)
	}
	var pending []domain.Request
	if err := q.Find(&pending).Error; err != nil {
		return total, err
	}
	cutoff := s.now().Add(-s.PendingWindow)
	for _, r := range pending {
		if r.CreatedAt.Before(cutoff) {
			continue
		}
		amt, _ := s.Rates.Convert(r.Amount, r.Currency, currency)
		total = total.Add(amt)
	}
	return total, nil
}

// CheckResult is the CheckBudget answer.
type CheckResult struct {
	Found                 bool                     `json:"found"`
	Available             bool                     `json:"available"`
	AvailableAmount       decimal.Decimal          `json:"available_amount"`
	Requested             decimal.Decimal          `json:"requested"`
	RequestedOriginal     decimal.Decimal          `json:"requested_original"`
	RequestedCurrency     string                   `json:"requested_currency"`
	Currency              string                   `json:"currency"`
	Converted             bool                     `json:"converted"`
	Budgeted              decimal.Decimal          `json:"budgeted"`
	Committed             decimal.Decimal          `json:"committed"`
	Reserved              decimal.Decimal          `json:"reserved"`
	PendingHold           decimal.Decimal          `json:"pending_hold"`
	UtilizationPercent    decimal.Decimal          `json:"utilization_percent"`
	CanAutoApprove        bool                     `json:"can_auto_approve"`
	AutoApprovalThreshold decimal.Decimal          `json:"auto_approval_threshold"`
	Reason                string                   `json:"reason"`
	BudgetIDs             []uuid.UUID              `json:"budget_ids"`
	TargetBudgetID        *uuid.UUID               `json:"target_budget_id,omitempty"`
	Siblings              []approval.SiblingBudget `json:"siblings,omitempty"`
}

// Check reports whether amount fits the matched budgets and whether it would
// be auto-approved. It never mutates the ledger.
func (s *Service) Check(ctx context.Context, in approval.Input) (*CheckResult, error) {
	if !in.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	in.Amount = in.Amount.Round(2)
	snap, err := s.Snapshot(ctx, in)
	if err != nil {
		return nil, err
	}
	dec := approval.Decide(snap, in.Department, in.FiscalPeriod, s.Policy)
	out := &CheckResult{
		Found:                 snap.Found,
		Available:             snap.Found && !snap.Requested.GreaterThan(snap.Available()),
		AvailableAmount:       snap.Available(),
		Requested:             snap.Requested,
		RequestedOriginal:     in.Amount,
		RequestedCurrency:     strings.ToUpper(in.Currency),
		Currency:              snap.Currency,
		Converted:             snap.Converted,
		Budgeted:              snap.Budgeted,
		Committed:             snap.Committed,
		Reserved:              snap.Reserved,
		PendingHold:           snap.PendingHold,
		UtilizationPercent:    dec.UtilizationPercent,
		CanAutoApprove:        dec.CanAutoApprove,
		AutoApprovalThreshold: dec.Threshold,
		Reason:                dec.Reason,
		BudgetIDs:             snap.BudgetIDs,
		TargetBudgetID:        dec.TargetBudgetID,
		Siblings:              snap.Siblings,
	}
	if out.RequestedCurrency == "" {
		out.RequestedCurrency = snap.Currency
	}
	if !snap.Found {
		out.AvailableAmount = decimal.Zero
	}
	return out, nil
}

// Health labels for GetBudgetStatus.
const (
	HealthHealthy  = "healthy"
	HealthWarning  = "warning"
	HealthHighRisk = "high-risk"
	HealthCritical = "critical"
)

// HealthLabel buckets a utilization percentage at 70, 80 and 90.
func HealthLabel(pct decimal.Decimal) string {
	switch {
	case pct.LessThan(decimal.NewFromInt(70)):
		return HealthHealthy
	case pct.LessThan(decimal.NewFromInt(80)):
		return HealthWarning
	case pct.LessThan(decimal.NewFromInt(90)):
		return HealthHighRisk
	default:
		return HealthCritical
	}
}

// Status is the GetBudgetStatus view of one budget.
type Status struct {
	BudgetID           uuid.UUID       `json:"budget_id"`
	Department         string          `json:"department"`
	SubCategory        string          `json:"sub_category"`
	FiscalPeriod       string          `json:"fiscal_period"`
	Currency           string          `json:"currency"`
	Source             string          `json:"source"`
	Budgeted           decimal.Decimal `json:"budgeted"`
	Committed          decimal.Decimal `json:"committed"`
	Reserved           decimal.Decimal `json:"reserved"`
	Available          decimal.Decimal `json:"available"`
	UtilizationPercent decimal.Decimal `json:"utilization_percent"`
	HealthLabel        string          `json:"health_label"`
}

// Status returns totals and health for a budget of the customer.
func (s *Service) Status(ctx context.Context, customerID, budgetID uuid.UUID) (*Status, error) {
	var b domain.Budget
	err := s.DB.WithContext(ctx).Preload("Utilization").
		Where("budget_id = ? AND customer_id = ?", budgetID, customerID).
		First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrBudgetNotFound
	}
	if err != nil {
		return nil, err
	}
	return StatusOf(&b), nil
}

// StatusOf derives the status view from a budget with its utilization loaded.
func StatusOf(b *domain.Budget) *Status {
	committed := b.Committed().Round(2)
	reserved := b.Reserved().Round(2)
	pct := approval.UtilizationPercent(b.BudgetedAmount, committed, reserved).Round(2)
	return &Status{
		BudgetID:           b.BudgetID,
		Department:         b.Department,
		SubCategory:        b.SubCategory,
		FiscalPeriod:       b.FiscalPeriod,
		Currency:           b.Currency,
		Source:             b.Source,
		Budgeted:           b.BudgetedAmount.Round(2),
		Committed:          committed,
		Reserved:           reserved,
		Available:          b.BudgetedAmount.Sub(committed).Sub(reserved).Round(2),
		UtilizationPercent: pct,
		HealthLabel:        HealthLabel(pct),
	}
}
