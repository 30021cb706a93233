package approval

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Selector identifies the budgets a spend is charged against. A nil
// SubCategory selects every budget of the department for the period.
type Selector struct {
	CustomerID   uuid.UUID
	Department   string
	SubCategory  *string
	FiscalPeriod string
}

// Input is a proposed spend to evaluate.
type Input struct {
	Selector
	Amount   decimal.Decimal
	Currency string
	// ExcludeRequestID keeps a request from discounting its own pending hold.
	ExcludeRequestID *uuid.UUID
}

// SiblingBudget describes another budget of the department, returned when the
// selector matched nothing.
type SiblingBudget struct {
	BudgetID     uuid.UUID       `json:"budget_id"`
	SubCategory  string          `json:"sub_category"`
	FiscalPeriod string          `json:"fiscal_period"`
	Budgeted     decimal.Decimal `json:"budgeted_amount"`
}

// Snapshot is the ledger state a decision is taken on. Amounts are in the
// budget currency.
type Snapshot struct {
	Found          bool            `json:"found"`
	BudgetIDs      []uuid.UUID     `json:"budget_ids"`
	TargetBudgetID uuid.UUID       `json:"target_budget_id"`
	Currency       string          `json:"currency"`
	Requested      decimal.Decimal `json:"requested"`
	Converted      bool            `json:"converted"`
	Budgeted       decimal.Decimal `json:"budgeted"`
	Committed      decimal.Decimal `json:"committed"`
	Reserved       decimal.Decimal `json:"reserved"`
	PendingHold    decimal.Decimal `json:"pending_hold"`
	Siblings       []SiblingBudget `json:"siblings,omitempty"`
}

// Available is budgeted minus committed, reserved and recent pending holds,
// floored at zero.
func (s Snapshot) Available() decimal.Decimal {
	a := s.Budgeted.Sub(s.Committed).Sub(s.Reserved).Sub(s.PendingHold)
	if a.IsNegative() {
		return decimal.Zero
	}
	return a
}

// UtilizationPercent is (committed+reserved)/budgeted*100, or 100 for an
// empty budget.
func (s Snapshot) UtilizationPercent() decimal.Decimal {
	return UtilizationPercent(s.Budgeted, s.Committed, s.Reserved)
}

// UtilizationPercent is shared with the ledger status view.
func UtilizationPercent(budgeted, committed, reserved decimal.Decimal) decimal.Decimal {
	if !budgeted.IsPositive() {
		return hundred
	}
	return committed.Add(reserved).Div(budgeted).Mul(hundred)
}
