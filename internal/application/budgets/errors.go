package budgets

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrBudgetNotFound  = errors.New("Budget not found")
	ErrDuplicateBudget = errors.New("A budget already exists for this department, sub-category and fiscal period")
	ErrBudgetInUse     = errors.New("Budget has committed or reserved spend and cannot be deleted")
	ErrBelowMinimum    = errors.New("Budgeted amount is below committed plus reserved")
	ErrInvalidAmount   = errors.New("Budgeted amount must be zero or positive")
	ErrMissingFields   = errors.New("Department and fiscal period are required")
	ErrInvalidCurrency = errors.New("Currency must be a 3-letter ISO code")
	ErrInvalidSource   = errors.New("Invalid budget source")
	ErrActorRequired   = errors.New("Actor identity is required")
)

// MinimumAmountError reports the smallest amount the budget can be set to.
type MinimumAmountError struct {
	Minimum decimal.Decimal
}

func (e *MinimumAmountError) Error() string {
	return fmt.Sprintf("Budgeted amount cannot be lower than %s (committed plus reserved)", e.Minimum.StringFixed(2))
}

func (e *MinimumAmountError) Is(target error) bool {
	return target == ErrBelowMinimum
}
