// Package budgets administers budget rows. The utilization buckets are only
// read here; they change through the ledger.
package budgets

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"budget-tracker/internal/application/audit"
	"budget-tracker/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var currencyRe = regexp.MustCompile(`^[A-Z]{3}$`)

type Service struct {
	DB *gorm.DB
}

// CreateInput describes a new budget. Source defaults to manual.
type CreateInput struct {
	CustomerID     uuid.UUID
	Department     string
	SubCategory    string
	FiscalPeriod   string
	BudgetedAmount decimal.Decimal
	Currency       string
	Source         string
	Actor          string
}

// Filter narrows List.
type Filter struct {
	FiscalPeriod string
	Department   string
}

type budgetedValue struct {
	Budgeted string `json:"budgeted"`
	Currency string `json:"currency,omitempty"`
}

// NormalizeCurrency upper-cases code and defaults it to USD.
func NormalizeCurrency(code string) (string, error) {
	c := strings.ToUpper(strings.TrimSpace(code))
	if c == "" {
		return "USD", nil
	}
	if !currencyRe.MatchString(c) {
		return "", ErrInvalidCurrency
	}
	return c, nil
}

// Create inserts a budget with an empty utilization row. A soft-deleted budget
// with the same key is restored instead.
func (s *Service) Create(ctx context.Context, in CreateInput) (*domain.Budget, error) {
	in.Department = strings.TrimSpace(in.Department)
	in.SubCategory = strings.TrimSpace(in.SubCategory)
	in.FiscalPeriod = strings.TrimSpace(in.FiscalPeriod)
	if in.Department == "" || in.FiscalPeriod == "" {
		return nil, ErrMissingFields
	}
	if in.Actor == "" {
		return nil, ErrActorRequired
	}
	if in.BudgetedAmount.IsNegative() {
		return nil, ErrInvalidAmount
	}
	currency, err := NormalizeCurrency(in.Currency)
	if err != nil {
		return nil, err
	}
	source := in.Source
	if source == "" {
		source = domain.SourceManual
	}
	if !domain.IsValidSource(source) {
		return nil, ErrInvalidSource
	}
	amount := in.BudgetedAmount.Round(2)

	var out domain.Budget
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing domain.Budget
		err := tx.Unscoped().Preload("Utilization").
			Where("customer_id = ? AND LOWER(department) = LOWER(?) AND LOWER(sub_category) = LOWER(?) AND fiscal_period = ?",
				in.CustomerID, in.Department, in.SubCategory, in.FiscalPeriod).
			First(&existing).Error
		switch {
		case err == nil && !existing.DeletedAt.Valid:
			return ErrDuplicateBudget
		case err == nil:
			return s.restore(tx, &existing, amount, currency, source, in.Actor, &out)
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		b := domain.Budget{
			CustomerID:     in.CustomerID,
			Department:     in.Department,
			SubCategory:    in.SubCategory,
			FiscalPeriod:   in.FiscalPeriod,
			BudgetedAmount: amount,
			Currency:       currency,
			Source:         source,
		}
		if err := tx.Omit(clause.Associations).Create(&b).Error; err != nil {
			return err
		}
		u := domain.BudgetUtilization{BudgetID: b.BudgetID, CommittedAmount: decimal.Zero, ReservedAmount: decimal.Zero}
		if err := tx.Create(&u).Error; err != nil {
			return err
		}
		if err := audit.Record(tx, audit.Entry{
			BudgetID:  b.BudgetID,
			Action:    domain.AuditCreate,
			New:       budgetedValue{Budgeted: amount.StringFixed(2), Currency: currency},
			ChangedBy: in.Actor,
			Reason:    "Budget created (" + source + ")",
		}); err != nil {
			return err
		}
		b.Utilization = &u
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Service) restore(tx *gorm.DB, b *domain.Budget, amount decimal.Decimal, currency, source, actor string, out *domain.Budget) error {
	minimum := b.Committed().Add(b.Reserved())
	if amount.LessThan(minimum) {
		return &MinimumAmountError{Minimum: minimum.Round(2)}
	}
	old := budgetedValue{Budgeted: b.BudgetedAmount.StringFixed(2), Currency: b.Currency}
	if err := tx.Unscoped().Model(&domain.Budget{}).Where("budget_id = ?", b.BudgetID).Updates(map[string]interface{}{
		"deleted_at":      nil,
		"budgeted_amount": amount,
		"currency":        currency,
		"source":          source,
	}).Error; err != nil {
		return err
	}
	if err := audit.Record(tx, audit.Entry{
		BudgetID:  b.BudgetID,
		Action:    domain.AuditCreate,
		Old:       old,
		New:       budgetedValue{Budgeted: amount.StringFixed(2), Currency: currency},
		ChangedBy: actor,
		Reason:    "Budget restored",
	}); err != nil {
		return err
	}
	b.DeletedAt = gorm.DeletedAt{}
	b.BudgetedAmount = amount
	b.Currency = currency
	b.Source = source
	*out = *b
	return nil
}

// AmendAmount sets the budgeted amount. The update is conditional on the new
// amount covering committed plus reserved.
func (s *Service) AmendAmount(ctx context.Context, customerID, budgetID uuid.UUID, amount decimal.Decimal, actor, reason string) (*domain.Budget, error) {
	if amount.IsNegative() {
		return nil, ErrInvalidAmount
	}
	if actor == "" {
		return nil, ErrActorRequired
	}
	amount = amount.Round(2)

	var out domain.Budget
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		b, err := findBudget(tx, customerID, budgetID)
		if err != nil {
			return err
		}
		res := tx.Model(&domain.Budget{}).
			Where("budget_id = ?", budgetID).
			Where(`COALESCE((SELECT ROUND((committed_amount + reserved_amount) * 100) FROM "BudgetUtilizations" WHERE budget_id = ?), 0) <= ROUND(CAST(? AS NUMERIC) * 100)`, budgetID, amount).
			Update("budgeted_amount", amount)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return &MinimumAmountError{Minimum: b.Committed().Add(b.Reserved()).Round(2)}
		}
		if reason == "" {
			reason = "Budgeted amount amended"
		}
		if err := audit.Record(tx, audit.Entry{
			BudgetID:  budgetID,
			Action:    domain.AuditUpdate,
			Old:       budgetedValue{Budgeted: b.BudgetedAmount.StringFixed(2)},
			New:       budgetedValue{Budgeted: amount.StringFixed(2)},
			ChangedBy: actor,
			Reason:    reason,
		}); err != nil {
			return err
		}
		b.BudgetedAmount = amount
		out = *b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete hard-deletes a budget with no committed or reserved spend, together
// with its utilization row and audit trail.
func (s *Service) Delete(ctx context.Context, customerID, budgetID uuid.UUID) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		b, err := findBudget(tx, customerID, budgetID)
		if err != nil {
			return err
		}
		if !b.Committed().IsZero() || !b.Reserved().IsZero() {
			return ErrBudgetInUse
		}
		if err := tx.Where("budget_id = ?", budgetID).Delete(&domain.AuditLog{}).Error; err != nil {
			return err
		}
		if err := tx.Where("budget_id = ?", budgetID).Delete(&domain.BudgetUtilization{}).Error; err != nil {
			return err
		}
		return tx.Unscoped().Where("budget_id = ?", budgetID).Delete(&domain.Budget{}).Error
	})
}

// List returns the customer's live budgets with utilization.
func (s *Service) List(ctx context.Context, customerID uuid.UUID, f Filter) ([]domain.Budget, error) {
	q := s.DB.WithContext(ctx).Preload("Utilization").Where("customer_id = ?", customerID)
	if f.FiscalPeriod != "" {
		q = q.Where("fiscal_period = ?", f.FiscalPeriod)
	}
	if f.Department != "" {
		q = q.Where("LOWER(department) = LOWER(?)", f.Department)
	}
	var out []domain.Budget
	err := q.Order("fiscal_period ASC, department ASC, sub_category ASC").Find(&out).Error
	return out, err
}

// Get returns one live budget of the customer.
func (s *Service) Get(ctx context.Context, customerID, budgetID uuid.UUID) (*domain.Budget, error) {
	return findBudget(s.DB.WithContext(ctx), customerID, budgetID)
}

func findBudget(db *gorm.DB, customerID, budgetID uuid.UUID) (*domain.Budget, error) {
	var b domain.Budget
	err := db.Preload("Utilization").
		Where("budget_id = ? AND customer_id = ?", budgetID, customerID).
		First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrBudgetNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}
