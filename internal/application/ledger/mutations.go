package ledger

import (
	"context"
	"errors"

	"budget-tracker/internal/application/audit"
	"budget-tracker/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Release buckets.
const (
	BucketCommitted = "committed"
	BucketReserved  = "reserved"
)

// budgetCap is the live budgeted amount; soft-deleted budgets cap at nothing.
const budgetCap = `(SELECT budgeted_amount FROM "Budgets" WHERE budget_id = ? AND deleted_at IS NULL)`

// amountArg binds a decimal as a numeric SQL value.
const amountArg = "CAST(? AS NUMERIC)"

// withinCap guards lhs <= budgetCap. Both sides are compared in whole cents so
// stores that keep decimals as floating point still accept the exact
// available amount.
func withinCap(lhs string) string {
	return "ROUND((" + lhs + ") * 100) <= ROUND(" + budgetCap + " * 100)"
}

// floorSub is column minus the bound amount, floored at zero. Takes two args.
func floorSub(column string) string {
	return "CASE WHEN ROUND(" + column + " * 100) > ROUND(" + amountArg + " * 100) THEN " + column + " - " + amountArg + " ELSE 0 END"
}

// rounded keeps stored buckets at two places.
func rounded(expr string) string {
	return "ROUND(" + expr + ", 2)"
}

// MutationInput identifies one ledger mutation. CustomerID scopes the budget.
type MutationInput struct {
	CustomerID uuid.UUID
	BudgetID   uuid.UUID
	Amount     decimal.Decimal
	RequestID  *uuid.UUID
	Reason     string
	Actor      string
}

// InsufficientBudget is the structured refusal of a reserve or commit.
type InsufficientBudget struct {
	Available decimal.Decimal `json:"available"`
	Requested decimal.Decimal `json:"requested"`
}

// MutationResult carries the post-state. On refusal Success is false, the
// ledger is untouched and Insufficient holds the numbers.
type MutationResult struct {
	Success      bool                `json:"success"`
	BudgetID     uuid.UUID           `json:"budget_id"`
	NewCommitted decimal.Decimal     `json:"new_committed"`
	NewReserved  decimal.Decimal     `json:"new_reserved"`
	NewAvailable decimal.Decimal     `json:"new_available"`
	Insufficient *InsufficientBudget `json:"insufficient,omitempty"`
}

type amounts struct {
	Committed string `json:"committed"`
	Reserved  string `json:"reserved"`
}

func amountsOf(u *domain.BudgetUtilization) amounts {
	return amounts{Committed: u.CommittedAmount.StringFixed(2), Reserved: u.ReservedAmount.StringFixed(2)}
}

func (in *MutationInput) normalize() error {
	if in.Actor == "" {
		return ErrActorRequired
	}
	in.Amount = in.Amount.Round(2)
	if !in.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	return nil
}

// Reserve soft-holds amount: reserved += amount while committed + reserved
// stays within budget.
func (s *Service) Reserve(ctx context.Context, in MutationInput) (*MutationResult, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	return s.mutate(ctx, in, domain.AuditReserve, func(tx *gorm.DB) *gorm.DB {
		return tx.Model(&domain.BudgetUtilization{}).
			Where("budget_id = ?", in.BudgetID).
			Where(withinCap("committed_amount + reserved_amount + "+amountArg), in.Amount, in.BudgetID).
			Updates(map[string]interface{}{
				"reserved_amount": gorm.Expr(rounded("reserved_amount + "+amountArg), in.Amount),
			})
	})
}

// Commit hard-locks amount. With wasReserved the matching reserved amount is
// moved into committed, flooring reserved at zero. Nothing changes when the
// post-state would exceed the budget.
func (s *Service) Commit(ctx context.Context, in MutationInput, wasReserved bool) (*MutationResult, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	return s.mutate(ctx, in, domain.AuditCommit, func(tx *gorm.DB) *gorm.DB {
		q := tx.Model(&domain.BudgetUtilization{}).Where("budget_id = ?", in.BudgetID)
		if !wasReserved {
			return q.Where(withinCap("committed_amount + reserved_amount + "+amountArg), in.Amount, in.BudgetID).
				Updates(map[string]interface{}{
					"committed_amount": gorm.Expr(rounded("committed_amount + "+amountArg), in.Amount),
				})
		}
		return q.Where(withinCap("committed_amount + "+amountArg+" + ("+floorSub("reserved_amount")+")"),
			in.Amount, in.Amount, in.Amount, in.BudgetID).
			Updates(map[string]interface{}{
				"committed_amount": gorm.Expr(rounded("committed_amount + "+amountArg), in.Amount),
				"reserved_amount":  gorm.Expr(rounded(floorSub("reserved_amount")), in.Amount, in.Amount),
			})
	})
}

// Release decrements the named bucket, clamping at zero instead of failing.
func (s *Service) Release(ctx context.Context, in MutationInput, bucket string) (*MutationResult, error) {
	var column string
	switch bucket {
	case BucketCommitted:
		column = "committed_amount"
	case BucketReserved:
		column = "reserved_amount"
	default:
		return nil, ErrInvalidReleaseType
	}
	if err := in.normalize(); err != nil {
		return nil, err
	}
	return s.mutate(ctx, in, domain.AuditRelease, func(tx *gorm.DB) *gorm.DB {
		return tx.Model(&domain.BudgetUtilization{}).
			Where("budget_id = ?", in.BudgetID).
			Updates(map[string]interface{}{
				column: gorm.Expr(rounded(floorSub(column)), in.Amount, in.Amount),
			})
	})
}

// mutate runs apply as a single conditional UPDATE inside a transaction and
// writes the audit row in the same transaction. Zero rows affected means the
// guard refused the change.
func (s *Service) mutate(ctx context.Context, in MutationInput, action string, apply func(tx *gorm.DB) *gorm.DB) (*MutationResult, error) {
	var result *MutationResult
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var b domain.Budget
		err := tx.Where("budget_id = ? AND customer_id = ?", in.BudgetID, in.CustomerID).First(&b).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrBudgetNotFound
		}
		if err != nil {
			return err
		}

		before, err := lockUtilization(tx, b.BudgetID)
		if err != nil {
			return err
		}

		res := apply(tx)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			result = resultOf(&b, before)
			result.Insufficient = &InsufficientBudget{
				Available: result.NewAvailable,
				Requested: in.Amount,
			}
			return nil
		}

		var after domain.BudgetUtilization
		if err := tx.Where("budget_id = ?", b.BudgetID).Take(&after).Error; err != nil {
			return err
		}
		if err := audit.Record(tx, audit.Entry{
			BudgetID:  b.BudgetID,
			RequestID: in.RequestID,
			Action:    action,
			Old:       amountsOf(before),
			New:       amountsOf(&after),
			ChangedBy: in.Actor,
			Reason:    in.Reason,
		}); err != nil {
			return err
		}
		result = resultOf(&b, &after)
		result.Success = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// lockUtilization reads the utilization row FOR UPDATE, creating an empty one
// for budgets that predate it.
func lockUtilization(tx *gorm.DB, budgetID uuid.UUID) (*domain.BudgetUtilization, error) {
	var u domain.BudgetUtilization
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("budget_id = ?", budgetID).Take(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		u = domain.BudgetUtilization{BudgetID: budgetID, CommittedAmount: decimal.Zero, ReservedAmount: decimal.Zero}
		if err := tx.Create(&u).Error; err != nil {
			return nil, err
		}
		return &u, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func resultOf(b *domain.Budget, u *domain.BudgetUtilization) *MutationResult {
	committed := u.CommittedAmount.Round(2)
	reserved := u.ReservedAmount.Round(2)
	available := b.BudgetedAmount.Sub(committed).Sub(reserved).Round(2)
	if available.IsNegative() {
		available = decimal.Zero
	}
	return &MutationResult{
		BudgetID:     b.BudgetID,
		NewCommitted: committed,
		NewReserved:  reserved,
		NewAvailable: available,
	}
}
