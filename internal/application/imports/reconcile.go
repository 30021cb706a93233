package imports

import (
	"fmt"
	"sort"
	"strings"

	"budget-tracker/internal/domain"
)

// Import modes. Upsert never removes budgets; sync soft-deletes budgets of
// the same source that the batch no longer contains.
const (
	ModeUpsert = "upsert"
	ModeSync   = "sync"
)

// Key is the natural key of a budget within a customer.
type Key struct {
	Department   string
	SubCategory  string
	FiscalPeriod string
}

func keyOf(department, subCategory, fiscalPeriod string) Key {
	return Key{
		Department:   strings.ToLower(strings.TrimSpace(department)),
		SubCategory:  strings.ToLower(strings.TrimSpace(subCategory)),
		FiscalPeriod: strings.ToLower(strings.TrimSpace(fiscalPeriod)),
	}
}

// Change pairs an incoming row with the stored budget it lands on.
type Change struct {
	Row    Row
	Budget domain.Budget
}

// Plan is the three-way diff between an import batch and the store.
type Plan struct {
	Create     []Row
	Update     []Change
	Restore    []Change
	Unchanged  []Change
	SoftDelete []domain.Budget
	Errors     []RowError
}

// Reconcile diffs rows against existing, which must include soft-deleted
// budgets of the customer. It has no side effects.
func Reconcile(rows []Row, existing []domain.Budget, mode, source string) Plan {
	var plan Plan
	stored := make(map[Key]domain.Budget, len(existing))
	for _, b := range existing {
		stored[keyOf(b.Department, b.SubCategory, b.FiscalPeriod)] = b
	}

	seen := make(map[Key]int, len(rows))
	for _, r := range rows {
		k := keyOf(r.Department, r.SubCategory, r.FiscalPeriod)
		if first, dup := seen[k]; dup {
			plan.Errors = append(plan.Errors, RowError{
				Row:   r.Line,
				Error: fmt.Sprintf("duplicate of row %d for %s / %s / %s", first, r.Department, subLabel(r.SubCategory), r.FiscalPeriod),
			})
			continue
		}
		seen[k] = r.Line

		b, ok := stored[k]
		switch {
		case !ok:
			plan.Create = append(plan.Create, r)
		case b.DeletedAt.Valid:
			plan.Restore = append(plan.Restore, Change{Row: r, Budget: b})
		case sameValues(b, r):
			plan.Unchanged = append(plan.Unchanged, Change{Row: r, Budget: b})
		default:
			plan.Update = append(plan.Update, Change{Row: r, Budget: b})
		}
	}

	if mode == ModeSync {
		for k, b := range stored {
			if _, ok := seen[k]; ok || b.DeletedAt.Valid || b.Source != source {
				continue
			}
			plan.SoftDelete = append(plan.SoftDelete, b)
		}
		sort.Slice(plan.SoftDelete, func(i, j int) bool {
			return plan.SoftDelete[i].BudgetID.String() < plan.SoftDelete[j].BudgetID.String()
		})
	}
	return plan
}

func sameValues(b domain.Budget, r Row) bool {
	return b.BudgetedAmount.Round(2).Equal(r.Amount.Round(2)) &&
		strings.EqualFold(b.Currency, r.Currency)
}

func subLabel(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
