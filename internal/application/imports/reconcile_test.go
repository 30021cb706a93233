package imports

import (
	"testing"
	"time"

	"budget-tracker/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func budget(dept, sub, amount, source string, deleted bool) domain.Budget {
	b := domain.Budget{
		BudgetID:       uuid.New(),
		Department:     dept,
		SubCategory:    sub,
		FiscalPeriod:   "FY2025",
		BudgetedAmount: decimal.RequireFromString(amount),
		Currency:       "USD",
		Source:         source,
	}
	if deleted {
		b.DeletedAt = gorm.DeletedAt{Time: time.Now(), Valid: true}
	}
	return b
}

func row(line int, dept, sub, amount string) Row {
	return Row{Line: line, Department: dept, SubCategory: sub, FiscalPeriod: "FY2025", Amount: decimal.RequireFromString(amount), Currency: "USD"}
}

func TestReconcile_Upsert(t *testing.T) {
	existing := []domain.Budget{
		budget("Engineering", "", "1000", domain.SourceExcel, false),
		budget("Sales", "", "500", domain.SourceExcel, false),
		budget("Legal", "", "300", domain.SourceExcel, true),
		budget("Ops", "", "50", domain.SourceExcel, false),
	}
	plan := Reconcile([]Row{
		row(2, "engineering", "", "1000.00"),
		row(3, "Sales", "", "750"),
		row(4, "Legal", "", "300"),
		row(5, "Marketing", "Events", "200"),
		row(6, "SALES", "", "1"),
	}, existing, ModeUpsert, domain.SourceExcel)

	require.Len(t, plan.Unchanged, 1)
	require.Len(t, plan.Update, 1)
	assert.Equal(t, "Sales", plan.Update[0].Budget.Department)
	require.Len(t, plan.Restore, 1)
	assert.Equal(t, "Legal", plan.Restore[0].Budget.Department)
	require.Len(t, plan.Create, 1)
	assert.Equal(t, "Marketing", plan.Create[0].Department)
	require.Len(t, plan.Errors, 1)
	assert.Equal(t, 6, plan.Errors[0].Row)
	assert.Contains(t, plan.Errors[0].Error, "duplicate of row 3")
	assert.Empty(t, plan.SoftDelete)
}

func TestReconcile_SyncSoftDeletesSameSourceOnly(t *testing.T) {
	existing := []domain.Budget{
		budget("Engineering", "", "1000", domain.SourceExcel, false),
		budget("Sales", "", "500", domain.SourceExcel, false),
		budget("Manual", "", "10", domain.SourceManual, false),
		budget("Gone", "", "10", domain.SourceExcel, true),
	}
	plan := Reconcile([]Row{row(2, "Engineering", "", "1000")}, existing, ModeSync, domain.SourceExcel)

	require.Len(t, plan.SoftDelete, 1)
	assert.Equal(t, "Sales", plan.SoftDelete[0].Department)
}
