// Package dbtest opens migrated in-memory SQLite databases for tests.
package dbtest

import (
	"testing"

	"budget-tracker/internal/domain"
	"budget-tracker/internal/infrastructure/database"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open returns a fresh in-memory database with every model migrated.
// The pool is pinned to one connection: each new ":memory:" connection would
// otherwise see an empty database.
func Open(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, database.AutoMigrate(db))
	return db
}

// SeedCustomer inserts a customer and returns its id.
func SeedCustomer(t *testing.T, db *gorm.DB) uuid.UUID {
	t.Helper()
	c := domain.Customer{Name: "Acme Ltd"}
	require.NoError(t, db.Create(&c).Error)
	return c.CustomerID
}

// BudgetSeed describes a budget row plus its starting utilization.
type BudgetSeed struct {
	CustomerID   uuid.UUID
	Department   string
	SubCategory  string
	FiscalPeriod string
	Budgeted     string
	Committed    string
	Reserved     string
	Currency     string
	Source       string
}

// SeedBudget inserts a budget and its utilization row.
func SeedBudget(t *testing.T, db *gorm.DB, s BudgetSeed) *domain.Budget {
	t.Helper()
	if s.FiscalPeriod == "" {
		s.FiscalPeriod = "FY2025"
	}
	if s.Currency == "" {
		s.Currency = "USD"
	}
	if s.Source == "" {
		s.Source = domain.SourceManual
	}
	b := &domain.Budget{
		CustomerID:     s.CustomerID,
		Department:     s.Department,
		SubCategory:    s.SubCategory,
		FiscalPeriod:   s.FiscalPeriod,
		BudgetedAmount: amount(s.Budgeted),
		Currency:       s.Currency,
		Source:         s.Source,
	}
	require.NoError(t, db.Omit("Utilization").Create(b).Error)
	u := &domain.BudgetUtilization{
		BudgetID:        b.BudgetID,
		CommittedAmount: amount(s.Committed),
		ReservedAmount:  amount(s.Reserved),
	}
	require.NoError(t, db.Create(u).Error)
	b.Utilization = u
	return b
}

func amount(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	return decimal.RequireFromString(s)
}
