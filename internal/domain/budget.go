package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Budget sources.
const (
	SourceManual       = "manual"
	SourceExcel        = "excel"
	SourceCSV          = "csv"
	SourceGoogleSheets = "google_sheets"
	SourceAPI          = "api"
)

// ValidSources lists the accepted Budget.Source values.
var ValidSources = []string{SourceManual, SourceExcel, SourceCSV, SourceGoogleSheets, SourceAPI}

// IsValidSource reports whether s is an accepted budget source.
func IsValidSource(s string) bool {
	for _, v := range ValidSources {
		if v == s {
			return true
		}
	}
	return false
}

// Budget is one allocation for (customer, department, sub-category, fiscal period).
// SubCategory is "" when the budget covers the whole department, which keeps the
// unique key free of NULLs.
type Budget struct {
	BudgetID       uuid.UUID          `gorm:"column:budget_id;type:uuid;primaryKey" json:"budget_id"`
	CustomerID     uuid.UUID          `gorm:"column:customer_id;type:uuid;not null;uniqueIndex:idx_budget_key,priority:1" json:"customer_id"`
	Department     string             `gorm:"column:department;not null;uniqueIndex:idx_budget_key,priority:2" json:"department"`
	SubCategory    string             `gorm:"column:sub_category;not null;default:'';uniqueIndex:idx_budget_key,priority:3" json:"sub_category"`
	FiscalPeriod   string             `gorm:"column:fiscal_period;not null;uniqueIndex:idx_budget_key,priority:4" json:"fiscal_period"`
	BudgetedAmount decimal.Decimal    `gorm:"column:budgeted_amount;type:decimal(18,2);not null;default:0" json:"budgeted_amount"`
	Currency       string             `gorm:"column:currency;type:varchar(3);not null;default:'USD'" json:"currency"`
	Source         string             `gorm:"column:source;type:varchar(20);not null;default:'manual'" json:"source"`
	CreatedAt      time.Time          `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt      time.Time          `gorm:"column:updatedAt" json:"updatedAt"`
	DeletedAt      gorm.DeletedAt     `gorm:"column:deleted_at;index" json:"-"`
	Utilization    *BudgetUtilization `gorm:"foreignKey:BudgetID;references:BudgetID;constraint:OnDelete:CASCADE" json:"utilization,omitempty"`
}

func (Budget) TableName() string {
	return "Budgets"
}

func (b *Budget) BeforeCreate(tx *gorm.DB) error {
	if b.BudgetID == uuid.Nil {
		b.BudgetID = uuid.New()
	}
	return nil
}

// Committed returns the committed amount, zero when the utilization row is not loaded.
func (b *Budget) Committed() decimal.Decimal {
	if b.Utilization == nil {
		return decimal.Zero
	}
	return b.Utilization.CommittedAmount
}

// Reserved returns the reserved amount, zero when the utilization row is not loaded.
func (b *Budget) Reserved() decimal.Decimal {
	if b.Utilization == nil {
		return decimal.Zero
	}
	return b.Utilization.ReservedAmount
}

// Available is budgeted - committed - reserved.
func (b *Budget) Available() decimal.Decimal {
	return b.BudgetedAmount.Sub(b.Committed()).Sub(b.Reserved())
}

// BudgetUtilization is the 1:1 companion row holding the mutable ledger buckets.
// It is only written through the ledger operations.
type BudgetUtilization struct {
	BudgetID        uuid.UUID       `gorm:"column:budget_id;type:uuid;primaryKey" json:"budget_id"`
	CommittedAmount decimal.Decimal `gorm:"column:committed_amount;type:decimal(18,2);not null;default:0" json:"committed_amount"`
	ReservedAmount  decimal.Decimal `gorm:"column:reserved_amount;type:decimal(18,2);not null;default:0" json:"reserved_amount"`
	UpdatedAt       time.Time       `gorm:"column:updatedAt" json:"updatedAt"`
}

func (BudgetUtilization) TableName() string {
	return "BudgetUtilizations"
}
