package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Request statuses.
const (
	RequestPending      = "pending"
	RequestAutoApproved = "auto_approved"
	RequestApproved     = "approved"
	RequestRejected     = "rejected"
)

// Ledger actions recorded on a request once budget has been touched.
const (
	LedgerActionNone      = ""
	LedgerActionReserved  = "reserved"
	LedgerActionCommitted = "committed"
)

// Request is a business user's spend ask against a department budget.
type Request struct {
	RequestID       uuid.UUID       `gorm:"column:request_id;type:uuid;primaryKey" json:"request_id"`
	CustomerID      uuid.UUID       `gorm:"column:customer_id;type:uuid;not null;index" json:"customer_id"`
	Supplier        string          `gorm:"column:supplier;not null" json:"supplier"`
	Description     string          `gorm:"column:description;not null" json:"description"`
	Amount          decimal.Decimal `gorm:"column:amount;type:decimal(18,2);not null" json:"amount"`
	Currency        string          `gorm:"column:currency;type:varchar(3);not null;default:'USD'" json:"currency"`
	BudgetCategory  string          `gorm:"column:budget_category;not null" json:"budget_category"`
	SubCategory     string          `gorm:"column:sub_category;not null;default:''" json:"sub_category"`
	FiscalPeriod    string          `gorm:"column:fiscal_period;not null" json:"fiscal_period"`
	BudgetID        *uuid.UUID      `gorm:"column:budget_id;type:uuid;index" json:"budget_id"`
	Status          string          `gorm:"column:status;type:varchar(20);not null;default:'pending';index" json:"status"`
	ApprovalReason  *string         `gorm:"column:approval_reason" json:"approval_reason"`
	RejectionReason *string         `gorm:"column:rejection_reason" json:"rejection_reason"`
	LedgerAction    string          `gorm:"column:ledger_action;type:varchar(20);not null;default:''" json:"ledger_action"`
	CreatedByID     uuid.UUID       `gorm:"column:created_by_id;type:uuid;not null" json:"created_by_id"`
	ReviewedByID    *uuid.UUID      `gorm:"column:reviewed_by_id;type:uuid" json:"reviewed_by_id"`
	ReviewedAt      *time.Time      `gorm:"column:reviewed_at" json:"reviewed_at"`
	CreatedAt       time.Time       `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt       time.Time       `gorm:"column:updatedAt" json:"updatedAt"`
}

func (Request) TableName() string {
	return "Requests"
}

func (r *Request) BeforeCreate(tx *gorm.DB) error {
	if r.RequestID == uuid.Nil {
		r.RequestID = uuid.New()
	}
	return nil
}
