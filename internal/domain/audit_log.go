package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Audit actions.
const (
	AuditCreate  = "CREATE"
	AuditUpdate  = "UPDATE"
	AuditReserve = "RESERVE"
	AuditCommit  = "COMMIT"
	AuditRelease = "RELEASE"
	AuditDelete  = "DELETE"
)

// AuditLog is an append-only record of one budget mutation.
// OldValue and NewValue hold JSON snapshots of the amounts before and after.
type AuditLog struct {
	AuditID   uuid.UUID  `gorm:"column:audit_id;type:uuid;primaryKey" json:"audit_id"`
	BudgetID  uuid.UUID  `gorm:"column:budget_id;type:uuid;not null;index" json:"budget_id"`
	RequestID *uuid.UUID `gorm:"column:request_id;type:uuid;index" json:"request_id"`
	Action    string     `gorm:"column:action;type:varchar(20);not null" json:"action"`
	OldValue  string     `gorm:"column:old_value" json:"old_value"`
	NewValue  string     `gorm:"column:new_value" json:"new_value"`
	ChangedBy string     `gorm:"column:changed_by;not null" json:"changed_by"`
	Reason    string     `gorm:"column:reason" json:"reason"`
	CreatedAt time.Time  `gorm:"column:createdAt" json:"createdAt"`
}

func (AuditLog) TableName() string {
	return "AuditLogs"
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.AuditID == uuid.Nil {
		a.AuditID = uuid.New()
	}
	return nil
}
