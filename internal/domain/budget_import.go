package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Import statuses.
const (
	ImportProcessing = "processing"
	ImportCompleted  = "completed"
	ImportFailed     = "failed"
)

// BudgetImport records one bulk import or sync run and its outcome.
type BudgetImport struct {
	ImportID    uuid.UUID      `gorm:"column:import_id;type:uuid;primaryKey" json:"import_id"`
	CustomerID  uuid.UUID      `gorm:"column:customer_id;type:uuid;not null;index" json:"customer_id"`
	Source      string         `gorm:"column:source;type:varchar(20);not null" json:"source"`
	Mode        string         `gorm:"column:mode;type:varchar(10);not null" json:"mode"`
	Status      string         `gorm:"column:status;type:varchar(20);not null;default:'processing'" json:"status"`
	TotalRows   int            `gorm:"column:total_rows;not null;default:0" json:"total_rows"`
	Created     int            `gorm:"column:created;not null;default:0" json:"created"`
	Updated     int            `gorm:"column:updated;not null;default:0" json:"updated"`
	Unchanged   int            `gorm:"column:unchanged;not null;default:0" json:"unchanged"`
	Restored    int            `gorm:"column:restored;not null;default:0" json:"restored"`
	SoftDeleted int            `gorm:"column:soft_deleted;not null;default:0" json:"soft_deleted"`
	Failed      int            `gorm:"column:failed;not null;default:0" json:"failed"`
	Errors      datatypes.JSON `gorm:"column:errors" json:"errors"`
	StartedBy   string         `gorm:"column:started_by;not null" json:"started_by"`
	CreatedAt   time.Time      `gorm:"column:createdAt" json:"createdAt"`
	CompletedAt *time.Time     `gorm:"column:completed_at" json:"completed_at"`
}

func (BudgetImport) TableName() string {
	return "BudgetImports"
}

func (i *BudgetImport) BeforeCreate(tx *gorm.DB) error {
	if i.ImportID == uuid.Nil {
		i.ImportID = uuid.New()
	}
	return nil
}
