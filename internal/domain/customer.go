package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Customer is the tenant that owns budgets, requests and users.
type Customer struct {
	CustomerID uuid.UUID `gorm:"column:customer_id;type:uuid;primaryKey" json:"customer_id"`
	Name       string    `gorm:"column:name;not null" json:"name"`
	CreatedAt  time.Time `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt  time.Time `gorm:"column:updatedAt" json:"updatedAt"`
}

func (Customer) TableName() string {
	return "Customers"
}

func (c *Customer) BeforeCreate(tx *gorm.DB) error {
	if c.CustomerID == uuid.Nil {
		c.CustomerID = uuid.New()
	}
	return nil
}
