package database

import (
	"budget-tracker/internal/domain"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Open opens a GORM DB from DSN (Postgres or pooler URL).
// PreferSimpleProtocol disables prepared statement caching to avoid 42P05
// ("prepared statement already exists") behind PgBouncer-style poolers.
func Open(dsn string) (*gorm.DB, error) {
	return gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true,
	}), &gorm.Config{})
}

// Models lists every table owned by the service, parents first.
func Models() []interface{} {
	return []interface{}{
		&domain.Customer{},
		&domain.User{},
		&domain.Budget{},
		&domain.BudgetUtilization{},
		&domain.Request{},
		&domain.AuditLog{},
		&domain.BudgetImport{},
	}
}

// AutoMigrate creates or alters tables from the GORM models. Used in development
// and tests; production schemas go through the SQL migrations.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}
