// Package audit appends and reads the budget audit trail. Rows are never
// updated; they are only removed together with a hard-deleted budget.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"budget-tracker/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrBudgetNotFound = errors.New("Budget not found")
	ErrInvalidAction  = errors.New("Invalid audit action")
)

// Entry is one mutation to append. Old and New are marshalled to JSON.
type Entry struct {
	BudgetID  uuid.UUID
	RequestID *uuid.UUID
	Action    string
	Old       interface{}
	New       interface{}
	ChangedBy string
	Reason    string
}

// Record appends e using tx so it commits or rolls back with the mutation.
func Record(tx *gorm.DB, e Entry) error {
	oldValue, err := encode(e.Old)
	if err != nil {
		return err
	}
	newValue, err := encode(e.New)
	if err != nil {
		return err
	}
	row := domain.AuditLog{
		BudgetID:  e.BudgetID,
		RequestID: e.RequestID,
		Action:    e.Action,
		OldValue:  oldValue,
		NewValue:  newValue,
		ChangedBy: e.ChangedBy,
		Reason:    e.Reason,
	}
	if err := tx.Create(&row).Error; err != nil {
		return fmt.Errorf("write %s audit row: %w", e.Action, err)
	}
	return nil
}

func encode(v interface{}) (string, error) {
	if v == nil {
		return "", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode audit value: %w", err)
	}
	return string(b), nil
}

// Filter narrows ListForCustomer.
type Filter struct {
	Action    string
	RequestID *uuid.UUID
	Limit     int
	Offset    int
}

const defaultLimit = 50

type Service struct {
	DB *gorm.DB
}

// ListForBudget returns the budget's audit rows newest first. Soft-deleted
// budgets keep their history visible.
func (s *Service) ListForBudget(ctx context.Context, customerID, budgetID uuid.UUID, limit int) ([]domain.AuditLog, error) {
	db := s.DB.WithContext(ctx)
	var count int64
	if err := db.Unscoped().Model(&domain.Budget{}).
		Where("budget_id = ? AND customer_id = ?", budgetID, customerID).
		Count(&count).Error; err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, ErrBudgetNotFound
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	var rows []domain.AuditLog
	err := db.Where("budget_id = ?", budgetID).
		Order(`"createdAt" DESC`).
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// ListForCustomer returns audit rows across every budget of the customer.
func (s *Service) ListForCustomer(ctx context.Context, customerID uuid.UUID, f Filter) ([]domain.AuditLog, error) {
	q := s.DB.WithContext(ctx).
		Where(`budget_id IN (SELECT budget_id FROM "Budgets" WHERE customer_id = ?)`, customerID)
	if f.Action != "" {
		if !validAction(f.Action) {
			return nil, ErrInvalidAction
		}
		q = q.Where("action = ?", f.Action)
	}
	if f.RequestID != nil {
		q = q.Where("request_id = ?", *f.RequestID)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	var rows []domain.AuditLog
	err := q.Order(`"createdAt" DESC`).Limit(limit).Offset(f.Offset).Find(&rows).Error
	return rows, err
}

func validAction(a string) bool {
	switch a {
	case domain.AuditCreate, domain.AuditUpdate, domain.AuditReserve,
		domain.AuditCommit, domain.AuditRelease, domain.AuditDelete:
		return true
	}
	return false
}
