// Package imports keeps budgets in sync with rows from an external producer
// such as a spreadsheet export.
package imports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"budget-tracker/internal/application/audit"
	"budget-tracker/internal/config"
	"budget-tracker/internal/domain"
	"budget-tracker/internal/infrastructure/lock"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const lockPrefix = "lock:budget-import:"

type Service struct {
	DB           *gorm.DB
	Locker       lock.Locker
	Timeout      time.Duration
	MaxRowErrors int
}

// NewService wires an import service with the configured bounds.
func NewService(db *gorm.DB, locker lock.Locker, cfg config.ImportConfig) *Service {
	return &Service{DB: db, Locker: locker, Timeout: cfg.Timeout, MaxRowErrors: cfg.MaxRowErrors}
}

// Input is one batch of raw rows. Headers are mapped to columns by name.
type Input struct {
	CustomerID      uuid.UUID
	Source          string
	Mode            string
	Headers         []string
	Rows            [][]string
	DefaultCurrency string
	Actor           string
}

// counts tracks outcomes while a batch is applied.
type counts struct {
	created, updated, unchanged, restored, softDeleted int
	errors                                            []RowError
}

var errTooManyRowErrors = errors.New("too many row errors")

// Run applies a batch inside one transaction bounded by Timeout. More than
// MaxRowErrors failed rows, or any unexpected error, rolls the whole batch
// back; the BudgetImport record is still written, ending failed.
func (s *Service) Run(ctx context.Context, in Input) (*domain.BudgetImport, error) {
	if in.Actor == "" {
		return nil, ErrActorRequired
	}
	if in.Source == "" {
		in.Source = domain.SourceAPI
	}
	if in.Source == domain.SourceManual || !domain.IsValidSource(in.Source) {
		return nil, ErrInvalidSource
	}
	if in.Mode == "" {
		in.Mode = ModeUpsert
	}
	if in.Mode != ModeUpsert && in.Mode != ModeSync {
		return nil, ErrInvalidMode
	}
	if len(in.Rows) == 0 {
		return nil, ErrNoRows
	}
	cols, err := MapHeaders(in.Headers)
	if err != nil {
		return nil, err
	}
	currency := strings.ToUpper(strings.TrimSpace(in.DefaultCurrency))
	if currency == "" {
		currency = "USD"
	}

	var record *domain.BudgetImport
	err = s.Locker.WithLock(ctx, lockPrefix+in.CustomerID.String(), func(ctx context.Context) error {
		var runErr error
		record, runErr = s.run(ctx, in, cols, currency)
		return runErr
	})
	if record == nil && err != nil {
		return nil, err
	}
	return record, err
}

func (s *Service) run(ctx context.Context, in Input, cols ColumnMap, currency string) (*domain.BudgetImport, error) {
	record := &domain.BudgetImport{
		CustomerID: in.CustomerID,
		Source:     in.Source,
		Mode:       in.Mode,
		Status:     domain.ImportProcessing,
		TotalRows:  len(in.Rows),
		StartedBy:  in.Actor,
		Errors:     datatypes.JSON("[]"),
	}
	if err := s.DB.WithContext(ctx).Create(record).Error; err != nil {
		return nil, err
	}

	rows, parseErrs := ParseRows(cols, in.Rows, currency)
	c := &counts{errors: parseErrs}

	txCtx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()
	txErr := s.DB.WithContext(txCtx).Transaction(func(tx *gorm.DB) error {
		if err := s.checkErrorBudget(c); err != nil {
			return err
		}
		var existing []domain.Budget
		if err := tx.Unscoped().Preload("Utilization").
			Where("customer_id = ?", in.CustomerID).
			Find(&existing).Error; err != nil {
			return err
		}
		plan := Reconcile(rows, existing, in.Mode, in.Source)
		c.errors = append(c.errors, plan.Errors...)
		if err := s.checkErrorBudget(c); err != nil {
			return err
		}
		return s.apply(tx, in, plan, c)
	})

	record.Created = c.created
	record.Updated = c.updated
	record.Unchanged = c.unchanged
	record.Restored = c.restored
	record.SoftDeleted = c.softDeleted
	record.Status = domain.ImportCompleted

	var out error
	if txErr != nil {
		// Rolled back. Counters keep the progress reached before the abort so
		// the caller can see where the batch stopped.
		record.Status = domain.ImportFailed
		switch {
		case errors.Is(txErr, errTooManyRowErrors):
			out = fmt.Errorf("%w: %d row errors exceed the limit of %d", ErrImportAborted, len(c.errors), s.MaxRowErrors)
		case errors.Is(txErr, context.DeadlineExceeded):
			c.errors = append(c.errors, RowError{Error: fmt.Sprintf("import timed out after %s", s.Timeout)})
			out = fmt.Errorf("%w: timed out", ErrImportAborted)
		default:
			log.Error().Err(txErr).Str("import_id", record.ImportID.String()).Msg("budget import failed")
			c.errors = append(c.errors, RowError{Error: "unexpected error while applying import"})
			out = fmt.Errorf("%w: %v", ErrImportAborted, txErr)
		}
	}
	errJSON, err := json.Marshal(c.errors)
	if err != nil {
		return nil, err
	}
	if c.errors == nil {
		errJSON = []byte("[]")
	}
	record.Failed = len(c.errors)
	record.Errors = datatypes.JSON(errJSON)
	now := time.Now()
	record.CompletedAt = &now

	// The request context may already be cancelled; the record must still land.
	if err := s.DB.WithContext(context.WithoutCancel(ctx)).Save(record).Error; err != nil {
		return nil, err
	}
	log.Info().Str("import_id", record.ImportID.String()).
		Str("status", record.Status).
		Int("created", record.Created).
		Int("updated", record.Updated).
		Int("soft_deleted", record.SoftDeleted).
		Int("failed", record.Failed).
		Msg("budget import finished")
	return record, out
}

func (s *Service) checkErrorBudget(c *counts) error {
	if len(c.errors) > s.MaxRowErrors {
		return errTooManyRowErrors
	}
	return nil
}

type importedValue struct {
	Budgeted string `json:"budgeted"`
	Currency string `json:"currency"`
}

func (s *Service) apply(tx *gorm.DB, in Input, plan Plan, c *counts) error {
	reason := fmt.Sprintf("Budget import (%s, %s)", in.Source, in.Mode)

	for _, r := range plan.Create {
		b := domain.Budget{
			CustomerID:     in.CustomerID,
			Department:     r.Department,
			SubCategory:    r.SubCategory,
			FiscalPeriod:   r.FiscalPeriod,
			BudgetedAmount: r.Amount,
			Currency:       r.Currency,
			Source:         in.Source,
		}
		if err := tx.Omit("Utilization").Create(&b).Error; err != nil {
			return err
		}
		if err := tx.Create(&domain.BudgetUtilization{BudgetID: b.BudgetID, CommittedAmount: decimal.Zero, ReservedAmount: decimal.Zero}).Error; err != nil {
			return err
		}
		if err := audit.Record(tx, audit.Entry{
			BudgetID:  b.BudgetID,
			Action:    domain.AuditCreate,
			New:       importedValue{Budgeted: r.Amount.StringFixed(2), Currency: r.Currency},
			ChangedBy: in.Actor,
			Reason:    reason,
		}); err != nil {
			return err
		}
		c.created++
	}

	for _, ch := range plan.Update {
		ok, err := s.setAmount(tx, in, ch, false, reason, c)
		if err != nil {
			return err
		}
		if ok {
			c.updated++
		}
	}

	for _, ch := range plan.Restore {
		ok, err := s.setAmount(tx, in, ch, true, reason, c)
		if err != nil {
			return err
		}
		if ok {
			c.restored++
		}
	}

	c.unchanged = len(plan.Unchanged)

	for _, b := range plan.SoftDelete {
		if err := tx.Delete(&domain.Budget{}, "budget_id = ?", b.BudgetID).Error; err != nil {
			return err
		}
		if err := audit.Record(tx, audit.Entry{
			BudgetID:  b.BudgetID,
			Action:    domain.AuditDelete,
			Old:       importedValue{Budgeted: b.BudgetedAmount.StringFixed(2), Currency: b.Currency},
			ChangedBy: in.Actor,
			Reason:    reason + ": no longer present in source",
		}); err != nil {
			return err
		}
		c.softDeleted++
	}
	return nil
}

// setAmount writes the row's amount onto an existing budget, restoring it when
// restore is set. An amount below committed plus reserved is a row error.
func (s *Service) setAmount(tx *gorm.DB, in Input, ch Change, restore bool, reason string, c *counts) (bool, error) {
	b := ch.Budget
	minimum := b.Committed().Add(b.Reserved())
	if ch.Row.Amount.LessThan(minimum) {
		c.errors = append(c.errors, RowError{
			Row:   ch.Row.Line,
			Error: fmt.Sprintf("amount %s is below committed plus reserved (%s)", ch.Row.Amount.StringFixed(2), minimum.StringFixed(2)),
		})
		return false, s.checkErrorBudget(c)
	}
	updates := map[string]interface{}{
		"budgeted_amount": ch.Row.Amount,
		"currency":        ch.Row.Currency,
	}
	action := domain.AuditUpdate
	q := tx.Model(&domain.Budget{}).Where("budget_id = ?", b.BudgetID)
	if restore {
		q = q.Unscoped()
		updates["deleted_at"] = nil
		updates["source"] = in.Source
		action = domain.AuditCreate
		reason += ": restored"
	}
	if err := q.Updates(updates).Error; err != nil {
		return false, err
	}
	if err := audit.Record(tx, audit.Entry{
		BudgetID:  b.BudgetID,
		Action:    action,
		Old:       importedValue{Budgeted: b.BudgetedAmount.StringFixed(2), Currency: b.Currency},
		New:       importedValue{Budgeted: ch.Row.Amount.StringFixed(2), Currency: ch.Row.Currency},
		ChangedBy: in.Actor,
		Reason:    reason,
	}); err != nil {
		return false, err
	}
	return true, nil
}

// List returns the customer's imports newest first.
func (s *Service) List(ctx context.Context, customerID uuid.UUID, limit int) ([]domain.BudgetImport, error) {
	if limit <= 0 {
		limit = 20
	}
	var out []domain.BudgetImport
	err := s.DB.WithContext(ctx).Where("customer_id = ?", customerID).
		Order(`"createdAt" DESC`).Limit(limit).Find(&out).Error
	return out, err
}

// Get returns one import of the customer.
func (s *Service) Get(ctx context.Context, customerID, importID uuid.UUID) (*domain.BudgetImport, error) {
	var rec domain.BudgetImport
	err := s.DB.WithContext(ctx).Where("import_id = ? AND customer_id = ?", importID, customerID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrImportNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
