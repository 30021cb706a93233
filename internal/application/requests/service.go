// Package requests drives a spend request from submission to its final status.
package requests

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"budget-tracker/internal/application/approval"
	"budget-tracker/internal/application/ledger"
	"budget-tracker/internal/config"
	"budget-tracker/internal/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// AutoApprovalFailedReason is recorded when the budget was consumed between
// the decision and the ledger mutation.
const AutoApprovalFailedReason = "auto-approval failed, awaiting manual review"

// TargetCapacityReason is recorded when the matched budgets have room in total
// but the budget the charge lands on does not.
const TargetCapacityReason = "target budget lacks capacity, awaiting manual review"

// EvaluationFailedReason is recorded when Submit fails after the request row
// was written.
const EvaluationFailedReason = "evaluation failed, awaiting manual review"

type Service struct {
	DB                *gorm.DB
	Engine            *approval.Engine
	Ledger            *ledger.Service
	AutoApproveAction string
	Now               func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// SubmitInput is a new spend request. A nil SubCategory charges the
// department as a whole.
type SubmitInput struct {
	CustomerID   uuid.UUID
	Supplier     string
	Description  string
	Amount       decimal.Decimal
	Currency     string
	Department   string
	SubCategory  *string
	FiscalPeriod string
	RequesterID  uuid.UUID
	Actor        string
}

// SubmitResult is the outcome of Submit.
type SubmitResult struct {
	Request          *domain.Request        `json:"request"`
	Status           string                 `json:"status"`
	Reason           string                 `json:"reason"`
	RequiresApproval bool                   `json:"requires_approval"`
	Decision         approval.Decision      `json:"decision"`
	Ledger           *ledger.MutationResult `json:"ledger,omitempty"`
}

func (in *SubmitInput) normalize() error {
	in.Supplier = strings.TrimSpace(in.Supplier)
	in.Description = strings.TrimSpace(in.Description)
	in.Department = strings.TrimSpace(in.Department)
	in.FiscalPeriod = strings.TrimSpace(in.FiscalPeriod)
	in.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))
	if in.Currency == "" {
		in.Currency = "USD"
	}
	if in.SubCategory != nil {
		sub := strings.TrimSpace(*in.SubCategory)
		if sub == "" {
			in.SubCategory = nil
		} else {
			in.SubCategory = &sub
		}
	}
	if in.Supplier == "" || in.Description == "" || in.Department == "" || in.FiscalPeriod == "" {
		return ErrMissingFields
	}
	if in.RequesterID == uuid.Nil {
		return ErrRequesterRequired
	}
	in.Amount = in.Amount.Round(2)
	if !in.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	return nil
}

// Submit records the request as pending, evaluates it and applies the
// outcome. Losing the race for budget after an auto-approval leaves the
// request pending for manual review.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*SubmitResult, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	db := s.DB.WithContext(ctx)

	req := &domain.Request{
		CustomerID:     in.CustomerID,
		Supplier:       in.Supplier,
		Description:    in.Description,
		Amount:         in.Amount,
		Currency:       in.Currency,
		BudgetCategory: in.Department,
		FiscalPeriod:   in.FiscalPeriod,
		Status:         domain.RequestPending,
		CreatedByID:    in.RequesterID,
	}
	if in.SubCategory != nil {
		req.SubCategory = *in.SubCategory
	}
	if err := db.Create(req).Error; err != nil {
		return nil, err
	}

	dec, snap, err := s.Engine.Evaluate(ctx, approval.Input{
		Selector: approval.Selector{
			CustomerID:   in.CustomerID,
			Department:   in.Department,
			SubCategory:  in.SubCategory,
			FiscalPeriod: in.FiscalPeriod,
		},
		Amount:           in.Amount,
		Currency:         in.Currency,
		ExcludeRequestID: &req.RequestID,
	})
	if err != nil {
		s.markUnevaluated(ctx, req)
		return nil, fmt.Errorf("evaluate request %s: %w", req.RequestID, err)
	}
	req.BudgetID = dec.TargetBudgetID

	out := &SubmitResult{Request: req, Decision: dec, Reason: dec.Reason}
	switch dec.Outcome {
	case approval.OutcomeRejected:
		req.Status = domain.RequestRejected
		req.RejectionReason = strPtr(dec.Reason)

	case approval.OutcomePending:
		req.ApprovalReason = strPtr(dec.Reason)
		out.RequiresApproval = true

	case approval.OutcomeAutoApproved:
		short, err := s.targetShort(ctx, in.CustomerID, snap)
		if err != nil {
			s.markUnevaluated(ctx, req)
			return nil, err
		}
		if short {
			req.ApprovalReason = strPtr(TargetCapacityReason)
			out.Reason = TargetCapacityReason
			out.RequiresApproval = true
			break
		}
		res, err := s.applyAutoApproval(ctx, in, req, snap.Requested, dec)
		if err != nil {
			s.markUnevaluated(ctx, req)
			return nil, err
		}
		out.Ledger = res
		if res.Success {
			req.Status = domain.RequestAutoApproved
			req.ApprovalReason = strPtr(dec.Reason)
		} else {
			log.Info().Str("request_id", req.RequestID.String()).
				Str("available", res.Insufficient.Available.String()).
				Str("requested", res.Insufficient.Requested.String()).
				Msg("auto-approval lost budget race, request left pending")
			req.ApprovalReason = strPtr(AutoApprovalFailedReason)
			out.Reason = AutoApprovalFailedReason
			out.RequiresApproval = true
		}
	}

	if err := db.Model(req).Updates(map[string]interface{}{
		"budget_id":        req.BudgetID,
		"status":           req.Status,
		"approval_reason":  req.ApprovalReason,
		"rejection_reason": req.RejectionReason,
		"ledger_action":    req.LedgerAction,
	}).Error; err != nil {
		return nil, err
	}
	out.Status = req.Status
	return out, nil
}

// targetShort reports whether the budget the charge lands on cannot hold the
// request on its own. Only a multi-budget match can differ from the total.
func (s *Service) targetShort(ctx context.Context, customerID uuid.UUID, snap approval.Snapshot) (bool, error) {
	if len(snap.BudgetIDs) < 2 {
		return false, nil
	}
	st, err := s.Ledger.Status(ctx, customerID, snap.TargetBudgetID)
	if err != nil {
		return false, err
	}
	return snap.Requested.GreaterThan(st.Available), nil
}

// markUnevaluated leaves a reason on a request that Submit could not finish so
// it shows up for manual review instead of as a bare pending row.
func (s *Service) markUnevaluated(ctx context.Context, req *domain.Request) {
	err := s.DB.WithContext(context.WithoutCancel(ctx)).Model(&domain.Request{}).
		Where("request_id = ?", req.RequestID).
		Update("approval_reason", EvaluationFailedReason).Error
	if err != nil {
		log.Error().Err(err).Str("request_id", req.RequestID.String()).Msg("failed to mark unevaluated request")
	}
}

func (s *Service) applyAutoApproval(ctx context.Context, in SubmitInput, req *domain.Request, amount decimal.Decimal, dec approval.Decision) (*ledger.MutationResult, error) {
	m := ledger.MutationInput{
		CustomerID: in.CustomerID,
		BudgetID:   *dec.TargetBudgetID,
		Amount:     amount,
		RequestID:  &req.RequestID,
		Reason:     fmt.Sprintf("Auto-approved request: %s", req.Supplier),
		Actor:      actorOr(in.Actor, in.RequesterID),
	}
	if s.AutoApproveAction == config.ActionReserve {
		res, err := s.Ledger.Reserve(ctx, m)
		if err == nil && res.Success {
			req.LedgerAction = domain.LedgerActionReserved
		}
		return res, err
	}
	res, err := s.Ledger.Commit(ctx, m, false)
	if err == nil && res.Success {
		req.LedgerAction = domain.LedgerActionCommitted
	}
	return res, err
}

// ReviewInput identifies an FP&A review action.
type ReviewInput struct {
	CustomerID uuid.UUID
	RequestID  uuid.UUID
	ReviewerID uuid.UUID
	Actor      string
	Reason     string
}

// ReviewResult is the outcome of Approve. When the commit is refused the
// request stays pending and Ledger.Insufficient carries the numbers.
type ReviewResult struct {
	Request *domain.Request        `json:"request"`
	Ledger  *ledger.MutationResult `json:"ledger,omitempty"`
}

// Approve commits the request amount against its budget and marks it approved.
// The request is claimed first so concurrent reviewers cannot both commit.
func (s *Service) Approve(ctx context.Context, in ReviewInput) (*ReviewResult, error) {
	req, err := s.Get(ctx, in.CustomerID, in.RequestID)
	if err != nil {
		return nil, err
	}
	if req.Status != domain.RequestPending {
		return nil, ErrNotPending
	}
	budgetID, currency, err := s.resolveBudget(ctx, req)
	if err != nil {
		return nil, err
	}
	amount, _ := s.Ledger.Rates.Convert(req.Amount, req.Currency, currency)

	reviewedAt := s.now()
	reason := in.Reason
	if reason == "" {
		reason = "Approved by FP&A"
	}
	db := s.DB.WithContext(ctx)
	claim := db.Model(&domain.Request{}).
		Where("request_id = ? AND status = ?", req.RequestID, domain.RequestPending).
		Updates(map[string]interface{}{
			"status":          domain.RequestApproved,
			"budget_id":       budgetID,
			"reviewed_by_id":  in.ReviewerID,
			"reviewed_at":     reviewedAt,
			"approval_reason": reason,
		})
	if claim.Error != nil {
		return nil, claim.Error
	}
	if claim.RowsAffected == 0 {
		return nil, ErrNotPending
	}

	res, err := s.Ledger.Commit(ctx, ledger.MutationInput{
		CustomerID: in.CustomerID,
		BudgetID:   budgetID,
		Amount:     amount,
		RequestID:  &req.RequestID,
		Reason:     reason,
		Actor:      actorOr(in.Actor, in.ReviewerID),
	}, false)
	if err != nil || !res.Success {
		if rerr := s.unclaim(db, req); rerr != nil {
			log.Error().Err(rerr).Str("request_id", req.RequestID.String()).Msg("failed to return request to pending")
		}
		if err != nil {
			return nil, err
		}
		return &ReviewResult{Request: req, Ledger: res}, nil
	}

	if err := db.Model(&domain.Request{}).Where("request_id = ?", req.RequestID).
		Update("ledger_action", domain.LedgerActionCommitted).Error; err != nil {
		return nil, err
	}
	updated, err := s.Get(ctx, in.CustomerID, in.RequestID)
	if err != nil {
		return nil, err
	}
	return &ReviewResult{Request: updated, Ledger: res}, nil
}

func (s *Service) unclaim(db *gorm.DB, req *domain.Request) error {
	return db.Model(&domain.Request{}).
		Where("request_id = ? AND status = ?", req.RequestID, domain.RequestApproved).
		Updates(map[string]interface{}{
			"status":          domain.RequestPending,
			"reviewed_by_id":  nil,
			"reviewed_at":     nil,
			"approval_reason": req.ApprovalReason,
		}).Error
}

// resolveBudget returns the request's budget, re-resolving the selector when
// the request was never matched.
func (s *Service) resolveBudget(ctx context.Context, req *domain.Request) (uuid.UUID, string, error) {
	db := s.DB.WithContext(ctx)
	if req.BudgetID != nil {
		var b domain.Budget
		err := db.Where("budget_id = ? AND customer_id = ?", *req.BudgetID, req.CustomerID).First(&b).Error
		if err == nil {
			return b.BudgetID, b.Currency, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return uuid.Nil, "", err
		}
	}
	in := approval.Input{
		Selector: approval.Selector{
			CustomerID:   req.CustomerID,
			Department:   req.BudgetCategory,
			FiscalPeriod: req.FiscalPeriod,
		},
		Amount:   req.Amount,
		Currency: req.Currency,
	}
	if req.SubCategory != "" {
		sub := req.SubCategory
		in.SubCategory = &sub
	}
	snap, err := s.Ledger.Snapshot(ctx, in)
	if err != nil {
		return uuid.Nil, "", err
	}
	if !snap.Found {
		return uuid.Nil, "", ErrNoBudget
	}
	return snap.TargetBudgetID, snap.Currency, nil
}

// Reject closes a pending request without touching the ledger.
func (s *Service) Reject(ctx context.Context, in ReviewInput) (*domain.Request, error) {
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		return nil, ErrReasonRequired
	}
	req, err := s.Get(ctx, in.CustomerID, in.RequestID)
	if err != nil {
		return nil, err
	}
	if req.Status != domain.RequestPending {
		return nil, ErrNotPending
	}
	res := s.DB.WithContext(ctx).Model(&domain.Request{}).
		Where("request_id = ? AND status = ?", req.RequestID, domain.RequestPending).
		Updates(map[string]interface{}{
			"status":           domain.RequestRejected,
			"rejection_reason": reason,
			"reviewed_by_id":   in.ReviewerID,
			"reviewed_at":      s.now(),
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotPending
	}
	return s.Get(ctx, in.CustomerID, in.RequestID)
}

// Filter narrows List. CreatedByID restricts to one requester.
type Filter struct {
	Status      string
	CreatedByID *uuid.UUID
	Limit       int
	Offset      int
}

// List returns the customer's requests newest first.
func (s *Service) List(ctx context.Context, customerID uuid.UUID, f Filter) ([]domain.Request, error) {
	q := s.DB.WithContext(ctx).Where("customer_id = ?", customerID)
	if f.Status != "" {
		switch f.Status {
		case domain.RequestPending, domain.RequestAutoApproved, domain.RequestApproved, domain.RequestRejected:
		default:
			return nil, ErrInvalidStatus
		}
		q = q.Where("status = ?", f.Status)
	}
	if f.CreatedByID != nil {
		q = q.Where("created_by_id = ?", *f.CreatedByID)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	var out []domain.Request
	err := q.Order(`"createdAt" DESC`).Limit(limit).Offset(f.Offset).Find(&out).Error
	return out, err
}

// Get returns one request of the customer.
func (s *Service) Get(ctx context.Context, customerID, requestID uuid.UUID) (*domain.Request, error) {
	var r domain.Request
	err := s.DB.WithContext(ctx).Where("request_id = ? AND customer_id = ?", requestID, customerID).First(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func strPtr(s string) *string { return &s }

func actorOr(actor string, id uuid.UUID) string {
	if actor != "" {
		return actor
	}
	return id.String()
}
