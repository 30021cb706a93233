package ledger

import (
	"errors"

	"budget-tracker/internal/application/approval"
	ledgersvc "budget-tracker/internal/application/ledger"
	"budget-tracker/internal/middleware"
	"budget-tracker/internal/pkg/response"
	"budget-tracker/internal/pkg/validation"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Handlers serves budget checks and the utilization ledger.
type Handlers struct {
	Service *ledgersvc.Service
}

// CheckRequest body for POST /api/v1/budgets/check.
type CheckRequest struct {
	Department   string          `json:"department" validate:"required"`
	SubCategory  *string         `json:"sub_category"`
	FiscalPeriod string          `json:"fiscal_period" validate:"required"`
	Amount       decimal.Decimal `json:"amount" validate:"positive_decimal"`
	Currency     string          `json:"currency" validate:"omitempty,currency"`
}

// MutationRequest body for reserve, commit and release.
type MutationRequest struct {
	Amount      decimal.Decimal `json:"amount" validate:"positive_decimal"`
	RequestID   *uuid.UUID      `json:"request_id"`
	Reason      string          `json:"reason"`
	WasReserved bool            `json:"was_reserved"`
	ReleaseType string          `json:"release_type"`
}

// Check POST /api/v1/budgets/check. Read-only; never touches the ledger.
func (h *Handlers) Check(c *fiber.Ctx) error {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}
	var body CheckRequest
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	if msg, fields := validation.Struct(body); msg != "" {
		return response.Error(c, msg, fiber.StatusBadRequest, fiber.Map{"fields": fields})
	}
	result, err := h.Service.Check(c.UserContext(), approval.Input{
		Selector: approval.Selector{
			CustomerID:   actor.CustomerID,
			Department:   body.Department,
			SubCategory:  body.SubCategory,
			FiscalPeriod: body.FiscalPeriod,
		},
		Amount:   body.Amount,
		Currency: body.Currency,
	})
	if err != nil {
		return mapError(c, err)
	}
	return response.Success(c, "Budget check completed", result, nil)
}

// Reserve POST /api/v1/budgets/:id/reserve
func (h *Handlers) Reserve(c *fiber.Ctx) error {
	return h.mutate(c, func(in ledgersvc.MutationInput, body MutationRequest) (*ledgersvc.MutationResult, error) {
		return h.Service.Reserve(c.UserContext(), in)
	}, "Budget reserved")
}

// Commit POST /api/v1/budgets/:id/commit
func (h *Handlers) Commit(c *fiber.Ctx) error {
	return h.mutate(c, func(in ledgersvc.MutationInput, body MutationRequest) (*ledgersvc.MutationResult, error) {
		return h.Service.Commit(c.UserContext(), in, body.WasReserved)
	}, "Budget committed")
}

// Release POST /api/v1/budgets/:id/release
func (h *Handlers) Release(c *fiber.Ctx) error {
	return h.mutate(c, func(in ledgersvc.MutationInput, body MutationRequest) (*ledgersvc.MutationResult, error) {
		return h.Service.Release(c.UserContext(), in, body.ReleaseType)
	}, "Budget released")
}

type mutation func(in ledgersvc.MutationInput, body MutationRequest) (*ledgersvc.MutationResult, error)

func (h *Handlers) mutate(c *fiber.Ctx, run mutation, message string) error {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}
	budgetID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.Error(c, "Invalid budget id", fiber.StatusBadRequest, nil)
	}
	var body MutationRequest
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	if msg, fields := validation.Struct(body); msg != "" {
		return response.Error(c, msg, fiber.StatusBadRequest, fiber.Map{"fields": fields})
	}
	result, err := run(ledgersvc.MutationInput{
		CustomerID: actor.CustomerID,
		BudgetID:   budgetID,
		Amount:     body.Amount,
		RequestID:  body.RequestID,
		Reason:     body.Reason,
		Actor:      actor.Name(),
	}, body)
	if err != nil {
		return mapError(c, err)
	}
	if !result.Success {
		return response.Error(c, "Insufficient budget", fiber.StatusConflict, result.Insufficient)
	}
	return response.Success(c, message, result, nil)
}

// Status GET /api/v1/budgets/:id/status
func (h *Handlers) Status(c *fiber.Ctx) error {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}
	budgetID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.Error(c, "Invalid budget id", fiber.StatusBadRequest, nil)
	}
	status, err := h.Service.Status(c.UserContext(), actor.CustomerID, budgetID)
	if err != nil {
		return mapError(c, err)
	}
	return response.Success(c, "Budget status retrieved", status, nil)
}

func mapError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, ledgersvc.ErrBudgetNotFound):
		return response.Error(c, err.Error(), fiber.StatusNotFound, nil)
	case errors.Is(err, ledgersvc.ErrInvalidAmount),
		errors.Is(err, ledgersvc.ErrInvalidReleaseType),
		errors.Is(err, ledgersvc.ErrSelectorRequired),
		errors.Is(err, ledgersvc.ErrActorRequired):
		return response.Error(c, err.Error(), fiber.StatusBadRequest, nil)
	}
	return err
}
