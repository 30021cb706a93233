package budgets

import (
	"errors"

	budgetsvc "budget-tracker/internal/application/budgets"
	ledgersvc "budget-tracker/internal/application/ledger"
	"budget-tracker/internal/domain"
	"budget-tracker/internal/middleware"
	"budget-tracker/internal/pkg/response"
	"budget-tracker/internal/pkg/validation"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Handlers serves budget administration.
type Handlers struct {
	Service *budgetsvc.Service
}

// CreateRequest body for POST /api/v1/budgets.
type CreateRequest struct {
	Department     string          `json:"department" validate:"required"`
	SubCategory    string          `json:"sub_category"`
	FiscalPeriod   string          `json:"fiscal_period" validate:"required"`
	BudgetedAmount decimal.Decimal `json:"budgeted_amount" validate:"nonneg_decimal"`
	Currency       string          `json:"currency" validate:"omitempty,currency"`
}

// AmendRequest body for PATCH /api/v1/budgets/:id.
type AmendRequest struct {
	BudgetedAmount *decimal.Decimal `json:"budgeted_amount" validate:"required,nonneg_decimal"`
	Reason         string           `json:"reason"`
}

// Create POST /api/v1/budgets
func (h *Handlers) Create(c *fiber.Ctx) error {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}
	var body CreateRequest
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	if msg, fields := validation.Struct(body); msg != "" {
		return response.Error(c, msg, fiber.StatusBadRequest, fiber.Map{"fields": fields})
	}
	b, err := h.Service.Create(c.UserContext(), budgetsvc.CreateInput{
		CustomerID:     actor.CustomerID,
		Department:     body.Department,
		SubCategory:    body.SubCategory,
		FiscalPeriod:   body.FiscalPeriod,
		BudgetedAmount: body.BudgetedAmount,
		Currency:       body.Currency,
		Actor:          actor.Name(),
	})
	if err != nil {
		return mapError(c, err)
	}
	return response.SuccessCreated(c, "Budget created", view(b), nil)
}

// List GET /api/v1/budgets?fiscal_period=&department=
func (h *Handlers) List(c *fiber.Ctx) error {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}
	list, err := h.Service.List(c.UserContext(), actor.CustomerID, budgetsvc.Filter{
		FiscalPeriod: c.Query("fiscal_period"),
		Department:   c.Query("department"),
	})
	if err != nil {
		return err
	}
	out := make([]*ledgersvc.Status, 0, len(list))
	for i := range list {
		out = append(out, view(&list[i]))
	}
	return response.Success(c, "Budgets retrieved", out, fiber.Map{"count": len(out)})
}

// Get GET /api/v1/budgets/:id
func (h *Handlers) Get(c *fiber.Ctx) error {
	actor, budgetID, ok := h.target(c)
	if !ok {
		return nil
	}
	b, err := h.Service.Get(c.UserContext(), actor.CustomerID, budgetID)
	if err != nil {
		return mapError(c, err)
	}
	return response.Success(c, "Budget retrieved", view(b), nil)
}

// Amend PATCH /api/v1/budgets/:id
func (h *Handlers) Amend(c *fiber.Ctx) error {
	actor, budgetID, ok := h.target(c)
	if !ok {
		return nil
	}
	var body AmendRequest
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	if msg, fields := validation.Struct(body); msg != "" {
		return response.Error(c, msg, fiber.StatusBadRequest, fiber.Map{"fields": fields})
	}
	b, err := h.Service.AmendAmount(c.UserContext(), actor.CustomerID, budgetID, *body.BudgetedAmount, actor.Name(), body.Reason)
	if err != nil {
		return mapError(c, err)
	}
	return response.Success(c, "Budget updated", view(b), nil)
}

// Delete DELETE /api/v1/budgets/:id
func (h *Handlers) Delete(c *fiber.Ctx) error {
	actor, budgetID, ok := h.target(c)
	if !ok {
		return nil
	}
	if err := h.Service.Delete(c.UserContext(), actor.CustomerID, budgetID); err != nil {
		return mapError(c, err)
	}
	return response.Success(c, "Budget deleted", fiber.Map{"budget_id": budgetID}, nil)
}

// target resolves the actor and :id, writing the error response itself when
// either is missing.
func (h *Handlers) target(c *fiber.Ctx) (*middleware.Actor, uuid.UUID, bool) {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		_ = response.Unauthorized(c, "Unauthorized")
		return nil, uuid.Nil, false
	}
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		_ = response.Error(c, "Invalid budget id", fiber.StatusBadRequest, nil)
		return nil, uuid.Nil, false
	}
	return actor, id, true
}

func view(b *domain.Budget) *ledgersvc.Status {
	return ledgersvc.StatusOf(b)
}

func mapError(c *fiber.Ctx, err error) error {
	var minErr *budgetsvc.MinimumAmountError
	switch {
	case errors.As(err, &minErr):
		return response.Error(c, err.Error(), fiber.StatusBadRequest, fiber.Map{"minimum": minErr.Minimum})
	case errors.Is(err, budgetsvc.ErrBudgetNotFound):
		return response.Error(c, err.Error(), fiber.StatusNotFound, nil)
	case errors.Is(err, budgetsvc.ErrDuplicateBudget), errors.Is(err, budgetsvc.ErrBudgetInUse):
		return response.Error(c, err.Error(), fiber.StatusConflict, nil)
	case errors.Is(err, budgetsvc.ErrInvalidAmount),
		errors.Is(err, budgetsvc.ErrMissingFields),
		errors.Is(err, budgetsvc.ErrInvalidCurrency),
		errors.Is(err, budgetsvc.ErrInvalidSource),
		errors.Is(err, budgetsvc.ErrActorRequired):
		return response.Error(c, err.Error(), fiber.StatusBadRequest, nil)
	}
	return err
}
