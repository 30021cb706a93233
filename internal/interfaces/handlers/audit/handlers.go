package audit

import (
	"errors"

	auditsvc "budget-tracker/internal/application/audit"
	"budget-tracker/internal/middleware"
	"budget-tracker/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Handlers serves the read side of the audit trail.
type Handlers struct {
	Service *auditsvc.Service
}

// ForBudget GET /api/v1/budgets/:id/audit?limit=
func (h *Handlers) ForBudget(c *fiber.Ctx) error {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}
	budgetID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.Error(c, "Invalid budget id", fiber.StatusBadRequest, nil)
	}
	rows, err := h.Service.ListForBudget(c.UserContext(), actor.CustomerID, budgetID, c.QueryInt("limit", 0))
	if err != nil {
		return mapError(c, err)
	}
	return response.Success(c, "Audit trail retrieved", rows, fiber.Map{"count": len(rows)})
}

// List GET /api/v1/audit?action=&request_id=&limit=&offset=
func (h *Handlers) List(c *fiber.Ctx) error {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}
	f := auditsvc.Filter{
		Action: c.Query("action"),
		Limit:  c.QueryInt("limit", 0),
		Offset: c.QueryInt("offset", 0),
	}
	if s := c.Query("request_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			return response.Error(c, "Invalid request_id", fiber.StatusBadRequest, nil)
		}
		f.RequestID = &id
	}
	rows, err := h.Service.ListForCustomer(c.UserContext(), actor.CustomerID, f)
	if err != nil {
		return mapError(c, err)
	}
	return response.Success(c, "Audit trail retrieved", rows, fiber.Map{"count": len(rows)})
}

func mapError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, auditsvc.ErrBudgetNotFound):
		return response.Error(c, err.Error(), fiber.StatusNotFound, nil)
	case errors.Is(err, auditsvc.ErrInvalidAction):
		return response.Error(c, err.Error(), fiber.StatusBadRequest, nil)
	}
	return err
}
