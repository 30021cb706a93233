package requests

import (
	"errors"

	"budget-tracker/internal/application/ledger"
	requestsvc "budget-tracker/internal/application/requests"
	"budget-tracker/internal/middleware"
	"budget-tracker/internal/pkg/constants"
	"budget-tracker/internal/pkg/response"
	"budget-tracker/internal/pkg/validation"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Handlers serves the spend request lifecycle.
type Handlers struct {
	Service *requestsvc.Service
}

// SubmitRequest body for POST /api/v1/requests.
type SubmitRequest struct {
	Supplier     string          `json:"supplier" validate:"required"`
	Description  string          `json:"description" validate:"required"`
	Amount       decimal.Decimal `json:"amount" validate:"positive_decimal"`
	Currency     string          `json:"currency" validate:"omitempty,currency"`
	Department   string          `json:"department" validate:"required"`
	SubCategory  *string         `json:"sub_category"`
	FiscalPeriod string          `json:"fiscal_period" validate:"required"`
}

// ReviewRequest body for approve and reject.
type ReviewRequest struct {
	Reason string `json:"reason"`
}

// Submit POST /api/v1/requests
func (h *Handlers) Submit(c *fiber.Ctx) error {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}
	var body SubmitRequest
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	if msg, fields := validation.Struct(body); msg != "" {
		return response.Error(c, msg, fiber.StatusBadRequest, fiber.Map{"fields": fields})
	}
	result, err := h.Service.Submit(c.UserContext(), requestsvc.SubmitInput{
		CustomerID:   actor.CustomerID,
		Supplier:     body.Supplier,
		Description:  body.Description,
		Amount:       body.Amount,
		Currency:     body.Currency,
		Department:   body.Department,
		SubCategory:  body.SubCategory,
		FiscalPeriod: body.FiscalPeriod,
		RequesterID:  actor.UserID,
		Actor:        actor.Name(),
	})
	if err != nil {
		return mapError(c, err)
	}
	return response.SuccessCreated(c, "Request submitted", result, nil)
}

// List GET /api/v1/requests?status=&limit=&offset=. Requesters only see their own.
func (h *Handlers) List(c *fiber.Ctx) error {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}
	f := requestsvc.Filter{
		Status: c.Query("status"),
		Limit:  c.QueryInt("limit", 0),
		Offset: c.QueryInt("offset", 0),
	}
	if !canReview(actor) {
		f.CreatedByID = &actor.UserID
	}
	list, err := h.Service.List(c.UserContext(), actor.CustomerID, f)
	if err != nil {
		return mapError(c, err)
	}
	return response.Success(c, "Requests retrieved", list, fiber.Map{"count": len(list)})
}

// Get GET /api/v1/requests/:id
func (h *Handlers) Get(c *fiber.Ctx) error {
	actor, requestID, ok := target(c)
	if !ok {
		return nil
	}
	req, err := h.Service.Get(c.UserContext(), actor.CustomerID, requestID)
	if err != nil {
		return mapError(c, err)
	}
	if !canReview(actor) && req.CreatedByID != actor.UserID {
		return response.Error(c, requestsvc.ErrRequestNotFound.Error(), fiber.StatusNotFound, nil)
	}
	return response.Success(c, "Request retrieved", req, nil)
}

// Approve POST /api/v1/requests/:id/approve
func (h *Handlers) Approve(c *fiber.Ctx) error {
	actor, requestID, ok := target(c)
	if !ok {
		return nil
	}
	var body ReviewRequest
	_ = c.BodyParser(&body)
	result, err := h.Service.Approve(c.UserContext(), requestsvc.ReviewInput{
		CustomerID: actor.CustomerID,
		RequestID:  requestID,
		ReviewerID: actor.UserID,
		Actor:      actor.Name(),
		Reason:     body.Reason,
	})
	if err != nil {
		return mapError(c, err)
	}
	if result.Ledger != nil && !result.Ledger.Success {
		return response.Error(c, "Insufficient budget", fiber.StatusConflict, result.Ledger.Insufficient)
	}
	return response.Success(c, "Request approved", result, nil)
}

// Reject POST /api/v1/requests/:id/reject
func (h *Handlers) Reject(c *fiber.Ctx) error {
	actor, requestID, ok := target(c)
	if !ok {
		return nil
	}
	var body ReviewRequest
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, requestsvc.ErrReasonRequired.Error(), fiber.StatusBadRequest, nil)
	}
	req, err := h.Service.Reject(c.UserContext(), requestsvc.ReviewInput{
		CustomerID: actor.CustomerID,
		RequestID:  requestID,
		ReviewerID: actor.UserID,
		Actor:      actor.Name(),
		Reason:     body.Reason,
	})
	if err != nil {
		return mapError(c, err)
	}
	return response.Success(c, "Request rejected", req, nil)
}

func canReview(a *middleware.Actor) bool {
	return constants.AllowedRole(constants.ReviewRequests, a.Role)
}

func target(c *fiber.Ctx) (*middleware.Actor, uuid.UUID, bool) {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		_ = response.Unauthorized(c, "Unauthorized")
		return nil, uuid.Nil, false
	}
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		_ = response.Error(c, "Invalid request id", fiber.StatusBadRequest, nil)
		return nil, uuid.Nil, false
	}
	return actor, id, true
}

func mapError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, requestsvc.ErrRequestNotFound):
		return response.Error(c, err.Error(), fiber.StatusNotFound, nil)
	case errors.Is(err, requestsvc.ErrNotPending):
		return response.Error(c, err.Error(), fiber.StatusConflict, nil)
	case errors.Is(err, requestsvc.ErrNoBudget), errors.Is(err, ledger.ErrBudgetNotFound):
		return response.Error(c, err.Error(), fiber.StatusUnprocessableEntity, nil)
	case errors.Is(err, requestsvc.ErrMissingFields),
		errors.Is(err, requestsvc.ErrInvalidAmount),
		errors.Is(err, requestsvc.ErrRequesterRequired),
		errors.Is(err, requestsvc.ErrReasonRequired),
		errors.Is(err, requestsvc.ErrInvalidStatus),
		errors.Is(err, ledger.ErrSelectorRequired):
		return response.Error(c, err.Error(), fiber.StatusBadRequest, nil)
	}
	return err
}
