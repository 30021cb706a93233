package imports

import (
	"errors"

	importsvc "budget-tracker/internal/application/imports"
	"budget-tracker/internal/domain"
	"budget-tracker/internal/infrastructure/lock"
	"budget-tracker/internal/middleware"
	"budget-tracker/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// maxRows bounds a single import batch.
const maxRows = 10000

// Handlers serves bulk budget imports.
type Handlers struct {
	Service *importsvc.Service
}

// RunRequest is one import batch: a header row plus raw cells, as produced by
// a spreadsheet export or the Sheets API.
type RunRequest struct {
	Source          string     `json:"source"`
	Mode            string     `json:"mode"`
	Headers         []string   `json:"headers"`
	Rows            [][]string `json:"rows"`
	DefaultCurrency string     `json:"default_currency"`
}

// Run POST /api/v1/imports
func (h *Handlers) Run(c *fiber.Ctx) error {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}
	var body RunRequest
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	if len(body.Rows) > maxRows {
		return response.Error(c, "Too many rows in one import", fiber.StatusRequestEntityTooLarge, fiber.Map{"max_rows": maxRows})
	}
	rec, err := h.Service.Run(c.UserContext(), importsvc.Input{
		CustomerID:      actor.CustomerID,
		Source:          body.Source,
		Mode:            body.Mode,
		Headers:         body.Headers,
		Rows:            body.Rows,
		DefaultCurrency: body.DefaultCurrency,
		Actor:           actor.Name(),
	})
	if err != nil {
		return mapError(c, err, rec)
	}
	return response.SuccessCreated(c, "Import completed", rec, nil)
}

// List GET /api/v1/imports?limit=
func (h *Handlers) List(c *fiber.Ctx) error {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}
	list, err := h.Service.List(c.UserContext(), actor.CustomerID, c.QueryInt("limit", 0))
	if err != nil {
		return err
	}
	return response.Success(c, "Imports retrieved", list, fiber.Map{"count": len(list)})
}

// Get GET /api/v1/imports/:id
func (h *Handlers) Get(c *fiber.Ctx) error {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.Error(c, "Invalid import id", fiber.StatusBadRequest, nil)
	}
	rec, err := h.Service.Get(c.UserContext(), actor.CustomerID, id)
	if err != nil {
		return mapError(c, err, nil)
	}
	return response.Success(c, "Import retrieved", rec, nil)
}

func mapError(c *fiber.Ctx, err error, rec *domain.BudgetImport) error {
	var missing *importsvc.MissingColumnsError
	switch {
	case errors.Is(err, importsvc.ErrImportAborted):
		return response.Error(c, err.Error(), fiber.StatusUnprocessableEntity, rec)
	case errors.As(err, &missing):
		return response.Error(c, err.Error(), fiber.StatusBadRequest, fiber.Map{"missing": missing.Missing})
	case errors.Is(err, importsvc.ErrImportNotFound):
		return response.Error(c, err.Error(), fiber.StatusNotFound, nil)
	case errors.Is(err, lock.ErrLockBusy):
		return response.Error(c, "Another import is running for this customer", fiber.StatusConflict, nil)
	case errors.Is(err, importsvc.ErrInvalidSource),
		errors.Is(err, importsvc.ErrInvalidMode),
		errors.Is(err, importsvc.ErrNoRows),
		errors.Is(err, importsvc.ErrActorRequired):
		return response.Error(c, err.Error(), fiber.StatusBadRequest, nil)
	}
	return err
}
