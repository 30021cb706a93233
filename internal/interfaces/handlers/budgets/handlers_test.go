package budgets

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	budgetsvc "budget-tracker/internal/application/budgets"
	"budget-tracker/internal/infrastructure/database/dbtest"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setup(t *testing.T) (*fiber.App, *gorm.DB, uuid.UUID) {
	db := dbtest.Open(t)
	customer := dbtest.SeedCustomer(t, db)
	h := &Handlers{Service: &budgetsvc.Service{DB: db}}

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user", map[string]interface{}{
			"user_id":     uuid.NewString(),
			"customer_id": customer.String(),
			"email":       "fpa@example.com",
			"role":        "fpa",
		})
		return c.Next()
	})
	app.Post("/budgets", h.Create)
	app.Get("/budgets", h.List)
	app.Get("/budgets/:id", h.Get)
	app.Patch("/budgets/:id", h.Amend)
	app.Delete("/budgets/:id", h.Delete)
	return app, db, customer
}

func do(t *testing.T, app *fiber.App, method, path string, body interface{}) (int, map[string]interface{}) {
	var r io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	raw, _ := io.ReadAll(resp.Body)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &out))
	return resp.StatusCode, out
}

func TestCreateAndList(t *testing.T) {
	app, _, _ := setup(t)

	code, out := do(t, app, "POST", "/budgets", map[string]interface{}{
		"department": "Engineering", "fiscal_period": "FY2025", "budgeted_amount": "50000", "currency": "usd",
	})
	require.Equal(t, fiber.StatusCreated, code)
	data := out["data"].(map[string]interface{})
	assert.Equal(t, "USD", data["currency"])
	assert.Equal(t, "healthy", data["health_label"])
	assert.Equal(t, "manual", data["source"])

	code, _ = do(t, app, "POST", "/budgets", map[string]interface{}{
		"department": "engineering", "fiscal_period": "FY2025", "budgeted_amount": "1",
	})
	assert.Equal(t, fiber.StatusConflict, code)

	code, _ = do(t, app, "POST", "/budgets", map[string]interface{}{
		"department": "Sales", "fiscal_period": "FY2025", "budgeted_amount": "-1",
	})
	assert.Equal(t, fiber.StatusBadRequest, code)

	code, out = do(t, app, "GET", "/budgets?fiscal_period=FY2025", nil)
	require.Equal(t, fiber.StatusOK, code)
	assert.Len(t, out["data"].([]interface{}), 1)
	assert.Equal(t, float64(1), out["metadata"].(map[string]interface{})["count"])
}

func TestAmend(t *testing.T) {
	app, db, customer := setup(t)
	b := dbtest.SeedBudget(t, db, dbtest.BudgetSeed{CustomerID: customer, Department: "Ops", Budgeted: "1000", Committed: "600", Reserved: "100"})
	path := "/budgets/" + b.BudgetID.String()

	code, out := do(t, app, "PATCH", path, map[string]interface{}{"budgeted_amount": "650"})
	assert.Equal(t, fiber.StatusBadRequest, code)
	details := out["error"].(map[string]interface{})["details"].(map[string]interface{})
	assert.Equal(t, "700", details["minimum"])

	code, out = do(t, app, "PATCH", path, map[string]interface{}{"budgeted_amount": "700"})
	require.Equal(t, fiber.StatusOK, code)
	assert.Equal(t, "critical", out["data"].(map[string]interface{})["health_label"])

	code, _ = do(t, app, "PATCH", path, map[string]interface{}{"reason": "no amount"})
	assert.Equal(t, fiber.StatusBadRequest, code)
}

func TestDelete(t *testing.T) {
	app, db, customer := setup(t)
	used := dbtest.SeedBudget(t, db, dbtest.BudgetSeed{CustomerID: customer, Department: "Ops", Budgeted: "1000", Reserved: "1"})
	idle := dbtest.SeedBudget(t, db, dbtest.BudgetSeed{CustomerID: customer, Department: "Legal", Budgeted: "1000"})

	code, _ := do(t, app, "DELETE", "/budgets/"+used.BudgetID.String(), nil)
	assert.Equal(t, fiber.StatusConflict, code)

	code, _ = do(t, app, "DELETE", "/budgets/"+idle.BudgetID.String(), nil)
	assert.Equal(t, fiber.StatusOK, code)

	code, _ = do(t, app, "GET", "/budgets/"+idle.BudgetID.String(), nil)
	assert.Equal(t, fiber.StatusNotFound, code)
}
