package requests

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"budget-tracker/internal/application/approval"
	"budget-tracker/internal/application/ledger"
	requestsvc "budget-tracker/internal/application/requests"
	"budget-tracker/internal/config"
	"budget-tracker/internal/infrastructure/database/dbtest"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var (
	requesterID = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	reviewerID  = uuid.MustParse("22222222-2222-2222-2222-222222222222")
)

func setup(t *testing.T) (*fiber.App, *gorm.DB, uuid.UUID) {
	db := dbtest.Open(t)
	customer := dbtest.SeedCustomer(t, db)
	ledgerSvc := ledger.NewService(db, config.ApprovalConfig{
		DefaultThreshold:           decimal.NewFromInt(5000),
		CriticalUtilizationPercent: decimal.NewFromInt(90),
		PendingWindow:              48 * time.Hour,
	})
	h := &Handlers{Service: &requestsvc.Service{
		DB:                db,
		Engine:            &approval.Engine{Source: ledgerSvc, Policy: ledgerSvc.Policy},
		Ledger:            ledgerSvc,
		AutoApproveAction: config.ActionCommit,
	}}

	app := fiber.New()
	// X-Role switches between the requester and an FP&A reviewer.
	app.Use(func(c *fiber.Ctx) error {
		userID, role := requesterID, "requester"
		if c.Get("X-Role") == "fpa" {
			userID, role = reviewerID, "fpa"
		}
		c.Locals("user", map[string]interface{}{
			"user_id":     userID.String(),
			"customer_id": customer.String(),
			"email":       role + "@example.com",
			"role":        role,
		})
		return c.Next()
	})
	app.Post("/requests", h.Submit)
	app.Get("/requests", h.List)
	app.Get("/requests/:id", h.Get)
	app.Post("/requests/:id/approve", h.Approve)
	app.Post("/requests/:id/reject", h.Reject)
	return app, db, customer
}

func do(t *testing.T, app *fiber.App, role, method, path string, body interface{}) (int, map[string]interface{}) {
	var r io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Role", role)
	resp, err := app.Test(req)
	require.NoError(t, err)
	raw, _ := io.ReadAll(resp.Body)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &out))
	return resp.StatusCode, out
}

func submitBody(amount string) map[string]interface{} {
	return map[string]interface{}{
		"supplier": "Acme", "description": "Laptops", "amount": amount,
		"department": "Engineering", "fiscal_period": "FY2025",
	}
}

func requestID(t *testing.T, out map[string]interface{}) string {
	data := out["data"].(map[string]interface{})
	req := data["request"].(map[string]interface{})
	id, _ := req["request_id"].(string)
	require.NotEmpty(t, id)
	return id
}

func TestSubmit_AutoApproved(t *testing.T) {
	app, db, customer := setup(t)
	dbtest.SeedBudget(t, db, dbtest.BudgetSeed{CustomerID: customer, Department: "Engineering", Budgeted: "100000"})

	code, out := do(t, app, "requester", "POST", "/requests", submitBody("1200"))
	require.Equal(t, fiber.StatusCreated, code)
	data := out["data"].(map[string]interface{})
	assert.Equal(t, "auto_approved", data["status"])
	assert.Equal(t, false, data["requires_approval"])

	code, _ = do(t, app, "requester", "POST", "/requests", submitBody("0"))
	assert.Equal(t, fiber.StatusBadRequest, code)
}

func TestApproveFlow(t *testing.T) {
	app, db, customer := setup(t)
	dbtest.SeedBudget(t, db, dbtest.BudgetSeed{CustomerID: customer, Department: "Engineering", Budgeted: "100000"})

	code, out := do(t, app, "requester", "POST", "/requests", submitBody("9000"))
	require.Equal(t, fiber.StatusCreated, code)
	assert.Equal(t, "pending", out["data"].(map[string]interface{})["status"])
	id := requestID(t, out)

	code, out = do(t, app, "fpa", "POST", "/requests/"+id+"/approve", map[string]interface{}{})
	require.Equal(t, fiber.StatusOK, code)
	req := out["data"].(map[string]interface{})["request"].(map[string]interface{})
	assert.Equal(t, "approved", req["status"])
	assert.Equal(t, "committed", req["ledger_action"])

	code, _ = do(t, app, "fpa", "POST", "/requests/"+id+"/approve", nil)
	assert.Equal(t, fiber.StatusConflict, code)
}

func TestReject(t *testing.T) {
	app, db, customer := setup(t)
	dbtest.SeedBudget(t, db, dbtest.BudgetSeed{CustomerID: customer, Department: "Engineering", Budgeted: "100000"})
	_, out := do(t, app, "requester", "POST", "/requests", submitBody("9000"))
	id := requestID(t, out)

	code, _ := do(t, app, "fpa", "POST", "/requests/"+id+"/reject", map[string]interface{}{})
	assert.Equal(t, fiber.StatusBadRequest, code)

	code, out = do(t, app, "fpa", "POST", "/requests/"+id+"/reject", map[string]interface{}{"reason": "Use the framework agreement"})
	require.Equal(t, fiber.StatusOK, code)
	assert.Equal(t, "rejected", out["data"].(map[string]interface{})["status"])
}

func TestListScopedToRequester(t *testing.T) {
	app, db, customer := setup(t)
	dbtest.SeedBudget(t, db, dbtest.BudgetSeed{CustomerID: customer, Department: "Engineering", Budgeted: "100000"})
	_, out := do(t, app, "requester", "POST", "/requests", submitBody("100"))
	mine := requestID(t, out)
	_, out = do(t, app, "fpa", "POST", "/requests", submitBody("200"))
	theirs := requestID(t, out)

	code, out := do(t, app, "requester", "GET", "/requests", nil)
	require.Equal(t, fiber.StatusOK, code)
	assert.Len(t, out["data"].([]interface{}), 1)

	code, out = do(t, app, "fpa", "GET", "/requests?status=auto_approved", nil)
	require.Equal(t, fiber.StatusOK, code)
	assert.Len(t, out["data"].([]interface{}), 2)

	code, _ = do(t, app, "requester", "GET", "/requests/"+mine, nil)
	assert.Equal(t, fiber.StatusOK, code)
	code, _ = do(t, app, "requester", "GET", "/requests/"+theirs, nil)
	assert.Equal(t, fiber.StatusNotFound, code)

	code, _ = do(t, app, "fpa", "GET", "/requests?status=bogus", nil)
	assert.Equal(t, fiber.StatusBadRequest, code)
}
