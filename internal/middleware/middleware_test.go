package middleware

import (
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"budget-tracker/internal/pkg/constants"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testUserID     = "550e8400-e29b-41d4-a716-446655440000"
	testCustomerID = "660e8400-e29b-41d4-a716-446655440000"
)

func withUser(role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals("user", map[string]interface{}{
			"user_id":     testUserID,
			"customer_id": testCustomerID,
			"email":       "user@example.com",
			"role":        role,
		})
		return c.Next()
	}
}

func TestRequireAuth(t *testing.T) {
	app := fiber.New()
	app.Get("/anon", RequireAuth(), func(c *fiber.Ctx) error { return c.SendString("ok") })
	app.Get("/authed", withUser(constants.Requester), RequireAuth(), func(c *fiber.Ctx) error {
		a, ok := CurrentActor(c)
		require.True(t, ok)
		return c.SendString(a.CustomerID.String() + " " + a.Name())
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/anon", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/authed", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	b, _ := io.ReadAll(resp.Body)
	assert.Equal(t, testCustomerID+" user@example.com", string(b))
}

func TestAuthorizePermission(t *testing.T) {
	cases := []struct {
		role string
		perm string
		want int
	}{
		{constants.Requester, constants.SubmitRequest, fiber.StatusOK},
		{constants.Requester, constants.ReviewRequests, fiber.StatusForbidden},
		{constants.FPA, constants.ManageBudgets, fiber.StatusOK},
		{constants.Admin, "not_configured", fiber.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.role+"/"+tc.perm, func(t *testing.T) {
			app := fiber.New()
			app.Get("/", withUser(tc.role), AuthorizePermission(tc.perm), func(c *fiber.Ctx) error { return c.SendString("ok") })
			resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
			require.NoError(t, err)
			assert.Equal(t, tc.want, resp.StatusCode)
		})
	}
}

func TestErrorHandler_LogsUnexpected(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(rdb)})
	app.Use(Tracing())
	app.Get("/boom", func(c *fiber.Ctx) error { return errors.New("db exploded") })
	app.Get("/missing", func(c *fiber.Ctx) error { return fiber.NewError(fiber.StatusNotFound, "Nope") })

	resp, err := app.Test(httptest.NewRequest("GET", "/boom", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	var out map[string]interface{}
	b, _ := io.ReadAll(resp.Body)
	require.NoError(t, json.Unmarshal(b, &out))
	assert.Equal(t, "error", out["status"])

	resp, err = app.Test(httptest.NewRequest("GET", "/missing", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	entries, err := mr.List(KeyErrorLog)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0], "db exploded")
}

func TestTracing_KeepsIncomingID(t *testing.T) {
	app := fiber.New()
	app.Use(Tracing())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString(GetTraceID(c)) })

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Trace-Id", testUserID)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, testUserID, resp.Header.Get("X-Trace-Id"))

	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Trace-Id", "not-a-uuid")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.NotEqual(t, "not-a-uuid", resp.Header.Get("X-Trace-Id"))
}

func TestSession_PersistsUser(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	app := fiber.New()
	app.Use(Session(rdb))
	app.Post("/login", func(c *fiber.Ctx) error {
		sid := RegenerateSessionID(c)
		SetSessionUser(c, SessionUser{UserID: testUserID, CustomerID: testCustomerID, Role: constants.FPA})
		return c.SendString(sid)
	})
	app.Get("/who", func(c *fiber.Ctx) error {
		a, ok := CurrentActor(c)
		if !ok {
			return c.SendStatus(fiber.StatusUnauthorized)
		}
		return c.SendString(a.Role)
	})

	resp, err := app.Test(httptest.NewRequest("POST", "/login", nil))
	require.NoError(t, err)
	sid, _ := io.ReadAll(resp.Body)
	assert.True(t, mr.Exists(SessionRedisPrefix+string(sid)))

	req := httptest.NewRequest("GET", "/who", nil)
	req.Header.Set("Cookie", SessionCookieName+"=s:"+string(sid))
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	b, _ := io.ReadAll(resp.Body)
	assert.Equal(t, constants.FPA, string(b))
}

func TestHealthMarker_CountsTraffic(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(rdb)})
	app.Use(Tracing(), RouteLogger(), HealthMarker(rdb))
	app.Get("/health/json", func(c *fiber.Ctx) error { return c.SendString("ok") })
	app.Get("/ok", func(c *fiber.Ctx) error { return c.SendString("ok") })
	app.Get("/bad", func(c *fiber.Ctx) error { return fiber.NewError(fiber.StatusBadRequest, "bad") })
	app.Get("/boom", func(c *fiber.Ctx) error { return errors.New("boom") })

	for _, path := range []string{"/health/json", "/ok", "/bad", "/boom"} {
		_, err := app.Test(httptest.NewRequest("GET", path, nil))
		require.NoError(t, err)
	}

	total, err := mr.Get(KeyReqTotal)
	require.NoError(t, err)
	assert.Equal(t, "3", total)
	errs, err := mr.Get(KeyReqErrors)
	require.NoError(t, err)
	assert.Equal(t, "1", errs)
	assert.True(t, mr.Exists(KeyLastReq))
}

func TestErrorBodyCarriesTraceID(t *testing.T) {
	app := fiber.New()
	app.Use(Tracing())
	app.Get("/", RequireAuth(), func(c *fiber.Ctx) error { return c.SendString("ok") })

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Trace-Id", testUserID)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	var out struct {
		Error struct {
			TraceID string `json:"traceId"`
		} `json:"error"`
	}
	b, _ := io.ReadAll(resp.Body)
	require.NoError(t, json.Unmarshal(b, &out))
	assert.Equal(t, testUserID, out.Error.TraceID)
}
