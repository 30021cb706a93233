package middleware

import (
	"budget-tracker/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const userLocal = "user"

// RequireAuth ensures a user is in the session. Returns 401 with standard error format if not.
func RequireAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, ok := CurrentActor(c); !ok {
			return response.Unauthorized(c, "Unauthorized")
		}
		return c.Next()
	}
}

// GetUser returns the session user from Locals (nil if not logged in).
func GetUser(c *fiber.Ctx) interface{} {
	return c.Locals(userLocal)
}

// Actor is the authenticated caller as seen by handlers.
type Actor struct {
	UserID     uuid.UUID
	CustomerID uuid.UUID
	Email      string
	Role       string
}

// Name identifies the actor in audit rows.
func (a *Actor) Name() string {
	if a.Email != "" {
		return a.Email
	}
	return a.UserID.String()
}

// CurrentActor reads the session user. ok is false when there is no user or
// its ids are malformed.
func CurrentActor(c *fiber.Ctx) (*Actor, bool) {
	m, ok := GetUser(c).(map[string]interface{})
	if !ok {
		return nil, false
	}
	userID, err := uuid.Parse(str(m["user_id"]))
	if err != nil {
		return nil, false
	}
	customerID, err := uuid.Parse(str(m["customer_id"]))
	if err != nil {
		return nil, false
	}
	return &Actor{UserID: userID, CustomerID: customerID, Email: str(m["email"]), Role: str(m["role"])}, true
}

func str(v interface{}) string {
	s, _ := v.(string)
	return s
}
