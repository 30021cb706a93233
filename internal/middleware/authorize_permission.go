package middleware

import (
	"budget-tracker/internal/pkg/constants"
	"budget-tracker/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// AuthorizePermission checks the session user's role against PermissionRoles.
// Unconfigured permission -> 500 "Permission configuration error"; role not allowed -> 403.
func AuthorizePermission(permission string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := GetUser(c)
		if user == nil {
			return response.Unauthorized(c, "Unauthorized")
		}
		role := getRoleFromUser(user)
		if role == "" {
			return response.Error(c, "Authorization error", 500, nil)
		}
		if roles, ok := constants.PermissionRoles[permission]; !ok || len(roles) == 0 {
			return response.Error(c, "Permission configuration error", 500, nil)
		}
		if !constants.AllowedRole(permission, role) {
			return response.Forbidden(c, "User is Forbidden from performing this action")
		}
		return c.Next()
	}
}

func getRoleFromUser(user interface{}) string {
	m, ok := user.(map[string]interface{})
	if !ok {
		return ""
	}
	r, _ := m["role"].(string)
	return r
}
