package auth

import (
	"errors"

	authsvc "budget-tracker/internal/application/auth"
	"budget-tracker/internal/middleware"
	"budget-tracker/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const userSessionsPrefix = "user_sessions:"

// Handlers holds dependencies for auth endpoints.
type Handlers struct {
	UserFinder authsvc.UserFinder
	Rdb        *redis.Client
	Config     middleware.SessionConfig
}

// LoginRequest body.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login POST /api/v1/auth/login. Starts a fresh session and tracks it under user_sessions:<user_id>.
func (h *Handlers) Login(c *fiber.Ctx) error {
	if h.UserFinder == nil {
		return response.Error(c, "Internal Server Error", fiber.StatusInternalServerError, nil)
	}
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "Email and password are required", fiber.StatusBadRequest, nil)
	}
	if req.Email == "" || req.Password == "" {
		return response.Error(c, "Email and password are required", fiber.StatusBadRequest, nil)
	}

	user, err := h.UserFinder.FindByEmailAndPassword(req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, authsvc.ErrEmailPasswordRequired):
			return response.Error(c, err.Error(), fiber.StatusBadRequest, nil)
		case errors.Is(err, authsvc.ErrInvalidEmail), errors.Is(err, authsvc.ErrIncorrectPassword):
			return response.Error(c, err.Error(), fiber.StatusUnauthorized, nil)
		default:
			return err
		}
	}

	// New session id for every login
	sessionID := middleware.RegenerateSessionID(c)
	sessionUser := middleware.SessionUser{
		UserID:     user.UserID.String(),
		CustomerID: user.CustomerID.String(),
		Fullname:   user.Fullname,
		Email:      user.Email,
		Role:       user.Role,
	}
	middleware.SetSessionUser(c, sessionUser)

	// Track the user's sessions so they can be revoked together
	if err := h.Rdb.SAdd(c.UserContext(), userSessionsPrefix+user.UserID.String(), sessionID).Err(); err != nil {
		return response.Error(c, "Internal Server Error", fiber.StatusInternalServerError, nil)
	}

	cookie := middleware.SessionCookieConfig(h.Config)
	cookie.Value = "s:" + sessionID
	c.Cookie(&cookie)

	log.Info().Str("user_id", sessionUser.UserID).Str("customer_id", sessionUser.CustomerID).Msg("login")
	return response.Success(c, "Login successful", fiber.Map{"user": sessionUser}, nil)
}

// Me GET /api/v1/auth/me
func (h *Handlers) Me(c *fiber.Ctx) error {
	sessionID := middleware.GetSessionID(c)
	sessionUser := middleware.GetUser(c)

	if sessionID == "" {
		cookieVal := c.Cookies(middleware.SessionCookieName)
		log.Info().Str("path", "/auth/me").
			Bool("cookie_present", cookieVal != "").
			Int("cookie_len", len(cookieVal)).
			Msg("auth/me: no session id")
	} else if sessionUser == nil {
		log.Info().Str("path", "/auth/me").Str("session_id_prefix", truncate(sessionID, 8)).
			Msg("auth/me: session has no user")
	}

	user, err := authsvc.VerifyUser(sessionUser)
	if err != nil {
		log.Info().Str("path", "/auth/me").Err(err).
			Bool("session_user_nil", sessionUser == nil).
			Msg("auth/me: not authenticated")
		return response.Error(c, "Not authenticated", fiber.StatusUnauthorized, nil)
	}
	log.Info().Str("path", "/auth/me").Str("user_id", user.UserID).
		Msg("auth/me: success")
	return response.Success(c, "Authenticated", fiber.Map{"user": user}, nil)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

// Logout DELETE /api/v1/auth/logout
func (h *Handlers) Logout(c *fiber.Ctx) error {
	sessionID := middleware.GetSessionID(c)
	sessionUser := middleware.GetUser(c)

	ctx := c.UserContext()

	if sessionUser != nil && sessionID != "" {
		if m, ok := sessionUser.(map[string]interface{}); ok {
			if userID, _ := m["user_id"].(string); userID != "" {
				_ = h.Rdb.SRem(ctx, userSessionsPrefix+userID, sessionID).Err()
			}
		}
	}

	if sessionID != "" {
		_ = h.Rdb.Del(ctx, middleware.SessionRedisPrefix+sessionID).Err()
	}

	middleware.DestroySession(c)

	cookie := middleware.SessionCookieConfig(h.Config)
	cookie.Value = ""
	cookie.MaxAge = -1
	c.Cookie(&cookie)

	return response.Success(c, "Logged out successfully", nil, nil)
}
