package handlers

import (
	"strings"

	"chatwave-backend/internal/apperr"
	"chatwave-backend/internal/models"
	"chatwave-backend/internal/services"

	"github.com/gofiber/fiber/v2"
)

// AuthMiddleware verifies the access token from the Authorization header or,
// for websockets, the access_token query parameter.
func AuthMiddleware(tokens *services.TokenIssuer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := c.Query("access_token")
		if token == "" {
			authHeader := c.Get("Authorization")
			if strings.HasPrefix(authHeader, "Bearer ") {
				token = strings.TrimPrefix(authHeader, "Bearer ")
			}
		}

		if token == "" {
			return writeError(c, apperr.Unauthorized("missing token"))
		}

		claims, err := tokens.ValidateToken(token)
		if err != nil {
			return writeError(c, apperr.Unauthorized("invalid token"))
		}

		c.Locals("user_id", claims.UserID)
		c.Locals("name", claims.Name)
		return c.Next()
	}
}

func currentUserID(c *fiber.Ctx) string {
	id, _ := c.Locals("user_id").(string)
	return id
}

func RegisterHandler(users *services.UserService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req models.RegisterRequest
		if err := c.BodyParser(&req); err != nil {
			return writeError(c, apperr.BadRequest("invalid request"))
		}

		user, err := users.Register(c.Context(), req)
		if err != nil {
			return writeError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(user)
	}
}

func LoginHandler(users *services.UserService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req models.LoginRequest
		if err := c.BodyParser(&req); err != nil {
			return writeError(c, apperr.BadRequest("invalid request"))
		}

		resp, err := users.Login(c.Context(), req)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(resp)
	}
}

func RefreshHandler(users *services.UserService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body struct {
			RefreshToken string `json:"refresh_token"`
		}
		if err := c.BodyParser(&body); err != nil || body.RefreshToken == "" {
			return writeError(c, apperr.BadRequest("refresh_token required"))
		}

		resp, err := users.Refresh(c.Context(), body.RefreshToken)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(resp)
	}
}

// LogoutHandler marks the caller offline.
func LogoutHandler(users *services.UserService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := users.Logout(c.Context(), currentUserID(c)); err != nil {
			return writeError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}
