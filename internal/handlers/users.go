package handlers

import (
	"chatwave-backend/internal/apperr"
	"chatwave-backend/internal/chat"
	"chatwave-backend/internal/models"
	"chatwave-backend/internal/services"

	"github.com/gofiber/fiber/v2"
)

// ListUsersHandler lists everyone except the caller and users they blocked.
// Online reflects live websocket connections on this instance as well as the
// stored flag.
func ListUsersHandler(users *services.UserService, presence *Presence) fiber.Handler {
	return func(c *fiber.Ctx) error {
		self, err := users.GetUser(c.Context(), currentUserID(c))
		if err != nil {
			return writeError(c, err)
		}
		all, err := users.ListUsers(c.Context())
		if err != nil {
			return writeError(c, err)
		}

		visible := chat.VisibleUsers(*self, all)
		for i := range visible {
			if presence.IsUserOnline(visible[i].ID) {
				visible[i].Online = true
			}
		}
		return c.JSON(visible)
	}
}

func ToggleBlockHandler(users *services.UserService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		blocked, err := users.ToggleBlock(c.Context(), currentUserID(c), c.Params("id"))
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(fiber.Map{"blocked": blocked})
	}
}

func ToggleMuteHandler(users *services.UserService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		muted, err := users.ToggleMute(c.Context(), currentUserID(c), c.Params("id"))
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(fiber.Map{"muted": muted})
	}
}

func SetThemeHandler(users *services.UserService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req models.ThemeRequest
		if err := c.BodyParser(&req); err != nil || req.Theme == "" {
			return writeError(c, apperr.BadRequest("theme required"))
		}

		if err := users.SetChatTheme(c.Context(), currentUserID(c), c.Params("id"), req.Theme); err != nil {
			return writeError(c, err)
		}
		return c.JSON(fiber.Map{"theme": req.Theme})
	}
}
