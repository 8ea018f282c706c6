package handlers

import (
	"strings"

	"chatwave-backend/internal/apperr"
	"chatwave-backend/internal/models"
	"chatwave-backend/internal/services"

	"github.com/gofiber/fiber/v2"
)

var avatarTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
	"image/webp": true,
}

// GetProfileHandler returns the authenticated user with mutes, blocks and themes.
func GetProfileHandler(users *services.UserService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		u, err := users.GetUser(c.Context(), currentUserID(c))
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(u)
	}
}

func UpdateProfileHandler(users *services.UserService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req models.ProfileUpdate
		if err := c.BodyParser(&req); err != nil {
			return writeError(c, apperr.BadRequest("invalid request"))
		}

		updated, err := users.UpdateProfile(c.Context(), currentUserID(c), req)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(updated)
	}
}

// UploadAvatarHandler expects a multipart image named "avatar".
func UploadAvatarHandler(users *services.UserService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		fh, err := c.FormFile("avatar")
		if err != nil {
			return writeError(c, apperr.BadRequest("avatar file is required"))
		}
		if ct := strings.ToLower(fh.Header.Get("Content-Type")); !avatarTypes[ct] {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error":        "invalid image type",
				"content_type": ct,
			})
		}

		att, closeFn, err := openAttachment(fh)
		if err != nil {
			return writeError(c, apperr.BadRequest("failed to read uploaded file"))
		}
		defer closeFn()

		updated, err := users.UpdateAvatar(c.Context(), currentUserID(c), *att)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(updated)
	}
}
