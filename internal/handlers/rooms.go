package handlers

import (
	"strings"

	"chatwave-backend/internal/apperr"
	"chatwave-backend/internal/chat"
	"chatwave-backend/internal/models"
	"chatwave-backend/internal/services"

	"github.com/gofiber/fiber/v2"
)

func CreateRoomHandler(chats *services.ChatService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req models.CreateRoomRequest
		if err := c.BodyParser(&req); err != nil {
			return writeError(c, apperr.BadRequest("invalid request"))
		}

		room, err := chats.CreateRoom(c.Context(), strings.TrimSpace(req.Name), currentUserID(c))
		if err != nil {
			return writeError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(room)
	}
}

// AddMembersHandler adds users to a room. Only current members may invite.
func AddMembersHandler(chats *services.ChatService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req models.AddMembersRequest
		if err := c.BodyParser(&req); err != nil {
			return writeError(c, apperr.BadRequest("invalid request"))
		}

		chatID := c.Params("id")
		if _, err := participantConversation(c, chats, chatID); err != nil {
			return writeError(c, err)
		}
		if err := chats.AddMembers(c.Context(), chatID, req.UserIDs); err != nil {
			return writeError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

func DeleteRoomHandler(chats *services.ChatService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := chats.DeleteRoom(c.Context(), c.Params("id"), currentUserID(c)); err != nil {
			return writeError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// DirectRoomHandler returns the DM id for the caller and recipient_id,
// creating the conversation record if needed.
func DirectRoomHandler(users *services.UserService, chats *services.ChatService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req models.CreateDirectRoomRequest
		if err := c.BodyParser(&req); err != nil {
			return writeError(c, apperr.BadRequest("invalid request"))
		}
		if req.RecipientID == "" {
			return writeError(c, apperr.BadRequest("recipient_id required"))
		}

		userID := currentUserID(c)
		if req.RecipientID == userID {
			return writeError(c, apperr.BadRequest("cannot message yourself"))
		}
		if _, err := users.GetUser(c.Context(), req.RecipientID); err != nil {
			return writeError(c, err)
		}

		chatID := chat.DirectMessageID(userID, req.RecipientID)
		res, err := chats.GetOrCreateDirectRoom(c.Context(), chatID, [2]string{userID, req.RecipientID})
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(res)
	}
}

// participantConversation loads a conversation and checks the caller belongs to it.
func participantConversation(c *fiber.Ctx, chats *services.ChatService, chatID string) (*models.Conversation, error) {
	conv, err := chats.GetConversation(c.Context(), chatID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(currentUserID(c)) {
		return nil, services.ErrForbidden
	}
	return conv, nil
}
