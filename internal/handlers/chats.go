package handlers

import (
	"mime/multipart"
	"strings"

	"chatwave-backend/internal/apperr"
	"chatwave-backend/internal/chat"
	"chatwave-backend/internal/models"
	"chatwave-backend/internal/services"

	"github.com/gofiber/fiber/v2"
)

// ListMessagesHandler returns a conversation's messages without those from
// users the caller has blocked.
func ListMessagesHandler(users *services.UserService, chats *services.ChatService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		chatID := c.Params("id")
		if _, err := participantConversation(c, chats, chatID); err != nil {
			return writeError(c, err)
		}

		self, err := users.GetUser(c.Context(), currentUserID(c))
		if err != nil {
			return writeError(c, err)
		}
		messages, err := chats.ListMessages(c.Context(), chatID)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(chat.VisibleMessages(*self, messages))
	}
}

// SendMessageHandler accepts a multipart form with "text" and an optional "file".
func SendMessageHandler(users *services.UserService, chats *services.ChatService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		self, err := users.GetUser(c.Context(), currentUserID(c))
		if err != nil {
			return writeError(c, err)
		}

		var file *models.Attachment
		if fh, err := c.FormFile("file"); err == nil {
			att, closeFn, err := openAttachment(fh)
			if err != nil {
				return writeError(c, apperr.BadRequest("failed to read uploaded file"))
			}
			defer closeFn()
			file = att
		}

		msg, err := chats.Send(c.Context(), c.Params("id"), models.MessageInput{
			UserID:     self.ID,
			UserName:   self.Name,
			UserAvatar: self.AvatarURL,
			Text:       c.FormValue("text"),
		}, file)
		if err != nil && msg == nil {
			return writeError(c, err)
		}
		// The message is stored even when the conversation update failed.
		return c.Status(fiber.StatusCreated).JSON(msg)
	}
}

func EditMessageHandler(chats *services.ChatService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body struct {
			Text string `json:"text"`
		}
		if err := c.BodyParser(&body); err != nil {
			return writeError(c, apperr.BadRequest("invalid request"))
		}

		msg, err := chats.Edit(c.Context(), currentUserID(c), c.Params("id"), c.Params("mid"), body.Text)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(msg)
	}
}

func DeleteMessageHandler(chats *services.ChatService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := chats.Delete(c.Context(), currentUserID(c), c.Params("id"), c.Params("mid")); err != nil {
			return writeError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

func StarMessageHandler(chats *services.ChatService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		chatID, messageID := c.Params("id"), c.Params("mid")
		msg, err := chats.GetMessage(c.Context(), chatID, messageID)
		if err != nil {
			return writeError(c, err)
		}

		starred, err := chats.ToggleStar(c.Context(), currentUserID(c), chatID, messageID, msg.Starred)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(fiber.Map{"starred": starred})
	}
}

// SummaryHandler summarizes what the caller can see of a conversation.
func SummaryHandler(users *services.UserService, chats *services.ChatService, assist chat.Assistant) fiber.Handler {
	return func(c *fiber.Ctx) error {
		chatID := c.Params("id")
		if _, err := participantConversation(c, chats, chatID); err != nil {
			return writeError(c, err)
		}

		self, err := users.GetUser(c.Context(), currentUserID(c))
		if err != nil {
			return writeError(c, err)
		}
		messages, err := chats.ListMessages(c.Context(), chatID)
		if err != nil {
			return writeError(c, err)
		}

		summary := assist.SummarizeChat(c.Context(), models.Texts(chat.VisibleMessages(*self, messages)))
		return c.JSON(fiber.Map{"summary": summary})
	}
}

func openAttachment(fh *multipart.FileHeader) (*models.Attachment, func(), error) {
	f, err := fh.Open()
	if err != nil {
		return nil, nil, err
	}
	contentType := fh.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return &models.Attachment{
		FileName:    strings.TrimSpace(fh.Filename),
		ContentType: contentType,
		Size:        fh.Size,
		Body:        f,
	}, func() { _ = f.Close() }, nil
}
