package chat

import (
	"context"
	"errors"

	"chatwave-backend/internal/models"
)

var (
	ErrUnknownUser    = errors.New("unknown user")
	ErrUnknownChat    = errors.New("unknown chat")
	ErrUnknownMessage = errors.New("unknown message")
	ErrNoActiveChat   = errors.New("no chat selected")
	ErrNoAssistant    = errors.New("assistant not available")
)

// UserDirectory lists users with their mutes, blocks and themes.
type UserDirectory interface {
	ListUsers(ctx context.Context) ([]models.User, error)
}

// ConversationStore is everything the client core reads from and writes to the
// conversation store. services.ChatService implements it.
type ConversationStore interface {
	ListRooms(ctx context.Context, userID string) ([]models.RoomSummary, error)
	ListDirectConversations(ctx context.Context, userID string) ([]models.Conversation, error)
	ListMessages(ctx context.Context, chatID string) ([]models.Message, error)
	TypingIDs(ctx context.Context, chatID string) ([]string, error)

	EnsureDirectConversation(ctx context.Context, chatID string, userIDs [2]string) (bool, error)
	MarkRead(ctx context.Context, chatID, userID string) (int64, error)
	MarkDelivered(ctx context.Context, chatID, userID string) (int64, error)
	SetTyping(ctx context.Context, chatID, userID string, typing bool) error

	Send(ctx context.Context, chatID string, in models.MessageInput, file *models.Attachment) (*models.Message, error)
	Edit(ctx context.Context, actorID, chatID, messageID, text string) (*models.Message, error)
	Delete(ctx context.Context, actorID, chatID, messageID string) error
	ToggleStar(ctx context.Context, actorID, chatID, messageID string, current bool) (bool, error)
}

// Assistant produces reply suggestions and summaries from "name: text" lines.
type Assistant interface {
	SuggestReplies(ctx context.Context, texts []string) []string
	SummarizeChat(ctx context.Context, texts []string) string
}
