package services

import (
	"context"
	"fmt"
	"strings"

	"chatwave-backend/internal/feed"
	"chatwave-backend/internal/idgen"
	"chatwave-backend/internal/logger"
	"chatwave-backend/internal/models"
	"chatwave-backend/internal/storage"

	"gorm.io/gorm"
)

// ListMessages returns the conversation's messages oldest first.
func (s *ChatService) ListMessages(ctx context.Context, chatID string) ([]models.Message, error) {
	messages := []models.Message{}
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", chatID).
		Order("timestamp asc, id asc").
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOperationFailed, err)
	}
	return messages, nil
}

func (s *ChatService) GetMessage(ctx context.Context, chatID, messageID string) (*models.Message, error) {
	var msg models.Message
	err := s.db.WithContext(ctx).Where("id = ? AND conversation_id = ?", messageID, chatID).First(&msg).Error
	if err != nil {
		return nil, storeError(err)
	}
	return &msg, nil
}

// Send stores a message from in.UserID. A file is uploaded first; if that fails
// nothing is written. After the message exists the conversation preview and
// every other participant's unread counter are updated. A failure there is
// returned together with the stored message.
func (s *ChatService) Send(ctx context.Context, chatID string, in models.MessageInput, file *models.Attachment) (*models.Message, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" && file == nil {
		return nil, fmt.Errorf("%w: message is empty", ErrValidation)
	}
	if in.UserID == "" {
		return nil, fmt.Errorf("%w: author is required", ErrValidation)
	}

	conv, err := s.GetConversation(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(in.UserID) {
		return nil, ErrForbidden
	}

	msg := &models.Message{
		ID:             idgen.NewULID(),
		ConversationID: chatID,
		UserID:         in.UserID,
		UserName:       in.UserName,
		UserAvatar:     in.UserAvatar,
		Text:           text,
		Status:         models.StatusSent,
	}

	if file != nil {
		if s.blobs == nil {
			return nil, ErrUploadFailed
		}
		url, err := s.blobs.Put(ctx, storage.AttachmentKey(chatID, s.now(), file.FileName), file.ContentType, file.Body)
		if err != nil {
			logger.LogError(err, "upload attachment")
			return nil, fmt.Errorf("%w: %v", ErrUploadFailed, err)
		}
		msg.FileURL = url
		msg.FileName = file.FileName
	}

	msg.Timestamp = s.now().UnixMilli()
	if err := s.db.WithContext(ctx).Create(msg).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOperationFailed, err)
	}

	preview := text
	if preview == "" {
		preview = models.AttachmentPreview
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&models.Conversation{}).Where("id = ?", chatID).Updates(map[string]interface{}{
			"last_message_text": preview,
			"last_message_at":   msg.Timestamp,
		}).Error
		if err != nil {
			return err
		}
		return tx.Model(&models.ConversationMember{}).
			Where("conversation_id = ? AND user_id <> ?", chatID, in.UserID).
			UpdateColumn("unread_count", gorm.Expr("unread_count + ?", 1)).Error
	})

	notify(ctx, s.notifier, feed.MessagesTopic(chatID), feed.TopicConversations)
	if err != nil {
		logger.Error().Err(err).Str("chat_id", chatID).Str("message_id", msg.ID).Msg("update conversation after send failed")
		return msg, fmt.Errorf("%w: update conversation: %v", ErrOperationFailed, err)
	}
	return msg, nil
}

// Edit replaces the text of a message, flags it edited and moves its timestamp
// to now.
func (s *ChatService) Edit(ctx context.Context, actorID, chatID, messageID, text string) (*models.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: message is empty", ErrValidation)
	}
	if err := s.authorize(ctx, actorID, chatID, messageID, s.policy.CanEdit); err != nil {
		return nil, err
	}

	res := s.db.WithContext(ctx).Model(&models.Message{}).
		Where("id = ? AND conversation_id = ?", messageID, chatID).
		Updates(map[string]interface{}{
			"text":      text,
			"edited":    true,
			"timestamp": s.now().UnixMilli(),
		})
	if res.Error != nil {
		return nil, fmt.Errorf("%w: %v", ErrOperationFailed, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}

	notify(ctx, s.notifier, feed.MessagesTopic(chatID))
	return s.GetMessage(ctx, chatID, messageID)
}

func (s *ChatService) Delete(ctx context.Context, actorID, chatID, messageID string) error {
	if err := s.authorize(ctx, actorID, chatID, messageID, s.policy.CanDelete); err != nil {
		return err
	}

	res := s.db.WithContext(ctx).Where("id = ? AND conversation_id = ?", messageID, chatID).Delete(&models.Message{})
	if res.Error != nil {
		return fmt.Errorf("%w: %v", ErrOperationFailed, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}

	notify(ctx, s.notifier, feed.MessagesTopic(chatID))
	return nil
}

// ToggleStar stores !current as the starred flag. Concurrent toggles are
// last-write-wins.
func (s *ChatService) ToggleStar(ctx context.Context, actorID, chatID, messageID string, current bool) (bool, error) {
	if err := s.authorize(ctx, actorID, chatID, messageID, s.policy.CanStar); err != nil {
		return current, err
	}

	starred := !current
	res := s.db.WithContext(ctx).Model(&models.Message{}).
		Where("id = ? AND conversation_id = ?", messageID, chatID).
		Update("starred", starred)
	if res.Error != nil {
		return current, fmt.Errorf("%w: %v", ErrOperationFailed, res.Error)
	}
	if res.RowsAffected == 0 {
		return current, ErrNotFound
	}

	notify(ctx, s.notifier, feed.MessagesTopic(chatID))
	return starred, nil
}

func (s *ChatService) authorize(
	ctx context.Context,
	actorID, chatID, messageID string,
	allowed func(string, *models.Conversation, *models.Message) bool,
) error {
	conv, err := s.GetConversation(ctx, chatID)
	if err != nil {
		return err
	}
	msg, err := s.GetMessage(ctx, chatID, messageID)
	if err != nil {
		return err
	}
	if !allowed(actorID, conv, msg) {
		return ErrForbidden
	}
	return nil
}
