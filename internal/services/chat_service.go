package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"chatwave-backend/internal/db"
	"chatwave-backend/internal/feed"
	"chatwave-backend/internal/idgen"
	"chatwave-backend/internal/logger"
	"chatwave-backend/internal/models"
	"chatwave-backend/internal/storage"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const maxRoomNameLen = 80

type ChatService struct {
	db       *db.DB
	notifier feed.Notifier
	blobs    storage.BlobStore
	policy   Policy
	now      func() time.Time
}

func NewChatService(database *db.DB, notifier feed.Notifier, blobs storage.BlobStore, policy Policy) *ChatService {
	if policy == nil {
		policy = AuthorOnly{}
	}
	return &ChatService{
		db:       database,
		notifier: notifier,
		blobs:    blobs,
		policy:   policy,
		now:      time.Now,
	}
}

// CreateRoom creates a room whose only participant is the creator.
func (s *ChatService) CreateRoom(ctx context.Context, name, creatorID string) (*models.Conversation, error) {
	name = strings.TrimSpace(name)
	if name == "" || len([]rune(name)) > maxRoomNameLen {
		return nil, fmt.Errorf("%w: room name must be 1 to %d characters", ErrValidation, maxRoomNameLen)
	}
	if creatorID == "" {
		return nil, fmt.Errorf("%w: creator is required", ErrValidation)
	}

	now := s.now()
	conv := models.Conversation{
		ID:        idgen.NewUUID(),
		Type:      models.ConversationRoom,
		Name:      name,
		AvatarURL: PlaceholderAvatar(name),
		CreatedBy: creatorID,
		CreatedAt: now.UnixMilli(),
		Members:   []models.ConversationMember{{UserID: creatorID, JoinedAt: now}},
	}
	if err := s.db.WithContext(ctx).Create(&conv).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOperationFailed, err)
	}

	conv.Hydrate()
	notify(ctx, s.notifier, feed.TopicConversations)
	return &conv, nil
}

// AddMembers adds users to a room. Users already in the room keep their counters.
func (s *ChatService) AddMembers(ctx context.Context, chatID string, userIDs []string) error {
	ids := dedupe(userIDs)
	if len(ids) == 0 {
		return fmt.Errorf("%w: no users selected", ErrValidation)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var conv models.Conversation
		if err := tx.Where("id = ? AND type = ?", chatID, models.ConversationRoom).First(&conv).Error; err != nil {
			return err
		}
		var known int64
		if err := tx.Model(&models.User{}).Where("id IN ?", ids).Count(&known).Error; err != nil {
			return err
		}
		if int(known) != len(ids) {
			return fmt.Errorf("%w: unknown user", ErrValidation)
		}

		now := s.now()
		members := make([]models.ConversationMember, 0, len(ids))
		for _, id := range ids {
			members = append(members, models.ConversationMember{ConversationID: chatID, UserID: id, JoinedAt: now})
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&members).Error
	})
	if err != nil {
		return storeError(err)
	}

	notify(ctx, s.notifier, feed.TopicConversations)
	return nil
}

// DeleteRoom removes a room with its messages. Only the creator may do this.
func (s *ChatService) DeleteRoom(ctx context.Context, chatID, userID string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var conv models.Conversation
		if err := tx.Where("id = ?", chatID).First(&conv).Error; err != nil {
			return err
		}
		if conv.Type != models.ConversationRoom || conv.CreatedBy != userID {
			return ErrForbidden
		}
		if err := tx.Where("conversation_id = ?", chatID).Delete(&models.Message{}).Error; err != nil {
			return err
		}
		if err := tx.Where("conversation_id = ?", chatID).Delete(&models.TypingState{}).Error; err != nil {
			return err
		}
		if err := tx.Where("conversation_id = ?", chatID).Delete(&models.ConversationMember{}).Error; err != nil {
			return err
		}
		return tx.Delete(&conv).Error
	})
	if err != nil {
		return storeError(err)
	}

	notify(ctx, s.notifier, feed.TopicConversations, feed.MessagesTopic(chatID), feed.MetaTopic(chatID))
	return nil
}

// EnsureDirectConversation creates the DM record for the pair if it does not
// exist yet. chatID must be the pair's DirectMessageID. An existing record is
// never overwritten. Reports whether it created one.
func (s *ChatService) EnsureDirectConversation(ctx context.Context, chatID string, userIDs [2]string) (bool, error) {
	if userIDs[0] == "" || userIDs[1] == "" || userIDs[0] == userIDs[1] {
		return false, fmt.Errorf("%w: invalid direct conversation", ErrValidation)
	}
	if chatID != models.DirectMessageID(userIDs[0], userIDs[1]) {
		return false, fmt.Errorf("%w: chat id does not match participants", ErrValidation)
	}

	var created bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Conversation{}).Where("id = ?", chatID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}

		now := s.now()
		conv := models.Conversation{ID: chatID, Type: models.ConversationDM, CreatedAt: now.UnixMilli()}
		res := tx.Omit(clause.Associations).Clauses(clause.OnConflict{DoNothing: true}).Create(&conv)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		members := []models.ConversationMember{
			{ConversationID: chatID, UserID: userIDs[0], JoinedAt: now},
			{ConversationID: chatID, UserID: userIDs[1], JoinedAt: now},
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&members).Error; err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return false, storeError(err)
	}

	if created {
		notify(ctx, s.notifier, feed.TopicConversations)
	}
	return created, nil
}

// GetOrCreateDirectRoom is EnsureDirectConversation for the REST API.
func (s *ChatService) GetOrCreateDirectRoom(ctx context.Context, chatID string, userIDs [2]string) (*models.RoomResponse, error) {
	created, err := s.EnsureDirectConversation(ctx, chatID, userIDs)
	if err != nil {
		return nil, err
	}
	return &models.RoomResponse{RoomID: chatID, IsNew: created}, nil
}

func (s *ChatService) GetConversation(ctx context.Context, chatID string) (*models.Conversation, error) {
	var conv models.Conversation
	err := s.db.WithContext(ctx).Preload("Members").Preload("Typists").Where("id = ?", chatID).First(&conv).Error
	if err != nil {
		return nil, storeError(err)
	}
	conv.Hydrate()
	return &conv, nil
}

// ListRooms returns the rooms the user is in, most recently active first.
func (s *ChatService) ListRooms(ctx context.Context, userID string) ([]models.RoomSummary, error) {
	convs, err := s.listFor(ctx, userID, models.ConversationRoom)
	if err != nil {
		return nil, err
	}
	rooms := make([]models.RoomSummary, 0, len(convs))
	for _, c := range convs {
		rooms = append(rooms, models.RoomSummary{Conversation: c, UnreadCount: c.UnreadCounts[userID]})
	}
	sort.SliceStable(rooms, func(i, j int) bool {
		return rooms[i].LastTimestamp() > rooms[j].LastTimestamp()
	})
	return rooms, nil
}

// ListDirectConversations returns the DM records the user takes part in.
func (s *ChatService) ListDirectConversations(ctx context.Context, userID string) ([]models.Conversation, error) {
	return s.listFor(ctx, userID, models.ConversationDM)
}

func (s *ChatService) listFor(ctx context.Context, userID, kind string) ([]models.Conversation, error) {
	var convs []models.Conversation
	member := s.db.WithContext(ctx).Model(&models.ConversationMember{}).Select("conversation_id").Where("user_id = ?", userID)
	err := s.db.WithContext(ctx).
		Preload("Members").
		Preload("Typists").
		Where("type = ? AND id IN (?)", kind, member).
		Order("last_message_at desc, id asc").
		Find(&convs).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOperationFailed, err)
	}
	for i := range convs {
		convs[i].Hydrate()
	}
	return convs, nil
}

// SetTyping adds the user to or removes the user from the conversation's typing set.
func (s *ChatService) SetTyping(ctx context.Context, chatID, userID string, typing bool) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Conversation{}).Where("id = ?", chatID).Count(&count).Error; err != nil {
		return fmt.Errorf("%w: %v", ErrOperationFailed, err)
	}
	if count == 0 {
		logger.Warn().Str("chat_id", chatID).Str("user_id", userID).Msg("typing update for unknown conversation")
		return ErrNotFound
	}

	var res *gorm.DB
	if typing {
		row := models.TypingState{ConversationID: chatID, UserID: userID, UpdatedAt: s.now()}
		res = s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	} else {
		res = s.db.WithContext(ctx).Where("conversation_id = ? AND user_id = ?", chatID, userID).Delete(&models.TypingState{})
	}
	if res.Error != nil {
		return fmt.Errorf("%w: %v", ErrOperationFailed, res.Error)
	}
	if res.RowsAffected > 0 {
		notify(ctx, s.notifier, feed.MetaTopic(chatID))
	}
	return nil
}

// TypingIDs returns who is typing in the conversation. A missing conversation
// has nobody typing.
func (s *ChatService) TypingIDs(ctx context.Context, chatID string) ([]string, error) {
	ids := []string{}
	err := s.db.WithContext(ctx).Model(&models.TypingState{}).
		Where("conversation_id = ?", chatID).
		Order("updated_at asc, user_id asc").
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOperationFailed, err)
	}
	return ids, nil
}

// MarkRead resets the user's unread counter and marks everyone else's messages
// read, in one transaction. With a zero counter it writes nothing. Returns the
// number of messages that changed status.
func (s *ChatService) MarkRead(ctx context.Context, chatID, userID string) (int64, error) {
	var updated int64
	var reset bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var member models.ConversationMember
		err := tx.Where("conversation_id = ? AND user_id = ?", chatID, userID).First(&member).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if member.UnreadCount == 0 {
			return nil
		}

		res := tx.Model(&models.ConversationMember{}).
			Where("conversation_id = ? AND user_id = ?", chatID, userID).
			Update("unread_count", 0)
		if res.Error != nil {
			return res.Error
		}
		reset = true

		res = tx.Model(&models.Message{}).
			Where("conversation_id = ? AND user_id <> ? AND status <> ?", chatID, userID, models.StatusRead).
			Update("status", models.StatusRead)
		if res.Error != nil {
			return res.Error
		}
		updated = res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrOperationFailed, err)
	}

	if reset {
		topics := []string{feed.TopicConversations}
		if updated > 0 {
			topics = append(topics, feed.MessagesTopic(chatID))
		}
		notify(ctx, s.notifier, topics...)
	}
	return updated, nil
}

// MarkDelivered advances everyone else's sent messages to delivered. Read
// messages are left alone.
func (s *ChatService) MarkDelivered(ctx context.Context, chatID, userID string) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.Message{}).
		Where("conversation_id = ? AND user_id <> ? AND status = ?", chatID, userID, models.StatusSent).
		Update("status", models.StatusDelivered)
	if res.Error != nil {
		return 0, fmt.Errorf("%w: %v", ErrOperationFailed, res.Error)
	}
	if res.RowsAffected > 0 {
		notify(ctx, s.notifier, feed.MessagesTopic(chatID))
	}
	return res.RowsAffected, nil
}

// storeError maps gorm errors onto the service's sentinel errors.
func storeError(err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrForbidden), errors.Is(err, ErrValidation):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrOperationFailed, err)
	}
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
