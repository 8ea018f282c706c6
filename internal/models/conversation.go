package models

import "time"

const (
	ConversationRoom = "room"
	ConversationDM   = "dm"
)

// AttachmentPreview is the last-message text used when a message has a file but no text.
const AttachmentPreview = "📎 Attachment"

// DirectMessageID is the conversation id shared by two users. Both orders of
// the pair give the same id.
func DirectMessageID(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return "dm_" + a + "_" + b
}

type Conversation struct {
	ID              string `gorm:"primaryKey" json:"id"`
	Type            string `gorm:"index;not null" json:"type"`
	Name            string `json:"name,omitempty"`
	AvatarURL       string `json:"avatarUrl,omitempty"`
	CreatedBy       string `json:"createdBy,omitempty"`
	CreatedAt       int64  `gorm:"not null" json:"createdAt"`
	LastMessageText string `json:"-"`
	LastMessageAt   int64  `gorm:"not null;default:0" json:"-"`

	Members []ConversationMember `gorm:"foreignKey:ConversationID;constraint:OnDelete:CASCADE" json:"-"`
	Typists []TypingState        `gorm:"foreignKey:ConversationID;constraint:OnDelete:CASCADE" json:"-"`

	Participants []string       `gorm:"-" json:"participants"`
	UnreadCounts map[string]int `gorm:"-" json:"unreadCounts"`
	Typing       []string       `gorm:"-" json:"typing"`
	LastMessage  *LastMessage   `gorm:"-" json:"lastMessage,omitempty"`
}

// Hydrate fills the derived fields from the loaded member and typing rows.
func (c *Conversation) Hydrate() {
	c.Participants = make([]string, 0, len(c.Members))
	c.UnreadCounts = make(map[string]int, len(c.Members))
	for _, m := range c.Members {
		c.Participants = append(c.Participants, m.UserID)
		c.UnreadCounts[m.UserID] = m.UnreadCount
	}
	c.Typing = make([]string, 0, len(c.Typists))
	for _, t := range c.Typists {
		c.Typing = append(c.Typing, t.UserID)
	}
	c.LastMessage = nil
	if c.LastMessageAt > 0 {
		c.LastMessage = &LastMessage{Text: c.LastMessageText, Timestamp: c.LastMessageAt}
	}
}

func (c *Conversation) HasParticipant(userID string) bool {
	for _, id := range c.Participants {
		if id == userID {
			return true
		}
	}
	return false
}

// ConversationMember holds membership and the member's unread counter.
type ConversationMember struct {
	ConversationID string `gorm:"primaryKey"`
	UserID         string `gorm:"primaryKey;index"`
	UnreadCount    int    `gorm:"not null;default:0"`
	JoinedAt       time.Time
}

// TypingState is one entry of a conversation's typing set.
type TypingState struct {
	ConversationID string `gorm:"primaryKey"`
	UserID         string `gorm:"primaryKey"`
	UpdatedAt      time.Time
}

type LastMessage struct {
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

// RoomSummary is a room as seen by one member.
type RoomSummary struct {
	Conversation
	UnreadCount int `json:"unreadCount"`
}

// DirectMessageSummary is a DM entry of the chat list. It exists for every
// visible user, with or without a backing conversation record.
type DirectMessageSummary struct {
	ID              string       `json:"id"`
	Type            string       `json:"type"`
	UserIDs         [2]string    `json:"userIds"`
	OtherUserID     string       `json:"otherUserId"`
	OtherUserName   string       `json:"otherUserName"`
	OtherUserAvatar string       `json:"otherUserAvatar"`
	OtherUserOnline bool         `json:"otherUserOnline"`
	LastMessage     *LastMessage `json:"lastMessage,omitempty"`
	UnreadCount     int          `json:"unreadCount"`
}

// LastTimestamp is the sort key of chat lists. Conversations without messages sort last.
func (d DirectMessageSummary) LastTimestamp() int64 {
	if d.LastMessage == nil {
		return 0
	}
	return d.LastMessage.Timestamp
}

func (r RoomSummary) LastTimestamp() int64 {
	if r.LastMessage == nil {
		return 0
	}
	return r.LastMessage.Timestamp
}

type CreateRoomRequest struct {
	Name string `json:"name"`
}

type AddMembersRequest struct {
	UserIDs []string `json:"user_ids"`
}

type CreateDirectRoomRequest struct {
	RecipientID string `json:"recipient_id"`
}

type RoomResponse struct {
	RoomID string `json:"room_id"`
	IsNew  bool   `json:"is_new"`
}

type ThemeRequest struct {
	Theme string `json:"theme"`
}
