package models

import "io"

type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
)

type Message struct {
	ID             string        `gorm:"primaryKey" json:"id"`
	ConversationID string        `gorm:"index:idx_messages_conv_ts,priority:1;not null" json:"chatId"`
	UserID         string        `gorm:"index;not null" json:"userId"`
	UserName       string        `json:"userName"`
	UserAvatar     string        `json:"userAvatar"`
	Text           string        `json:"text"`
	Timestamp      int64         `gorm:"index:idx_messages_conv_ts,priority:2;not null" json:"timestamp"`
	Edited         bool          `gorm:"not null;default:false" json:"edited"`
	FileURL        string        `json:"fileUrl,omitempty"`
	FileName       string        `json:"fileName,omitempty"`
	Status         MessageStatus `gorm:"not null;default:sent" json:"status"`
	Starred        bool          `gorm:"not null;default:false" json:"starred"`
}

// MessageInput is the author snapshot and text of a message being sent.
type MessageInput struct {
	UserID     string `json:"userId"`
	UserName   string `json:"userName"`
	UserAvatar string `json:"userAvatar"`
	Text       string `json:"text"`
}

// Attachment is a file to upload before a message is created.
type Attachment struct {
	FileName    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Texts formats messages as "name: text" lines for the suggestion bridge.
func Texts(messages []Message) []string {
	out := make([]string, 0, len(messages))
	for _, m := range messages {
		out = append(out, m.UserName+": "+m.Text)
	}
	return out
}
