package models

import "time"

// DefaultTheme is used for conversations without a per-user theme.
const DefaultTheme = "default"

type User struct {
	ID              string    `gorm:"primaryKey" json:"id"`
	Email           string    `gorm:"uniqueIndex;not null" json:"-"`
	PasswordHash    string    `gorm:"not null" json:"-"`
	Name            string    `gorm:"not null" json:"name"`
	AvatarURL       string    `json:"avatarUrl"`
	Online          bool      `gorm:"not null;default:false" json:"online"`
	ProfileComplete bool      `gorm:"not null;default:false" json:"profileComplete"`
	Bio             string    `json:"bio,omitempty"`
	CreatedAt       time.Time `json:"-"`

	// Filled from the overlay tables on read.
	MutedChats   []string          `gorm:"-" json:"mutedChats,omitempty"`
	BlockedUsers []string          `gorm:"-" json:"blockedUsers,omitempty"`
	ChatThemes   map[string]string `gorm:"-" json:"chatThemes,omitempty"`
}

func (u User) HasBlocked(userID string) bool {
	for _, id := range u.BlockedUsers {
		if id == userID {
			return true
		}
	}
	return false
}

func (u User) HasMuted(chatID string) bool {
	for _, id := range u.MutedChats {
		if id == chatID {
			return true
		}
	}
	return false
}

// ThemeFor returns the user's theme for a conversation.
func (u User) ThemeFor(chatID string) string {
	if theme, ok := u.ChatThemes[chatID]; ok && theme != "" {
		return theme
	}
	return DefaultTheme
}

type UserMute struct {
	UserID string `gorm:"primaryKey"`
	ChatID string `gorm:"primaryKey"`
}

type UserBlock struct {
	UserID    string `gorm:"primaryKey"`
	BlockedID string `gorm:"primaryKey"`
}

type UserChatTheme struct {
	UserID string `gorm:"primaryKey"`
	ChatID string `gorm:"primaryKey"`
	Theme  string `gorm:"not null"`
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResponse struct {
	Token        string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	User         *User  `json:"user"`
}

type ProfileUpdate struct {
	Name string  `json:"name"`
	Bio  *string `json:"bio"`
}
