package chat

import (
	"chatwave-backend/internal/models"
)

// DirectMessageID is the conversation id shared by two users. Both orders of
// the pair give the same id.
func DirectMessageID(a, b string) string {
	return models.DirectMessageID(a, b)
}

// ResolveDirectMessage builds the chat-list entry currentID sees for a DM with
// otherID. It reports false when otherID is not among known.
func ResolveDirectMessage(currentID, otherID string, known []models.User) (models.DirectMessageSummary, bool) {
	for _, u := range known {
		if u.ID != otherID {
			continue
		}
		return models.DirectMessageSummary{
			ID:              DirectMessageID(currentID, otherID),
			Type:            models.ConversationDM,
			UserIDs:         [2]string{currentID, otherID},
			OtherUserID:     u.ID,
			OtherUserName:   u.Name,
			OtherUserAvatar: u.AvatarURL,
			OtherUserOnline: u.Online,
		}, true
	}
	return models.DirectMessageSummary{}, false
}
