package chat

import (
	"testing"

	"chatwave-backend/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestDirectMessageIDIsSymmetric(t *testing.T) {
	assert.Equal(t, "dm_u1_u2", DirectMessageID("u1", "u2"))
	assert.Equal(t, "dm_u1_u2", DirectMessageID("u2", "u1"))
	assert.Equal(t, DirectMessageID("zed", "amy"), DirectMessageID("amy", "zed"))
}

func TestResolveDirectMessage(t *testing.T) {
	known := []models.User{
		{ID: "u2", Name: "Bob", AvatarURL: "bob.png", Online: true},
	}

	dm, ok := ResolveDirectMessage("u1", "u2", known)
	assert.True(t, ok)
	assert.Equal(t, models.DirectMessageSummary{
		ID:              "dm_u1_u2",
		Type:            models.ConversationDM,
		UserIDs:         [2]string{"u1", "u2"},
		OtherUserID:     "u2",
		OtherUserName:   "Bob",
		OtherUserAvatar: "bob.png",
		OtherUserOnline: true,
	}, dm)

	_, ok = ResolveDirectMessage("u1", "u3", known)
	assert.False(t, ok)
}
