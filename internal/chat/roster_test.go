package chat

import (
	"testing"

	"chatwave-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVisibleUsersHidesSelfAndBlocked(t *testing.T) {
	self := models.User{ID: "u1", BlockedUsers: []string{"u3"}}
	all := []models.User{{ID: "u1"}, {ID: "u2"}, {ID: "u3"}, {ID: "u4"}}

	visible := VisibleUsers(self, all)
	ids := make([]string, 0, len(visible))
	for _, u := range visible {
		ids = append(ids, u.ID)
	}
	assert.Equal(t, []string{"u2", "u4"}, ids)
	assert.Len(t, all, 4)
}

func TestVisibleMessagesHidesBlockedAuthors(t *testing.T) {
	self := models.User{ID: "u1", BlockedUsers: []string{"u3"}}
	messages := []models.Message{{ID: "a", UserID: "u2"}, {ID: "b", UserID: "u3"}, {ID: "c", UserID: "u1"}}

	visible := VisibleMessages(self, messages)
	require.Len(t, visible, 2)
	assert.Equal(t, "a", visible[0].ID)
	assert.Equal(t, "c", visible[1].ID)
}

func TestMergeDirectMessagesOneEntryPerVisibleUser(t *testing.T) {
	visible := []models.User{
		{ID: "u2", Name: "Bob"},
		{ID: "u3", Name: "Carol"},
		{ID: "u4", Name: "Dave"},
	}
	live := []models.Conversation{
		{
			ID:           "dm_u1_u3",
			Participants: []string{"u1", "u3"},
			UnreadCounts: map[string]int{"u1": 2, "u3": 0},
			LastMessage:  &models.LastMessage{Text: "hey", Timestamp: 200},
		},
		{
			ID:           "dm_u1_u4",
			Participants: []string{"u1", "u4"},
			UnreadCounts: map[string]int{"u1": 0},
			LastMessage:  &models.LastMessage{Text: "yo", Timestamp: 100},
		},
		// Blocked user: not visible, so no entry.
		{
			ID:           "dm_u1_u9",
			Participants: []string{"u1", "u9"},
			LastMessage:  &models.LastMessage{Text: "spam", Timestamp: 999},
		},
		// Record without participants does not overlay.
		{ID: "dm_u1_u2", LastMessage: &models.LastMessage{Text: "ghost", Timestamp: 500}},
	}

	dms := MergeDirectMessages("u1", visible, live)
	require.Len(t, dms, 3)

	assert.Equal(t, "dm_u1_u3", dms[0].ID)
	assert.Equal(t, 2, dms[0].UnreadCount)
	assert.Equal(t, "hey", dms[0].LastMessage.Text)

	assert.Equal(t, "dm_u1_u4", dms[1].ID)
	assert.Zero(t, dms[1].UnreadCount)

	assert.Equal(t, "dm_u1_u2", dms[2].ID)
	assert.Nil(t, dms[2].LastMessage)
	assert.Equal(t, "Bob", dms[2].OtherUserName)
}

func TestMergeDirectMessagesTiesSortByName(t *testing.T) {
	visible := []models.User{{ID: "u3", Name: "Zoe"}, {ID: "u2", Name: "Amy"}}

	dms := MergeDirectMessages("u1", visible, nil)
	require.Len(t, dms, 2)
	assert.Equal(t, "Amy", dms[0].OtherUserName)
	assert.Equal(t, "Zoe", dms[1].OtherUserName)
}

func TestSortRooms(t *testing.T) {
	rooms := []models.RoomSummary{
		{Conversation: models.Conversation{ID: "quiet", Name: "Quiet"}},
		{Conversation: models.Conversation{ID: "old", Name: "Old", LastMessage: &models.LastMessage{Timestamp: 10}}},
		{Conversation: models.Conversation{ID: "new", Name: "New", LastMessage: &models.LastMessage{Timestamp: 20}}},
	}

	SortRooms(rooms)
	assert.Equal(t, "new", rooms[0].ID)
	assert.Equal(t, "old", rooms[1].ID)
	assert.Equal(t, "quiet", rooms[2].ID)
}
