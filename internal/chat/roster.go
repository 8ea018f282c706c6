package chat

import (
	"sort"

	"chatwave-backend/internal/models"
)

// VisibleUsers drops self and everyone self has blocked.
func VisibleUsers(self models.User, all []models.User) []models.User {
	out := make([]models.User, 0, len(all))
	for _, u := range all {
		if u.ID == self.ID || self.HasBlocked(u.ID) {
			continue
		}
		out = append(out, u)
	}
	return out
}

// VisibleMessages drops messages written by users self has blocked.
func VisibleMessages(self models.User, messages []models.Message) []models.Message {
	out := make([]models.Message, 0, len(messages))
	for _, m := range messages {
		if self.HasBlocked(m.UserID) {
			continue
		}
		out = append(out, m)
	}
	return out
}

// MergeDirectMessages returns one DM entry per visible user. Entries backed by
// a stored conversation carry its last message and selfID's unread counter.
// Stored conversations with a user that is not visible are left out.
func MergeDirectMessages(selfID string, visible []models.User, live []models.Conversation) []models.DirectMessageSummary {
	entries := make([]models.DirectMessageSummary, 0, len(visible))
	index := make(map[string]int, len(visible))
	for _, u := range visible {
		entry, ok := ResolveDirectMessage(selfID, u.ID, visible)
		if !ok {
			continue
		}
		index[entry.ID] = len(entries)
		entries = append(entries, entry)
	}

	for _, conv := range live {
		if len(conv.Participants) == 0 {
			continue
		}
		i, ok := index[conv.ID]
		if !ok {
			continue
		}
		if conv.LastMessage != nil {
			last := *conv.LastMessage
			entries[i].LastMessage = &last
		}
		entries[i].UnreadCount = conv.UnreadCounts[selfID]
	}

	sort.SliceStable(entries, func(i, j int) bool {
		ti, tj := entries[i].LastTimestamp(), entries[j].LastTimestamp()
		if ti != tj {
			return ti > tj
		}
		return entries[i].OtherUserName < entries[j].OtherUserName
	})
	return entries
}

// SortRooms orders rooms by last message, newest first. Rooms without
// messages go last.
func SortRooms(rooms []models.RoomSummary) {
	sort.SliceStable(rooms, func(i, j int) bool {
		ti, tj := rooms[i].LastTimestamp(), rooms[j].LastTimestamp()
		if ti != tj {
			return ti > tj
		}
		return rooms[i].Name < rooms[j].Name
	})
}
