package handlers

import (
	"sync"
)

// Presence tracks the open websocket connections of this instance per user.
type Presence struct {
	mu sync.RWMutex
	// connID -> userID
	conns map[string]string
}

func NewPresence() *Presence {
	return &Presence{conns: make(map[string]string)}
}

// RegisterConnection stores a new connection. Returns true if this is the
// first connection of the user (the user just came online).
func (m *Presence) RegisterConnection(connID, userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	wasOnline := m.countLocked(userID) > 0
	m.conns[connID] = userID
	return !wasOnline
}

// UnregisterConnection removes a connection. Returns the user and whether
// this was the user's last connection (the user is now offline).
func (m *Presence) UnregisterConnection(connID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	userID, exists := m.conns[connID]
	if !exists {
		return "", false
	}
	delete(m.conns, connID)
	return userID, m.countLocked(userID) == 0
}

func (m *Presence) IsUserOnline(userID string) bool {
	return m.CountUserConnections(userID) > 0
}

func (m *Presence) CountUserConnections(userID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.countLocked(userID)
}

func (m *Presence) countLocked(userID string) int {
	count := 0
	for _, id := range m.conns {
		if id == userID {
			count++
		}
	}
	return count
}
