package models

// WebSocket events sent by the browser.
const (
	EventSelect    = "select"
	EventLeave     = "leave"
	EventSend      = "send"
	EventEdit      = "edit"
	EventDelete    = "delete"
	EventStar      = "star"
	EventInput     = "input"
	EventSummarize = "summarize"
)

// WebSocket events pushed to the browser.
const (
	EventConnected   = "connected"
	EventSelf        = "self"
	EventUsers       = "users"
	EventRooms       = "rooms"
	EventDMs         = "dms"
	EventActive      = "active"
	EventMessages    = "messages"
	EventTyping      = "typing"
	EventSuggestions = "suggestions"
	EventSummary     = "summary"
	EventError       = "error"
)

// WSMessage is the envelope for both directions of the websocket.
type WSMessage struct {
	Event     string      `json:"event"`
	ChatID    string      `json:"chat_id,omitempty"`
	MessageID string      `json:"message_id,omitempty"`
	Text      string      `json:"text,omitempty"`
	Starred   bool        `json:"starred,omitempty"`
	Error     string      `json:"error,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp,omitempty"`
}
