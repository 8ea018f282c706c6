package handlers

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"chatwave-backend/internal/chat"
	"chatwave-backend/internal/feed"
	"chatwave-backend/internal/idgen"
	"chatwave-backend/internal/logger"
	"chatwave-backend/internal/models"
	"chatwave-backend/internal/services"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

const (
	sendBuffer = 256
	writeWait  = 10 * time.Second
)

type WSDeps struct {
	Users    *services.UserService
	Chats    *services.ChatService
	Notifier feed.Notifier
	Assist   chat.Assistant
	Presence *Presence
	Options  chat.Options
}

// WebSocketHandler runs one sync client per connection. Everything the client
// pushes goes through the connection's send channel; a single goroutine writes.
func WebSocketHandler(d WSDeps) fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		userID, _ := c.Locals("user_id").(string)
		connID := idgen.NewUUID()

		conn := newConnection(c)
		go conn.writePump()
		defer conn.close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		if first := d.Presence.RegisterConnection(connID, userID); first {
			logger.LogError(d.Users.SetOnline(ctx, userID, true), "set online")
		}
		defer func() {
			if _, last := d.Presence.UnregisterConnection(connID); last {
				logger.LogError(d.Users.SetOnline(context.Background(), userID, false), "set offline")
			}
		}()

		conn.push(models.EventConnected, "", fiber.Map{"user_id": userID})

		client := chat.NewClient(userID, d.Users, d.Chats, d.Notifier, d.Assist, conn.push, d.Options)
		if err := client.Start(ctx); err != nil {
			conn.push(models.EventError, "", toAppError(err).Message)
			return
		}
		defer client.Close()

		for {
			msgType, msg, err := c.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					logger.Warn().Err(err).Str("user_id", userID).Msg("websocket closed unexpectedly")
				}
				return
			}
			if msgType != websocket.TextMessage {
				continue
			}
			HandleMessage(ctx, client, conn.push, msg)
		}
	})
}

// WSUpgradeMiddleware rejects plain HTTP requests to the websocket route.
func WSUpgradeMiddleware(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		c.Locals("allowed", true)
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// connection queues outgoing frames for one websocket.
type connection struct {
	ws   *websocket.Conn
	send chan []byte
	done chan struct{}

	mu     sync.Mutex
	closed bool
}

func newConnection(ws *websocket.Conn) *connection {
	return &connection{ws: ws, send: make(chan []byte, sendBuffer), done: make(chan struct{})}
}

func (c *connection) writePump() {
	defer close(c.done)
	for data := range c.send {
		_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
			logger.Debug().Err(err).Msg("websocket write failed")
			// Unblock the read loop so the handler tears everything down.
			_ = c.ws.Close()
			for range c.send {
			}
			return
		}
	}
}

// push implements chat.Sink.
func (c *connection) push(event, chatID string, data interface{}) {
	payload, err := encodeEvent(event, chatID, data)
	if err != nil {
		logger.LogError(err, "encode "+event)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- payload:
	default:
		// Snapshots are full state, so a client this far behind is better
		// off reconnecting.
		logger.Warn().Str("event", event).Msg("websocket send buffer full, closing")
		_ = c.ws.Close()
	}
}

func (c *connection) close() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	c.mu.Unlock()
	<-c.done
}

func encodeEvent(event, chatID string, data interface{}) ([]byte, error) {
	msg := models.WSMessage{Event: event, ChatID: chatID, Timestamp: time.Now().UnixMilli()}
	if s, ok := data.(string); ok && event == models.EventError {
		msg.Error = s
	} else {
		msg.Data = data
	}
	return json.Marshal(msg)
}
