package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"chatwave-backend/internal/apperr"
	"chatwave-backend/internal/chat"
	"chatwave-backend/internal/db/dbtest"
	"chatwave-backend/internal/feed"
	"chatwave-backend/internal/models"
	"chatwave-backend/internal/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pushed struct {
	event  string
	chatID string
	data   interface{}
}

type pushRecorder struct {
	mu     sync.Mutex
	events []pushed
}

func (r *pushRecorder) push(event, chatID string, data interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, pushed{event: event, chatID: chatID, data: data})
}

func (r *pushRecorder) errors() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		if e.event == models.EventError {
			out = append(out, e.data.(string))
		}
	}
	return out
}

func (r *pushRecorder) lastMessages() []models.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].event == models.EventMessages {
			return r.events[i].data.([]models.Message)
		}
	}
	return nil
}

func (r *pushRecorder) has(event string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.event == event {
			return true
		}
	}
	return false
}

func newClient(t *testing.T) (*chat.Client, *services.ChatService, *pushRecorder) {
	t.Helper()
	d := dbtest.OpenTest(t)
	n := feed.NewLocalNotifier()
	for _, u := range []models.User{
		{ID: "u1", Email: "u1@example.com", PasswordHash: "x", Name: "Alice"},
		{ID: "u2", Email: "u2@example.com", PasswordHash: "x", Name: "Bob"},
	} {
		u := u
		require.NoError(t, d.Create(&u).Error)
	}
	users := services.NewUserService(d, n, nil, services.NewTokenIssuer("test"))
	chats := services.NewChatService(d, n, nil, services.AuthorOnly{})

	rec := &pushRecorder{}
	c := chat.NewClient("u1", users, chats, n, nil, rec.push, chat.Options{
		TypingIdle:      50 * time.Millisecond,
		SuggestDebounce: 10 * time.Millisecond,
	})
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(c.Close)
	return c, chats, rec
}

func frame(t *testing.T, msg models.WSMessage) []byte {
	t.Helper()
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	return data
}

func TestHandleMessageSelectSendEdit(t *testing.T) {
	client, chats, rec := newClient(t)
	ctx := context.Background()
	chatID := chat.DirectMessageID("u1", "u2")

	HandleMessage(ctx, client, rec.push, frame(t, models.WSMessage{Event: models.EventSelect, ChatID: chatID}))
	HandleMessage(ctx, client, rec.push, frame(t, models.WSMessage{Event: models.EventSend, Text: "hi bob"}))
	require.Empty(t, rec.errors())

	msgs, err := chats.ListMessages(ctx, chatID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hi bob", msgs[0].Text)

	HandleMessage(ctx, client, rec.push, frame(t, models.WSMessage{Event: models.EventEdit, MessageID: msgs[0].ID, Text: "hi Bob"}))
	// Starring reads the current flag from the live snapshot.
	require.Eventually(t, func() bool {
		live := rec.lastMessages()
		return len(live) == 1 && live[0].Edited
	}, 2*time.Second, 10*time.Millisecond)
	HandleMessage(ctx, client, rec.push, frame(t, models.WSMessage{Event: models.EventStar, MessageID: msgs[0].ID}))
	require.Empty(t, rec.errors())

	got, err := chats.GetMessage(ctx, chatID, msgs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "hi Bob", got.Text)
	assert.True(t, got.Edited)
	assert.True(t, got.Starred)

	HandleMessage(ctx, client, rec.push, frame(t, models.WSMessage{Event: models.EventDelete, MessageID: msgs[0].ID}))
	require.Empty(t, rec.errors())
	msgs, err = chats.ListMessages(ctx, chatID)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.True(t, rec.has(models.EventActive))
}

func TestHandleMessageReportsErrors(t *testing.T) {
	client, _, rec := newClient(t)
	ctx := context.Background()

	HandleMessage(ctx, client, rec.push, []byte("{not json"))
	HandleMessage(ctx, client, rec.push, frame(t, models.WSMessage{Event: "shout"}))
	HandleMessage(ctx, client, rec.push, frame(t, models.WSMessage{Event: models.EventSend, Text: "nobody listening"}))
	HandleMessage(ctx, client, rec.push, frame(t, models.WSMessage{Event: models.EventSelect, ChatID: "missing"}))

	errs := rec.errors()
	require.Len(t, errs, 4)
	assert.Equal(t, "invalid message", errs[0])
	assert.Contains(t, errs[1], "shout")
	assert.Equal(t, "send: no chat selected", errs[2])
	assert.Equal(t, "select: not found", errs[3])

	HandleMessage(ctx, client, rec.push, frame(t, models.WSMessage{Event: models.EventSummarize}))
	assert.Eventually(t, func() bool { return len(rec.errors()) == 5 }, time.Second, 10*time.Millisecond)
}

func TestHandleMessageLeave(t *testing.T) {
	client, _, rec := newClient(t)
	ctx := context.Background()

	HandleMessage(ctx, client, rec.push, frame(t, models.WSMessage{Event: models.EventSelect, ChatID: chat.DirectMessageID("u1", "u2")}))
	require.NotNil(t, client.State().Active)

	HandleMessage(ctx, client, rec.push, frame(t, models.WSMessage{Event: models.EventLeave}))
	assert.Nil(t, client.State().Active)
	assert.Empty(t, rec.errors())
}

func TestEncodeEvent(t *testing.T) {
	data, err := encodeEvent(models.EventError, "c1", "boom")
	require.NoError(t, err)
	var msg models.WSMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, models.EventError, msg.Event)
	assert.Equal(t, "c1", msg.ChatID)
	assert.Equal(t, "boom", msg.Error)
	assert.Nil(t, msg.Data)
	assert.NotZero(t, msg.Timestamp)

	data, err = encodeEvent(models.EventSummary, "c1", "short chat")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "short chat", msg.Data)
}

func TestPresence(t *testing.T) {
	p := NewPresence()

	assert.True(t, p.RegisterConnection("c1", "u1"))
	assert.False(t, p.RegisterConnection("c2", "u1"))
	assert.True(t, p.RegisterConnection("c3", "u2"))
	assert.Equal(t, 2, p.CountUserConnections("u1"))

	user, last := p.UnregisterConnection("c1")
	assert.Equal(t, "u1", user)
	assert.False(t, last)
	assert.True(t, p.IsUserOnline("u1"))

	user, last = p.UnregisterConnection("c2")
	assert.Equal(t, "u1", user)
	assert.True(t, last)
	assert.False(t, p.IsUserOnline("u1"))

	_, last = p.UnregisterConnection("c2")
	assert.False(t, last)
}

func TestToAppError(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{services.ErrValidation, http.StatusBadRequest},
		{services.ErrNotFound, http.StatusNotFound},
		{chat.ErrUnknownChat, http.StatusNotFound},
		{services.ErrForbidden, http.StatusForbidden},
		{services.ErrUserExists, http.StatusConflict},
		{services.ErrInvalidCredentials, http.StatusUnauthorized},
		{services.ErrUploadFailed, http.StatusBadGateway},
		{chat.ErrNoActiveChat, http.StatusBadRequest},
		{apperr.Conflict("taken"), http.StatusConflict},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.code, toAppError(tc.err).Code, tc.err.Error())
	}

	// Internal details never leak.
	assert.False(t, strings.Contains(toAppError(errors.New("disk on fire")).Message, "disk"))
}
