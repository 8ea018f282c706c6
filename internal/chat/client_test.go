package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"chatwave-backend/internal/db"
	"chatwave-backend/internal/db/dbtest"
	"chatwave-backend/internal/feed"
	"chatwave-backend/internal/models"
	"chatwave-backend/internal/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 2 * time.Second
	tick    = 10 * time.Millisecond
)

type event struct {
	name   string
	chatID string
	data   interface{}
}

type recorder struct {
	mu     sync.Mutex
	events []event
}

func (r *recorder) sink(name, chatID string, data interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event{name: name, chatID: chatID, data: data})
}

func (r *recorder) last(name string) (event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].name == name {
			return r.events[i], true
		}
	}
	return event{}, false
}

func (r *recorder) count(name, chatID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.name == name && e.chatID == chatID {
			n++
		}
	}
	return n
}

func (r *recorder) messages() []models.Message {
	e, ok := r.last(models.EventMessages)
	if !ok {
		return nil
	}
	return e.data.([]models.Message)
}

func (r *recorder) typists() []models.User {
	e, ok := r.last(models.EventTyping)
	if !ok {
		return nil
	}
	return e.data.([]models.User)
}

func (r *recorder) suggestions() []string {
	e, ok := r.last(models.EventSuggestions)
	if !ok {
		return nil
	}
	return e.data.([]string)
}

type stubAssistant struct {
	mu      sync.Mutex
	suggest []string
	calls   [][]string
}

func (s *stubAssistant) SuggestReplies(_ context.Context, texts []string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, texts)
	return s.suggest
}

func (s *stubAssistant) SummarizeChat(_ context.Context, texts []string) string {
	if len(texts) == 0 {
		return "nothing"
	}
	return "summary of " + texts[0]
}

func (s *stubAssistant) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type env struct {
	db       *db.DB
	notifier *feed.LocalNotifier
	users    *services.UserService
	chats    *services.ChatService
}

func newEnv(t *testing.T) *env {
	t.Helper()
	d := dbtest.OpenTest(t)
	n := feed.NewLocalNotifier()
	e := &env{
		db:       d,
		notifier: n,
		users:    services.NewUserService(d, n, nil, services.NewTokenIssuer("test")),
		chats:    services.NewChatService(d, n, nil, services.AuthorOnly{}),
	}
	for _, u := range []models.User{
		{ID: "u1", Email: "u1@example.com", PasswordHash: "x", Name: "Alice"},
		{ID: "u2", Email: "u2@example.com", PasswordHash: "x", Name: "Bob"},
		{ID: "u3", Email: "u3@example.com", PasswordHash: "x", Name: "Carol"},
	} {
		u := u
		require.NoError(t, d.Create(&u).Error)
	}
	return e
}

func (e *env) client(t *testing.T, userID string, assist Assistant) (*Client, *recorder) {
	t.Helper()
	rec := &recorder{}
	c := NewClient(userID, e.users, e.chats, e.notifier, assist, rec.sink, Options{
		TypingIdle:      200 * time.Millisecond,
		SuggestDebounce: 20 * time.Millisecond,
	})
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(c.Close)
	return c, rec
}

func (e *env) unread(t *testing.T, chatID, userID string) int {
	t.Helper()
	conv, err := e.chats.GetConversation(context.Background(), chatID)
	require.NoError(t, err)
	return conv.UnreadCounts[userID]
}

func dmEntry(c *Client, chatID string) (models.DirectMessageSummary, bool) {
	for _, d := range c.State().DMs {
		if d.ID == chatID {
			return d, true
		}
	}
	return models.DirectMessageSummary{}, false
}

func TestStartUnknownUser(t *testing.T) {
	e := newEnv(t)
	c := NewClient("ghost", e.users, e.chats, e.notifier, nil, nil, Options{})
	assert.ErrorIs(t, c.Start(context.Background()), ErrUnknownUser)
}

func TestRosterHasOneEntryPerVisibleUser(t *testing.T) {
	e := newEnv(t)
	c, rec := e.client(t, "u1", nil)

	st := c.State()
	assert.Equal(t, "u1", st.Self.ID)
	require.Len(t, st.Users, 2)
	require.Len(t, st.DMs, 2)
	for _, d := range st.DMs {
		assert.Equal(t, DirectMessageID("u1", d.OtherUserID), d.ID)
		assert.NotEqual(t, "u1", d.OtherUserID)
	}
	_, ok := rec.last(models.EventDMs)
	assert.True(t, ok)
}

func TestSendToFreshDirectMessage(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice, aliceRec := e.client(t, "u1", nil)

	require.NoError(t, alice.Select("dm_u1_u2"))
	msg, err := alice.Send(ctx, "hello", nil)
	require.NoError(t, err)
	assert.Equal(t, "dm_u1_u2", msg.ConversationID)
	assert.Equal(t, "Alice", msg.UserName)

	assert.Equal(t, 1, e.unread(t, "dm_u1_u2", "u2"))
	assert.Equal(t, 0, e.unread(t, "dm_u1_u2", "u1"))

	assert.Eventually(t, func() bool {
		msgs := aliceRec.messages()
		return len(msgs) == 1 && msgs[0].Text == "hello"
	}, waitFor, tick)

	assert.Eventually(t, func() bool {
		d, ok := dmEntry(alice, "dm_u1_u2")
		return ok && d.LastMessage != nil && d.LastMessage.Text == "hello"
	}, waitFor, tick)
}

func TestRecipientSeesUnreadThenReadsOnOpen(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice, _ := e.client(t, "u1", nil)
	bob, bobRec := e.client(t, "u2", nil)

	require.NoError(t, alice.Select("dm_u1_u2"))
	_, err := alice.Send(ctx, "one", nil)
	require.NoError(t, err)
	_, err = alice.Send(ctx, "two", nil)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		d, ok := dmEntry(bob, "dm_u1_u2")
		return ok && d.UnreadCount == 2
	}, waitFor, tick)

	// Bob's client saw the unread counter, so the messages reached him.
	assert.Eventually(t, func() bool {
		msgs, err := e.chats.ListMessages(ctx, "dm_u1_u2")
		return err == nil && len(msgs) == 2 &&
			msgs[0].Status == models.StatusDelivered && msgs[1].Status == models.StatusDelivered
	}, waitFor, tick)

	require.NoError(t, bob.Select("dm_u1_u2"))
	assert.Equal(t, 0, e.unread(t, "dm_u1_u2", "u2"))
	assert.Eventually(t, func() bool {
		msgs := bobRec.messages()
		return len(msgs) == 2 && msgs[0].Status == models.StatusRead && msgs[1].Status == models.StatusRead
	}, waitFor, tick)

	// Reopening with nothing unread writes nothing.
	updated, err := e.chats.MarkRead(ctx, "dm_u1_u2", "u2")
	require.NoError(t, err)
	assert.Zero(t, updated)

	// New message while Bob is looking: reconciled right away.
	_, err = alice.Send(ctx, "three", nil)
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		msgs := bobRec.messages()
		return len(msgs) == 3 && msgs[2].Status == models.StatusRead
	}, waitFor, tick)
	assert.Equal(t, 0, e.unread(t, "dm_u1_u2", "u2"))
}

func TestEditDeleteAndStarThroughClient(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice, aliceRec := e.client(t, "u1", nil)
	bob, _ := e.client(t, "u2", nil)

	require.NoError(t, alice.Select("dm_u1_u2"))
	msg, err := alice.Send(ctx, "helo", nil)
	require.NoError(t, err)

	require.NoError(t, bob.Select("dm_u1_u2"))
	_, err = bob.Edit(ctx, msg.ID, "hacked")
	assert.ErrorIs(t, err, services.ErrForbidden)

	edited, err := alice.Edit(ctx, msg.ID, "hello")
	require.NoError(t, err)
	assert.True(t, edited.Edited)

	assert.Eventually(t, func() bool {
		msgs := aliceRec.messages()
		return len(msgs) == 1 && msgs[0].Text == "hello" && msgs[0].Edited
	}, waitFor, tick)

	assert.Eventually(t, func() bool {
		session, err := bob.activeSession()
		if err != nil {
			return false
		}
		_, ok := session.Message(msg.ID)
		return ok
	}, waitFor, tick)
	starred, err := bob.ToggleStar(ctx, msg.ID)
	require.NoError(t, err)
	assert.True(t, starred)

	_, err = bob.ToggleStar(ctx, "missing")
	assert.ErrorIs(t, err, ErrUnknownMessage)

	require.NoError(t, alice.Delete(ctx, msg.ID))
	assert.Eventually(t, func() bool {
		return len(aliceRec.messages()) == 0
	}, waitFor, tick)
}

func TestBlockHidesWithoutDeleting(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice, _ := e.client(t, "u1", nil)
	bob, bobRec := e.client(t, "u2", nil)

	require.NoError(t, alice.Select("dm_u1_u2"))
	_, err := alice.Send(ctx, "hi bob", nil)
	require.NoError(t, err)

	room, err := e.chats.CreateRoom(ctx, "Team", "u2")
	require.NoError(t, err)
	require.NoError(t, e.chats.AddMembers(ctx, room.ID, []string{"u1"}))
	_, err = e.chats.Send(ctx, room.ID, models.MessageInput{UserID: "u1", UserName: "Alice", Text: "from alice"}, nil)
	require.NoError(t, err)
	_, err = e.chats.Send(ctx, room.ID, models.MessageInput{UserID: "u2", UserName: "Bob", Text: "from bob"}, nil)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		for _, r := range bob.State().Rooms {
			if r.ID == room.ID {
				return true
			}
		}
		return false
	}, waitFor, tick)
	require.NoError(t, bob.Select(room.ID))
	assert.Eventually(t, func() bool { return len(bobRec.messages()) == 2 }, waitFor, tick)

	_, err = e.users.ToggleBlock(ctx, "u2", "u1")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		_, ok := dmEntry(bob, "dm_u1_u2")
		return !ok && len(bob.State().Users) == 1
	}, waitFor, tick)
	assert.Eventually(t, func() bool {
		msgs := bobRec.messages()
		return len(msgs) == 1 && msgs[0].UserID == "u2"
	}, waitFor, tick)

	stored, err := e.chats.ListMessages(ctx, room.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 2)

	_, err = e.users.ToggleBlock(ctx, "u2", "u1")
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		_, ok := dmEntry(bob, "dm_u1_u2")
		return ok && len(bobRec.messages()) == 2
	}, waitFor, tick)
}

func TestTypingIsVisibleToOthersOnly(t *testing.T) {
	e := newEnv(t)
	alice, aliceRec := e.client(t, "u1", nil)
	bob, bobRec := e.client(t, "u2", nil)

	require.NoError(t, alice.Select("dm_u1_u2"))
	require.NoError(t, bob.Select("dm_u1_u2"))

	alice.InputChanged("h")
	assert.Eventually(t, func() bool {
		typists := bobRec.typists()
		return len(typists) == 1 && typists[0].ID == "u1"
	}, waitFor, tick)
	assert.Empty(t, aliceRec.typists(), "own typing is not shown")

	// Idle timeout clears it.
	assert.Eventually(t, func() bool {
		return len(bobRec.typists()) == 0
	}, waitFor, tick)

	alice.InputChanged("hello")
	assert.Eventually(t, func() bool { return len(bobRec.typists()) == 1 }, waitFor, tick)
	alice.InputChanged("")
	assert.Eventually(t, func() bool { return len(bobRec.typists()) == 0 }, waitFor, tick)
}

func TestSuggestionsFollowOthersMessages(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	assistant := &stubAssistant{suggest: []string{"Sounds good", "See you"}}
	alice, aliceRec := e.client(t, "u1", assistant)
	bobAssistant := &stubAssistant{suggest: []string{"unused"}}
	bob, bobRec := e.client(t, "u2", bobAssistant)

	require.NoError(t, alice.Select("dm_u1_u2"))
	require.NoError(t, bob.Select("dm_u1_u2"))

	_, err := bob.Send(ctx, "dinner at 8?", nil)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return len(aliceRec.suggestions()) == 2
	}, waitFor, tick)
	assert.Equal(t, []string{"Sounds good", "See you"}, aliceRec.suggestions())

	assistant.mu.Lock()
	lastCall := assistant.calls[len(assistant.calls)-1]
	assistant.mu.Unlock()
	assert.Equal(t, []string{"Bob: dinner at 8?"}, lastCall)

	// Bob wrote the newest message, so his side asks for nothing.
	assert.Never(t, func() bool { return bobAssistant.callCount() > 0 }, 100*time.Millisecond, tick)
	assert.Empty(t, bobRec.suggestions())

	// Replying clears the suggestions.
	_, err = alice.Send(ctx, "sure", nil)
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return len(aliceRec.suggestions()) == 0 }, waitFor, tick)
}

func TestSuggestionsUseTheLastFiveMessages(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	assistant := &stubAssistant{suggest: []string{"ok"}}
	alice, _ := e.client(t, "u1", assistant)

	require.NoError(t, alice.Select("dm_u1_u2"))
	for _, text := range []string{"1", "2", "3", "4", "5", "6", "7"} {
		_, err := e.chats.Send(ctx, "dm_u1_u2", models.MessageInput{UserID: "u2", UserName: "Bob", Text: text}, nil)
		require.NoError(t, err)
	}

	assert.Eventually(t, func() bool {
		assistant.mu.Lock()
		defer assistant.mu.Unlock()
		if len(assistant.calls) == 0 {
			return false
		}
		last := assistant.calls[len(assistant.calls)-1]
		return len(last) == 5 && last[0] == "Bob: 3" && last[4] == "Bob: 7"
	}, waitFor, tick)
}

func TestSwitchingDetachesPreviousConversation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice, aliceRec := e.client(t, "u1", nil)

	require.NoError(t, alice.Select("dm_u1_u2"))
	assert.Eventually(t, func() bool { return aliceRec.count(models.EventMessages, "dm_u1_u2") > 0 }, waitFor, tick)
	require.NoError(t, alice.Select("dm_u1_u3"))
	assert.Equal(t, "dm_u1_u3", alice.State().Active.ID)
	before := aliceRec.count(models.EventMessages, "dm_u1_u2")

	_, err := e.chats.Send(ctx, "dm_u1_u2", models.MessageInput{UserID: "u2", Text: "are you there?"}, nil)
	require.NoError(t, err)
	assert.Never(t, func() bool {
		return aliceRec.count(models.EventMessages, "dm_u1_u2") != before
	}, 150*time.Millisecond, tick)

	// The conversation is not open any more, so the counter stays.
	assert.Equal(t, 1, e.unread(t, "dm_u1_u2", "u1"))

	alice.Leave()
	assert.Nil(t, alice.State().Active)
	_, err = alice.Send(ctx, "nobody home", nil)
	assert.ErrorIs(t, err, ErrNoActiveChat)
}

func TestSelectUnknownChat(t *testing.T) {
	e := newEnv(t)
	alice, _ := e.client(t, "u1", nil)
	assert.ErrorIs(t, alice.Select("nope"), ErrUnknownChat)
}

func TestSummarize(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice, aliceRec := e.client(t, "u1", &stubAssistant{})

	_, err := alice.Summarize(ctx)
	assert.ErrorIs(t, err, ErrNoActiveChat)

	require.NoError(t, alice.Select("dm_u1_u2"))
	_, err = alice.Send(ctx, "hello", nil)
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return len(aliceRec.messages()) == 1 }, waitFor, tick)

	summary, err := alice.Summarize(ctx)
	require.NoError(t, err)
	assert.Equal(t, "summary of Alice: hello", summary)
	last, ok := aliceRec.last(models.EventSummary)
	require.True(t, ok)
	assert.Equal(t, summary, last.data)
}

func TestActiveChatCarriesThemeAndMute(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice, _ := e.client(t, "u1", nil)

	require.NoError(t, alice.Select("dm_u1_u2"))
	assert.Equal(t, models.DefaultTheme, alice.State().Active.Theme)

	require.NoError(t, e.users.SetChatTheme(ctx, "u1", "dm_u1_u2", "ocean"))
	_, err := e.users.ToggleMute(ctx, "u1", "dm_u1_u2")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		active := alice.State().Active
		return active != nil && active.Theme == "ocean" && active.Muted
	}, waitFor, tick)
}
