package chat

import (
	"context"
	"sync"
	"time"

	"chatwave-backend/internal/feed"
	"chatwave-backend/internal/logger"
	"chatwave-backend/internal/models"
)

const (
	// DefaultSuggestDebounce is the quiet period after a message snapshot
	// before suggestions are requested.
	DefaultSuggestDebounce = time.Second
	// SuggestionContext is how many trailing messages are sent for suggestions.
	SuggestionContext = 5

	typingWriteTimeout = 5 * time.Second
)

// Sink receives everything the client pushes to its user.
type Sink func(event, chatID string, data interface{})

type Options struct {
	TypingIdle      time.Duration
	SuggestDebounce time.Duration
}

// ActiveChat describes the open conversation to the user.
type ActiveChat struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl"`
	Theme     string `json:"theme"`
	Muted     bool   `json:"muted"`
}

// State is a copy of what the client currently shows.
type State struct {
	Self   models.User
	Users  []models.User
	Rooms  []models.RoomSummary
	DMs    []models.DirectMessageSummary
	Active *ActiveChat
}

// Client is the sync core for one signed-in user. It keeps the roster live,
// owns at most one open conversation and relays composer input into typing
// signals and reply suggestions. Start it once and Close it on sign-out.
type Client struct {
	userID   string
	users    UserDirectory
	store    ConversationStore
	notifier feed.Notifier
	assist   Assistant
	sink     Sink
	opts     Options

	ctx    context.Context
	cancel context.CancelFunc
	subs   []feed.Unsubscribe

	// opMu serializes Select, Leave and Close.
	opMu sync.Mutex

	mu        sync.Mutex
	self      models.User
	visible   []models.User
	rooms     []models.RoomSummary
	liveDMs   []models.Conversation
	dms       []models.DirectMessageSummary
	active    *Session
	activeVM  *ActiveChat
	typing    *TypingCoordinator
	delivered map[string]int
	closed    bool

	suggest *Debouncer
}

func NewClient(userID string, users UserDirectory, store ConversationStore, n feed.Notifier, assist Assistant, sink Sink, opts Options) *Client {
	if opts.TypingIdle <= 0 {
		opts.TypingIdle = DefaultTypingIdle
	}
	if opts.SuggestDebounce <= 0 {
		opts.SuggestDebounce = DefaultSuggestDebounce
	}
	if sink == nil {
		sink = func(string, string, interface{}) {}
	}
	return &Client{
		userID:    userID,
		users:     users,
		store:     store,
		notifier:  n,
		assist:    assist,
		sink:      sink,
		opts:      opts,
		delivered: make(map[string]int),
		suggest:   NewDebouncer(opts.SuggestDebounce),
	}
}

func (c *Client) UserID() string {
	return c.userID
}

// Start loads the user and subscribes to users, rooms and DMs. It fails with
// ErrUnknownUser when the user has no record.
func (c *Client) Start(ctx context.Context) error {
	all, err := c.users.ListUsers(ctx)
	if err != nil {
		return err
	}
	if _, ok := findUser(all, c.userID); !ok {
		return ErrUnknownUser
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.applyUsers(all)

	c.subs = append(c.subs,
		feed.Watch(c.ctx, c.notifier, []string{feed.TopicUsers},
			c.users.ListUsers, c.applyUsers, c.subscriptionError("users")),
		feed.Watch(c.ctx, c.notifier, []string{feed.TopicConversations},
			func(ctx context.Context) ([]models.RoomSummary, error) {
				return c.store.ListRooms(ctx, c.userID)
			},
			c.applyRooms, c.subscriptionError("rooms")),
		feed.Watch(c.ctx, c.notifier, []string{feed.TopicConversations},
			func(ctx context.Context) ([]models.Conversation, error) {
				return c.store.ListDirectConversations(ctx, c.userID)
			},
			c.applyDirectMessages, c.subscriptionError("dms")),
	)
	return nil
}

// Close detaches every subscription, stops typing and drops pending suggestions.
func (c *Client) Close() {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	session, typing := c.active, c.typing
	c.active, c.activeVM, c.typing = nil, nil, nil
	c.mu.Unlock()

	c.suggest.Cancel()
	if typing != nil {
		typing.Stop()
	}
	if session != nil {
		session.Close()
	}
	if c.cancel != nil {
		c.cancel()
	}
	for _, unsub := range c.subs {
		unsub()
	}
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := State{
		Self:  c.self,
		Users: append([]models.User(nil), c.visible...),
		Rooms: append([]models.RoomSummary(nil), c.rooms...),
		DMs:   append([]models.DirectMessageSummary(nil), c.dms...),
	}
	if c.activeVM != nil {
		vm := *c.activeVM
		st.Active = &vm
	}
	return st
}

// Select opens chatID, which must be one of the user's rooms or DM entries.
// The previous conversation is closed first.
func (c *Client) Select(chatID string) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return context.Canceled
	}
	target, vm, ok := c.lookup(chatID)
	if !ok {
		c.mu.Unlock()
		return ErrUnknownChat
	}
	var session *Session
	session = NewSession(target, c.store, c.notifier, SessionCallbacks{
		OnMessages: func(id string, messages []models.Message) { c.onMessages(session, id, messages) },
		OnTyping:   func(id string, typists []models.User) { c.onTyping(session, id, typists) },
		OnError:    c.emitError,
	})
	prev, prevTyping := c.active, c.typing
	c.active, c.activeVM = session, vm
	c.typing = NewTypingCoordinator(c.opts.TypingIdle, c.typingPublisher(chatID))
	self, known := c.self, c.visible
	c.mu.Unlock()

	c.suggest.Cancel()
	if prevTyping != nil {
		prevTyping.Stop()
	}
	if prev != nil {
		prev.Close()
	}

	c.sink(models.EventActive, chatID, vm)
	c.sink(models.EventSuggestions, chatID, []string{})

	if err := session.Open(c.ctx, self, known); err != nil {
		c.mu.Lock()
		if c.active == session {
			c.active, c.activeVM, c.typing = nil, nil, nil
		}
		c.mu.Unlock()
		session.Close()
		c.sink(models.EventActive, "", nil)
		return err
	}
	return nil
}

// Leave closes the open conversation, if any.
func (c *Client) Leave() {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	session, typing := c.active, c.typing
	c.active, c.activeVM, c.typing = nil, nil, nil
	c.mu.Unlock()

	c.suggest.Cancel()
	if typing != nil {
		typing.Stop()
	}
	if session != nil {
		session.Close()
		c.sink(models.EventActive, "", nil)
	}
}

// Send posts text and an optional file to the open conversation as the user.
func (c *Client) Send(ctx context.Context, text string, file *models.Attachment) (*models.Message, error) {
	c.mu.Lock()
	session, typing, self := c.active, c.typing, c.self
	c.mu.Unlock()
	if session == nil {
		return nil, ErrNoActiveChat
	}

	if typing != nil {
		typing.Sent()
	}
	c.suggest.Cancel()
	c.sink(models.EventSuggestions, session.ChatID(), []string{})

	return c.store.Send(ctx, session.ChatID(), models.MessageInput{
		UserID:     self.ID,
		UserName:   self.Name,
		UserAvatar: self.AvatarURL,
		Text:       text,
	}, file)
}

func (c *Client) Edit(ctx context.Context, messageID, text string) (*models.Message, error) {
	session, err := c.activeSession()
	if err != nil {
		return nil, err
	}
	return c.store.Edit(ctx, c.userID, session.ChatID(), messageID, text)
}

func (c *Client) Delete(ctx context.Context, messageID string) error {
	session, err := c.activeSession()
	if err != nil {
		return err
	}
	return c.store.Delete(ctx, c.userID, session.ChatID(), messageID)
}

// ToggleStar flips the starred flag of a message in the open conversation.
func (c *Client) ToggleStar(ctx context.Context, messageID string) (bool, error) {
	session, err := c.activeSession()
	if err != nil {
		return false, err
	}
	msg, ok := session.Message(messageID)
	if !ok {
		return false, ErrUnknownMessage
	}
	return c.store.ToggleStar(ctx, c.userID, session.ChatID(), messageID, msg.Starred)
}

// InputChanged reports the composer text of the open conversation.
func (c *Client) InputChanged(text string) {
	c.mu.Lock()
	typing := c.typing
	c.mu.Unlock()
	if typing != nil {
		typing.InputChanged(text)
	}
}

// Summarize summarizes the visible messages of the open conversation and
// pushes the result as well as returning it.
func (c *Client) Summarize(ctx context.Context) (string, error) {
	session, err := c.activeSession()
	if err != nil {
		return "", err
	}
	if c.assist == nil {
		return "", ErrNoAssistant
	}
	summary := c.assist.SummarizeChat(ctx, models.Texts(session.Messages()))
	c.sink(models.EventSummary, session.ChatID(), summary)
	return summary, nil
}

func (c *Client) activeSession() (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return nil, ErrNoActiveChat
	}
	return c.active, nil
}

// lookup must be called with c.mu held.
func (c *Client) lookup(chatID string) (Target, *ActiveChat, bool) {
	for _, r := range c.rooms {
		if r.ID == chatID {
			return Target{ID: r.ID, Type: models.ConversationRoom}, &ActiveChat{
				ID:        r.ID,
				Type:      models.ConversationRoom,
				Name:      r.Name,
				AvatarURL: r.AvatarURL,
				Theme:     c.self.ThemeFor(r.ID),
				Muted:     c.self.HasMuted(r.ID),
			}, true
		}
	}
	for _, d := range c.dms {
		if d.ID == chatID {
			return Target{ID: d.ID, Type: models.ConversationDM, UserIDs: d.UserIDs}, &ActiveChat{
				ID:        d.ID,
				Type:      models.ConversationDM,
				Name:      d.OtherUserName,
				AvatarURL: d.OtherUserAvatar,
				Theme:     c.self.ThemeFor(d.ID),
				Muted:     c.self.HasMuted(d.ID),
			}, true
		}
	}
	return Target{}, nil, false
}

func (c *Client) applyUsers(all []models.User) {
	self, ok := findUser(all, c.userID)
	if !ok {
		c.emitError("", "users", ErrUnknownUser)
		return
	}

	c.mu.Lock()
	c.self = self
	c.visible = VisibleUsers(self, all)
	c.dms = MergeDirectMessages(c.userID, c.visible, c.liveDMs)
	if c.activeVM != nil {
		c.activeVM.Theme = self.ThemeFor(c.activeVM.ID)
		c.activeVM.Muted = self.HasMuted(c.activeVM.ID)
	}
	visible, dms, session := c.visible, c.dms, c.active
	c.mu.Unlock()

	c.sink(models.EventSelf, "", self)
	c.sink(models.EventUsers, "", visible)
	c.sink(models.EventDMs, "", dms)
	if session != nil {
		session.UpdateViewer(self, visible)
	}
}

func (c *Client) applyRooms(rooms []models.RoomSummary) {
	SortRooms(rooms)

	c.mu.Lock()
	c.rooms = rooms
	due := c.deliveryDue(roomUnread(rooms))
	c.mu.Unlock()

	c.sink(models.EventRooms, "", rooms)
	c.markDelivered(due)
}

func (c *Client) applyDirectMessages(live []models.Conversation) {
	c.mu.Lock()
	c.liveDMs = live
	c.dms = MergeDirectMessages(c.userID, c.visible, live)
	dms := c.dms
	due := c.deliveryDue(dmUnread(dms))
	c.mu.Unlock()

	c.sink(models.EventDMs, "", dms)
	c.markDelivered(due)
}

// deliveryDue returns the conversations whose unread counter changed to a
// nonzero value and that are not open. Must be called with c.mu held.
func (c *Client) deliveryDue(unread map[string]int) []string {
	var due []string
	for id, n := range unread {
		if n == 0 {
			delete(c.delivered, id)
			continue
		}
		if c.delivered[id] == n || (c.active != nil && c.active.ChatID() == id) {
			continue
		}
		c.delivered[id] = n
		due = append(due, id)
	}
	return due
}

func (c *Client) markDelivered(chatIDs []string) {
	for _, id := range chatIDs {
		if _, err := c.store.MarkDelivered(c.ctx, id, c.userID); err != nil && c.ctx.Err() == nil {
			logger.Warn().Err(err).Str("chat_id", id).Msg("mark delivered failed")
		}
	}
}

func (c *Client) onMessages(session *Session, chatID string, messages []models.Message) {
	c.mu.Lock()
	current := c.active == session
	c.mu.Unlock()
	if !current {
		return
	}

	c.sink(models.EventMessages, chatID, messages)
	c.scheduleSuggestions(session, chatID, messages)
}

func (c *Client) onTyping(session *Session, chatID string, typists []models.User) {
	c.mu.Lock()
	current := c.active == session
	c.mu.Unlock()
	if current {
		c.sink(models.EventTyping, chatID, typists)
	}
}

// scheduleSuggestions asks for replies once the conversation has been quiet
// for a moment. Nothing is suggested in reply to the user's own message.
func (c *Client) scheduleSuggestions(session *Session, chatID string, messages []models.Message) {
	if c.assist == nil {
		return
	}
	if len(messages) == 0 || messages[len(messages)-1].UserID == c.userID {
		c.suggest.Cancel()
		c.sink(models.EventSuggestions, chatID, []string{})
		return
	}

	tail := messages
	if len(tail) > SuggestionContext {
		tail = tail[len(tail)-SuggestionContext:]
	}
	texts := models.Texts(tail)
	c.suggest.Trigger(func() {
		suggestions := c.assist.SuggestReplies(c.ctx, texts)
		c.mu.Lock()
		current := c.active == session && !c.closed
		c.mu.Unlock()
		if current && c.ctx.Err() == nil {
			c.sink(models.EventSuggestions, chatID, suggestions)
		}
	})
}

func (c *Client) typingPublisher(chatID string) func(bool) {
	return func(typing bool) {
		ctx, cancel := context.WithTimeout(context.Background(), typingWriteTimeout)
		defer cancel()
		if err := c.store.SetTyping(ctx, chatID, c.userID, typing); err != nil {
			logger.Warn().Err(err).Str("chat_id", chatID).Bool("typing", typing).Msg("typing update failed")
		}
	}
}

func (c *Client) subscriptionError(op string) func(error) {
	return func(err error) {
		logger.Warn().Err(err).Str("user_id", c.userID).Str("op", op).Msg("subscription error")
		c.emitError("", op, err)
	}
}

func (c *Client) emitError(chatID, op string, err error) {
	c.sink(models.EventError, chatID, op+": "+err.Error())
}

func findUser(users []models.User, id string) (models.User, bool) {
	for _, u := range users {
		if u.ID == id {
			return u, true
		}
	}
	return models.User{}, false
}

func roomUnread(rooms []models.RoomSummary) map[string]int {
	out := make(map[string]int, len(rooms))
	for _, r := range rooms {
		out[r.ID] = r.UnreadCount
	}
	return out
}

func dmUnread(dms []models.DirectMessageSummary) map[string]int {
	out := make(map[string]int, len(dms))
	for _, d := range dms {
		out[d.ID] = d.UnreadCount
	}
	return out
}
