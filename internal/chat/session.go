package chat

import (
	"context"
	"sync"

	"chatwave-backend/internal/feed"
	"chatwave-backend/internal/logger"
	"chatwave-backend/internal/models"
)

// Target identifies the conversation a session is opened on.
type Target struct {
	ID   string
	Type string
	// UserIDs is set for DMs: the viewer and the other user.
	UserIDs [2]string
}

type SessionCallbacks struct {
	OnMessages func(chatID string, messages []models.Message)
	OnTyping   func(chatID string, typists []models.User)
	OnError    func(chatID, op string, err error)
}

// Session is one open conversation: its live message list, its typing
// indicator and read-state reconciliation for the viewer.
type Session struct {
	target   Target
	store    ConversationStore
	notifier feed.Notifier
	cb       SessionCallbacks

	cancel context.CancelFunc
	unsubs []feed.Unsubscribe

	// deliverMu keeps deliveries of this session in order.
	deliverMu sync.Mutex
	closed    bool

	mu        sync.Mutex
	self      models.User
	known     []models.User
	raw       []models.Message
	typingIDs []string
}

func NewSession(target Target, store ConversationStore, n feed.Notifier, cb SessionCallbacks) *Session {
	return &Session{target: target, store: store, notifier: n, cb: cb}
}

func (s *Session) ChatID() string {
	return s.target.ID
}

// Open makes sure a DM record exists, subscribes to messages and typing and
// reconciles read state once. self and known are the viewer and the users
// typing ids are resolved against.
func (s *Session) Open(ctx context.Context, self models.User, known []models.User) error {
	s.mu.Lock()
	s.self = self
	s.known = known
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	chatID := s.target.ID

	if s.target.Type == models.ConversationDM {
		if _, err := s.store.EnsureDirectConversation(ctx, chatID, s.target.UserIDs); err != nil {
			cancel()
			return err
		}
	}

	s.unsubs = append(s.unsubs, feed.Watch(ctx, s.notifier,
		[]string{feed.MessagesTopic(chatID)},
		func(ctx context.Context) ([]models.Message, error) {
			return s.store.ListMessages(ctx, chatID)
		},
		func(messages []models.Message) {
			s.mu.Lock()
			s.raw = messages
			s.mu.Unlock()
			s.deliverMessages()
			s.reconcile(ctx, messages)
		},
		s.errorHandler("messages"),
	))

	s.unsubs = append(s.unsubs, feed.Watch(ctx, s.notifier,
		[]string{feed.MetaTopic(chatID)},
		func(ctx context.Context) ([]string, error) {
			return s.store.TypingIDs(ctx, chatID)
		},
		func(ids []string) {
			s.mu.Lock()
			s.typingIDs = ids
			s.mu.Unlock()
			s.deliverTyping()
		},
		s.errorHandler("typing"),
	))

	s.markRead(ctx)
	return nil
}

// UpdateViewer re-filters the current state after the viewer's record or the
// user list changed.
func (s *Session) UpdateViewer(self models.User, known []models.User) {
	s.mu.Lock()
	s.self = self
	s.known = known
	s.mu.Unlock()

	s.deliverMessages()
	s.deliverTyping()
}

// Messages returns the visible messages of the last snapshot.
func (s *Session) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return VisibleMessages(s.self, s.raw)
}

// Message looks a message up in the last snapshot.
func (s *Session) Message(id string) (models.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.raw {
		if m.ID == id {
			return m, true
		}
	}
	return models.Message{}, false
}

// Close detaches both subscriptions. No callback runs after it returns.
func (s *Session) Close() {
	if s.cancel != nil {
		s.cancel()
	}
	for _, unsub := range s.unsubs {
		unsub()
	}
	s.deliverMu.Lock()
	s.closed = true
	s.deliverMu.Unlock()
}

func (s *Session) deliverMessages() {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()
	if s.closed || s.cb.OnMessages == nil {
		return
	}
	s.cb.OnMessages(s.target.ID, s.Messages())
}

func (s *Session) deliverTyping() {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()
	if s.closed || s.cb.OnTyping == nil {
		return
	}

	s.mu.Lock()
	typists := make([]models.User, 0, len(s.typingIDs))
	for _, id := range s.typingIDs {
		if id == s.self.ID {
			continue
		}
		// Ids that are not known yet are skipped until the next snapshot.
		for _, u := range s.known {
			if u.ID == id {
				typists = append(typists, u)
				break
			}
		}
	}
	s.mu.Unlock()

	s.cb.OnTyping(s.target.ID, typists)
}

// reconcile marks the conversation read again when a snapshot shows unread
// messages from others. The store does nothing when the counter is zero.
func (s *Session) reconcile(ctx context.Context, messages []models.Message) {
	s.mu.Lock()
	selfID := s.self.ID
	s.mu.Unlock()
	for _, m := range messages {
		if m.UserID != selfID && m.Status != models.StatusRead {
			s.markRead(ctx)
			return
		}
	}
}

func (s *Session) markRead(ctx context.Context) {
	s.mu.Lock()
	selfID := s.self.ID
	s.mu.Unlock()
	if _, err := s.store.MarkRead(ctx, s.target.ID, selfID); err != nil && ctx.Err() == nil {
		s.errorHandler("mark read")(err)
	}
}

func (s *Session) errorHandler(op string) func(error) {
	return func(err error) {
		logger.Warn().Err(err).Str("chat_id", s.target.ID).Str("op", op).Msg("session error")
		if s.cb.OnError != nil {
			s.cb.OnError(s.target.ID, op, err)
		}
	}
}
