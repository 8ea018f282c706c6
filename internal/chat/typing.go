package chat

import (
	"sync"
	"time"
)

// DefaultTypingIdle is how long after the last keystroke typing counts as stopped.
const DefaultTypingIdle = 1500 * time.Millisecond

// TypingCoordinator turns input changes into "started" and "stopped" typing
// signals for one conversation.
type TypingCoordinator struct {
	publish func(typing bool)
	idle    *Debouncer

	mu     sync.Mutex
	typing bool
}

func NewTypingCoordinator(idle time.Duration, publish func(typing bool)) *TypingCoordinator {
	if idle <= 0 {
		idle = DefaultTypingIdle
	}
	return &TypingCoordinator{publish: publish, idle: NewDebouncer(idle)}
}

// InputChanged reports the current composer text. Empty text stops typing
// at once; any other text starts typing if needed and re-arms the idle timer.
func (t *TypingCoordinator) InputChanged(text string) {
	if text == "" {
		t.Stop()
		return
	}

	t.mu.Lock()
	if !t.typing {
		t.typing = true
		t.publish(true)
	}
	t.mu.Unlock()

	t.idle.Trigger(t.expire)
}

// Sent is called after a message went out.
func (t *TypingCoordinator) Sent() {
	t.Stop()
}

// Stop cancels the idle timer and publishes "stopped" if typing was on.
func (t *TypingCoordinator) Stop() {
	t.idle.Cancel()
	t.expire()
}

func (t *TypingCoordinator) expire() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.typing {
		t.typing = false
		t.publish(false)
	}
}

func (t *TypingCoordinator) Typing() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.typing
}
