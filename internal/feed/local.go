package feed

import (
	"context"
	"sync"
)

type listener struct {
	ch chan struct{}
}

// LocalNotifier fans signals out to listeners of this process.
type LocalNotifier struct {
	mu        sync.RWMutex
	listeners map[string]map[*listener]struct{}
}

func NewLocalNotifier() *LocalNotifier {
	return &LocalNotifier{listeners: make(map[string]map[*listener]struct{})}
}

func (n *LocalNotifier) Publish(_ context.Context, topics ...string) error {
	n.mu.RLock()
	defer n.mu.RUnlock()

	for _, topic := range topics {
		for l := range n.listeners[topic] {
			select {
			case l.ch <- struct{}{}:
			default:
				// a signal is already pending
			}
		}
	}
	return nil
}

func (n *LocalNotifier) Listen(topics ...string) (<-chan struct{}, func()) {
	l := &listener{ch: make(chan struct{}, 1)}

	n.mu.Lock()
	for _, topic := range topics {
		if _, ok := n.listeners[topic]; !ok {
			n.listeners[topic] = make(map[*listener]struct{})
		}
		n.listeners[topic][l] = struct{}{}
	}
	n.mu.Unlock()

	var once sync.Once
	return l.ch, func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			for _, topic := range topics {
				delete(n.listeners[topic], l)
				if len(n.listeners[topic]) == 0 {
					delete(n.listeners, topic)
				}
			}
		})
	}
}
