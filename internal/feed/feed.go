// Package feed turns store writes into change notifications and notifications
// into full-snapshot subscriptions.
package feed

import (
	"context"
	"sync"
)

const (
	TopicUsers         = "users"
	TopicConversations = "conversations"
)

// MessagesTopic changes whenever a message of the conversation is written.
func MessagesTopic(chatID string) string {
	return "chat:" + chatID + ":messages"
}

// MetaTopic changes whenever the conversation's typing set changes.
func MetaTopic(chatID string) string {
	return "chat:" + chatID + ":meta"
}

// Notifier carries "something under this topic changed" signals. Signals have
// no payload; listeners re-read whatever they are interested in.
type Notifier interface {
	Publish(ctx context.Context, topics ...string) error
	// Listen returns a channel that receives at least one signal after any of the
	// topics is published. Bursts are coalesced. The returned func stops listening.
	Listen(topics ...string) (<-chan struct{}, func())
}

// Unsubscribe detaches a subscription. After it returns no callback of that
// subscription runs. It must not be called from inside the subscription's own
// callbacks; cancel the context passed to Watch instead.
type Unsubscribe func()

// Watch delivers a full snapshot from fetch right away and again after every
// change signal on topics. Within one subscription snapshots are delivered one
// at a time in the order they were read.
func Watch[T any](
	ctx context.Context,
	n Notifier,
	topics []string,
	fetch func(context.Context) (T, error),
	onSnapshot func(T),
	onError func(error),
) Unsubscribe {
	ctx, cancel := context.WithCancel(ctx)
	// Listen before the first read so no change between the two is lost.
	signals, stop := n.Listen(topics...)
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer stop()

		deliver := func() bool {
			snapshot, err := fetch(ctx)
			if ctx.Err() != nil {
				return false
			}
			if err != nil {
				if onError != nil {
					onError(err)
				}
				return true
			}
			onSnapshot(snapshot)
			return true
		}

		if !deliver() {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-signals:
				if !deliver() {
					return
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}
