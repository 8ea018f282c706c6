package feed

import (
	"context"
	"strings"

	"chatwave-backend/internal/logger"

	"github.com/redis/go-redis/v9"
)

const channelPrefix = "chatwave:"

// RedisNotifier publishes signals on Redis channels so that every instance of
// the service sees writes made by the others.
type RedisNotifier struct {
	rdb    *redis.Client
	local  *LocalNotifier
	pubsub *redis.PubSub
	done   chan struct{}
}

// NewRedisNotifier subscribes to all chatwave channels and relays them to local listeners.
func NewRedisNotifier(ctx context.Context, rdb *redis.Client) (*RedisNotifier, error) {
	pubsub := rdb.PSubscribe(ctx, channelPrefix+"*")
	// Wait for the subscription to be confirmed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	n := &RedisNotifier{
		rdb:    rdb,
		local:  NewLocalNotifier(),
		pubsub: pubsub,
		done:   make(chan struct{}),
	}
	go n.relay()
	return n, nil
}

func (n *RedisNotifier) relay() {
	defer close(n.done)
	for msg := range n.pubsub.Channel() {
		topic := strings.TrimPrefix(msg.Channel, channelPrefix)
		_ = n.local.Publish(context.Background(), topic)
	}
}

func (n *RedisNotifier) Publish(ctx context.Context, topics ...string) error {
	pipe := n.rdb.Pipeline()
	for _, topic := range topics {
		pipe.Publish(ctx, channelPrefix+topic, "1")
	}
	if _, err := pipe.Exec(ctx); err != nil {
		logger.Warn().Err(err).Strs("topics", topics).Msg("redis publish failed")
		return err
	}
	return nil
}

func (n *RedisNotifier) Listen(topics ...string) (<-chan struct{}, func()) {
	return n.local.Listen(topics...)
}

func (n *RedisNotifier) Close() error {
	err := n.pubsub.Close()
	<-n.done
	return err
}
