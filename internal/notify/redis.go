package notify

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisChannelPrefix namespaces per-user change channels.
const RedisChannelPrefix = "storefront:cart:changes:"

// RedisNotifier uses Redis pub/sub with one channel per user.
// The client is owned by the caller.
type RedisNotifier struct {
	client *redis.Client
	log    logrus.FieldLogger

	mu     sync.Mutex
	subs   map[string]*redisSubscription
	closed bool
}

type redisSubscription struct {
	*dispatcher
	pubsub *redis.PubSub
}

// NewRedisNotifier creates a notifier on an existing client.
func NewRedisNotifier(client *redis.Client, log logrus.FieldLogger) *RedisNotifier {
	return &RedisNotifier{
		client: client,
		log:    log,
		subs:   make(map[string]*redisSubscription),
	}
}

// Channel returns the pub/sub channel for userID.
func Channel(userID string) string {
	return RedisChannelPrefix + userID
}

// Subscribe opens a dedicated pub/sub connection and waits for the
// subscription to be confirmed before returning.
func (n *RedisNotifier) Subscribe(ctx context.Context, userID string, onChange func()) (Subscription, error) {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil, ErrClosed
	}
	n.mu.Unlock()

	pubsub := n.client.Subscribe(ctx, Channel(userID))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("redis subscribe failed: %w", err)
	}

	sub := &redisSubscription{pubsub: pubsub}
	sub.dispatcher = newDispatcher(userID, onChange, func() {
		if err := pubsub.Close(); err != nil {
			n.log.WithError(err).Debug("redis pubsub close")
		}
		n.mu.Lock()
		delete(n.subs, sub.id)
		n.mu.Unlock()
	})

	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		sub.Close()
		return nil, ErrClosed
	}
	n.subs[sub.id] = sub
	n.mu.Unlock()

	go func() {
		for range pubsub.Channel() {
			sub.signal()
		}
	}()

	n.log.WithFields(logrus.Fields{"user_id": userID, "subscription": sub.id}).Debug("redis subscription opened")
	return sub, nil
}

// Publish sends a change signal on the user's channel.
func (n *RedisNotifier) Publish(ctx context.Context, userID string) error {
	if err := n.client.Publish(ctx, Channel(userID), "changed").Err(); err != nil {
		return fmt.Errorf("redis publish failed: %w", err)
	}
	return nil
}

// Close closes every subscription. The shared client stays open.
func (n *RedisNotifier) Close() error {
	n.mu.Lock()
	n.closed = true
	subs := make([]*redisSubscription, 0, len(n.subs))
	for _, s := range n.subs {
		subs = append(subs, s)
	}
	n.mu.Unlock()

	for _, s := range subs {
		s.Close()
	}
	return nil
}

var _ Notifier = (*RedisNotifier)(nil)
