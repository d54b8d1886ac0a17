package realtime

import (
	"context"
	"log"

	"github.com/redis/go-redis/v9"
)

// Channel is the Redis pub/sub channel change notices travel on. The
// payload is the topic name; subscribers re-query their own snapshot, so a
// lost notice degrades to the poll fallback rather than a torn view.
const Channel = "campuspass:changes"

// RedisNotifier publishes change notices after committed writes.
type RedisNotifier struct {
	client *redis.Client
}

// NewRedisNotifier creates a notifier.
func NewRedisNotifier(client *redis.Client) *RedisNotifier {
	return &RedisNotifier{client: client}
}

// Changed announces that the given topic's data changed. Notification is
// best-effort: the write already committed, and subscribers re-send on the
// poll interval anyway.
func (n *RedisNotifier) Changed(ctx context.Context, topic string) {
	if n == nil || n.client == nil {
		return
	}
	if err := n.client.Publish(ctx, Channel, topic).Err(); err != nil {
		log.Printf("change notify failed for %s: %v", topic, err)
	}
}

// NopNotifier discards notices; used in tests and the worker.
type NopNotifier struct{}

// Changed implements the notifier surface.
func (NopNotifier) Changed(context.Context, string) {}
