// Package realtime keeps role dashboards synchronized. Each subscription
// is a stream of full snapshots: on every change notice the hub re-queries
// the complete filtered result set and pushes it as one message, so a
// viewer replaces its state atomically and never renders a torn view.
package realtime

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Fetch produces the full current result set for one subscription.
type Fetch func(ctx context.Context) (any, error)

// Sink receives snapshots. Implementations wrap a websocket connection;
// tests record in memory.
type Sink interface {
	Send(ctx context.Context, snap Snapshot) error
}

// Snapshot is one full result set. Seq increases per subscription, so a
// client can assert it never applies snapshots out of order.
type Snapshot struct {
	View string    `json:"view"`
	Seq  int64     `json:"seq"`
	At   time.Time `json:"at"`
	Data any       `json:"data"`
}

type subscriber struct {
	topics  map[string]struct{}
	trigger chan struct{}
}

// Hub fans change notices out to dashboard subscriptions.
type Hub struct {
	poll time.Duration

	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

// NewHub creates a hub. poll is the fallback re-send interval used when no
// change notices arrive (or Redis is down).
func NewHub(poll time.Duration) *Hub {
	if poll <= 0 {
		poll = 30 * time.Second
	}
	return &Hub{poll: poll, subs: make(map[*subscriber]struct{})}
}

// Run listens on the Redis change channel and broadcasts topics until ctx
// is cancelled. Safe to skip entirely; subscriptions then rely on polling.
func (h *Hub) Run(ctx context.Context, client *redis.Client) {
	ps := client.Subscribe(ctx, Channel)
	defer ps.Close()
	for {
		select {
		case msg, ok := <-ps.Channel():
			if !ok {
				return
			}
			h.Broadcast(msg.Payload)
		case <-ctx.Done():
			return
		}
	}
}

// Broadcast wakes every subscription on the topic. Triggers are coalesced:
// a subscriber mid-snapshot picks up at most one pending wakeup, then
// re-queries, so a burst of commits collapses into one fresh result set.
func (h *Hub) Broadcast(topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		if _, ok := sub.topics[topic]; !ok {
			continue
		}
		select {
		case sub.trigger <- struct{}{}:
		default:
		}
	}
}

// Subscribe streams snapshots for one dashboard until ctx is cancelled or
// the sink fails. The subscription wakes on any of the listed topics (a
// student view spans both requests and movements). The first snapshot is
// sent immediately. All sends happen on this goroutine, which is what
// guarantees in-order delivery within the subscription.
func (h *Hub) Subscribe(ctx context.Context, view string, topics []string, fetch Fetch, sink Sink) error {
	sub := &subscriber{topics: make(map[string]struct{}, len(topics)), trigger: make(chan struct{}, 1)}
	for _, t := range topics {
		sub.topics[t] = struct{}{}
	}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.subs, sub)
		h.mu.Unlock()
	}()

	ticker := time.NewTicker(h.poll)
	defer ticker.Stop()

	var seq int64
	send := func() error {
		data, err := fetch(ctx)
		if err != nil {
			// Transient store failure: keep the subscription, the next
			// trigger or tick retries. The viewer keeps its last snapshot.
			log.Printf("snapshot fetch failed for %s: %v", view, err)
			return nil
		}
		seq++
		return sink.Send(ctx, Snapshot{View: view, Seq: seq, At: time.Now().UTC(), Data: data})
	}

	if err := send(); err != nil {
		return err
	}
	for {
		select {
		case <-sub.trigger:
			if err := send(); err != nil {
				return err
			}
		case <-ticker.C:
			if err := send(); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
