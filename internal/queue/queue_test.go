package queue

import (
	"context"
	"testing"
	"time"
)

func TestInMemoryPublishConsume(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	q := NewInMemory(4)
	if err := q.Publish(ctx, Message{Type: "movement", Body: []byte(`{"id":"1"}`)}); err != nil {
		t.Fatalf("Publish error: %v", err)
	}

	out, err := q.Consume(ctx)
	if err != nil {
		t.Fatalf("Consume error: %v", err)
	}
	select {
	case msg := <-out:
		if msg.Type != "movement" || string(msg.Body) != `{"id":"1"}` {
			t.Fatalf("unexpected message: %+v", msg)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for message")
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	t.Parallel()

	msg := Message{Type: "movement", Body: []byte(`{"enrollment_id":"A|B"}`)}
	got := deserialize(serialize(msg))
	if got.Type != msg.Type || string(got.Body) != string(msg.Body) {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}
