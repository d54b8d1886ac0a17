package realtime

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// recordingSink collects snapshots and signals each arrival.
type recordingSink struct {
	got  chan Snapshot
	fail bool
}

func (s *recordingSink) Send(_ context.Context, snap Snapshot) error {
	if s.fail {
		return context.Canceled
	}
	s.got <- snap
	return nil
}

func TestSubscribeSendsInitialSnapshot(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(time.Hour)
	sink := &recordingSink{got: make(chan Snapshot, 8)}
	var state atomic.Int64

	go func() {
		_ = hub.Subscribe(ctx, "guard-movements", []string{"movements"}, func(context.Context) (any, error) {
			return state.Load(), nil
		}, sink)
	}()

	snap := waitSnap(t, sink.got)
	require.Equal(t, int64(1), snap.Seq)
	require.Equal(t, "guard-movements", snap.View)
	require.Equal(t, int64(0), snap.Data)
}

func TestBroadcastDeliversFullCurrentState(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(time.Hour)
	sink := &recordingSink{got: make(chan Snapshot, 8)}
	var state atomic.Int64

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = hub.Subscribe(ctx, "guard-movements", []string{"movements"}, func(context.Context) (any, error) {
			return state.Load(), nil
		}, sink)
	}()
	first := waitSnap(t, sink.got)

	// Commit then notify, as the services do.
	state.Store(7)
	hub.Broadcast("movements")

	snap := waitSnap(t, sink.got)
	require.Equal(t, int64(7), snap.Data, "snapshot must be the re-queried current state")
	require.Greater(t, snap.Seq, first.Seq, "in-order delivery within one subscription")

	// A different topic must not wake this subscription.
	hub.Broadcast("requests")
	select {
	case extra := <-sink.got:
		t.Fatalf("unexpected snapshot for foreign topic: %+v", extra)
	case <-time.After(50 * time.Millisecond):
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("subscription did not tear down on cancel")
	}
}

func TestSubscribeStopsWhenSinkFails(t *testing.T) {
	t.Parallel()

	hub := NewHub(time.Hour)
	sink := &recordingSink{got: make(chan Snapshot, 1), fail: true}

	err := hub.Subscribe(context.Background(), "guard-movements", []string{"movements"},
		func(context.Context) (any, error) { return nil, nil }, sink)
	require.Error(t, err)

	// The dead subscription must be gone.
	hub.mu.Lock()
	defer hub.mu.Unlock()
	require.Empty(t, hub.subs)
}

func waitSnap(t *testing.T, ch <-chan Snapshot) Snapshot {
	t.Helper()
	select {
	case snap := <-ch:
		return snap
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for snapshot")
		return Snapshot{}
	}
}
