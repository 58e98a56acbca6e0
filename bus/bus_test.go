package bus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// S1: two-subscriber fan-out.
func TestTwoSubscriberFanOut(t *testing.T) {
	b := New()
	var h1Count, h2Count int32
	var gotH1, gotH2 Event

	var wg sync.WaitGroup
	wg.Add(2)
	b.Subscribe(EventAgentInvoked, HandlerFunc(func(_ context.Context, e Event) error {
		atomic.AddInt32(&h1Count, 1)
		gotH1 = e
		wg.Done()
		return nil
	}), NonBlocking)
	b.Subscribe(EventAgentInvoked, HandlerFunc(func(_ context.Context, e Event) error {
		atomic.AddInt32(&h2Count, 1)
		gotH2 = e
		wg.Done()
		return nil
	}), NonBlocking)

	evt := NewEvent(EventAgentInvoked, "s1", map[string]any{
		"agent": "a", "invoked_by": "u", "reason": "r",
	}, WithTraceID("t1"))
	b.Publish(context.Background(), evt)

	waitOrTimeout(t, &wg)

	require.Equal(t, int32(1), atomic.LoadInt32(&h1Count))
	require.Equal(t, int32(1), atomic.LoadInt32(&h2Count))
	require.Equal(t, "s1", gotH1.SessionID())
	require.Equal(t, "s1", gotH2.SessionID())

	stats := b.Stats()
	require.Equal(t, int64(1), stats.TotalEventsPublished)
	require.Equal(t, int64(0), stats.ErrorCount)
}

// Invariant 2: a subscriber error does not stop other subscribers, and the
// publisher observes no panic/abort.
func TestSubscriberErrorIsolated(t *testing.T) {
	b := New()
	var okCalled int32
	b.Subscribe(EventAgentInvoked, HandlerFunc(func(context.Context, Event) error {
		return errors.New("boom")
	}), NonBlocking)
	b.Subscribe(EventAgentInvoked, HandlerFunc(func(context.Context, Event) error {
		atomic.AddInt32(&okCalled, 1)
		return nil
	}), NonBlocking)

	evt := NewEvent(EventAgentInvoked, "s1", nil)
	err := b.PublishAndWait(context.Background(), evt)
	require.Error(t, err)
	require.Equal(t, int32(1), atomic.LoadInt32(&okCalled))
	require.Equal(t, int64(1), b.Stats().ErrorCount)
}

func TestNoSubscribersIsNotAnError(t *testing.T) {
	b := New()
	err := b.PublishAndWait(context.Background(), NewEvent(EventAgentInvoked, "s1", nil))
	require.NoError(t, err)
}

func TestPerSessionOrderingPreserved(t *testing.T) {
	b := New()
	var mu sync.Mutex
	var seen []int

	done := make(chan struct{})
	var count int32
	b.Subscribe(EventAgentInvoked, HandlerFunc(func(_ context.Context, e Event) error {
		v, _ := e.Get("seq")
		mu.Lock()
		seen = append(seen, v.(int))
		mu.Unlock()
		if atomic.AddInt32(&count, 1) == 20 {
			close(done)
		}
		return nil
	}), NonBlocking)

	for i := 0; i < 20; i++ {
		b.Publish(context.Background(), NewEvent(EventAgentInvoked, "s1", map[string]any{"seq": i}))
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for events")
	}

	mu.Lock()
	defer mu.Unlock()
	for i, v := range seen {
		require.Equal(t, i, v, "events out of publish order")
	}
}

func TestSubscriptionCloseStopsDelivery(t *testing.T) {
	b := New()
	var count int32
	sub := b.Subscribe(EventAgentInvoked, HandlerFunc(func(context.Context, Event) error {
		atomic.AddInt32(&count, 1)
		return nil
	}), NonBlocking)
	sub.Close()
	sub.Close() // idempotent

	b.PublishAndWait(context.Background(), NewEvent(EventAgentInvoked, "s1", nil))
	time.Sleep(10 * time.Millisecond)
	require.Equal(t, int32(0), atomic.LoadInt32(&count))
}

func waitOrTimeout(t *testing.T, wg *sync.WaitGroup) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for handlers")
	}
}
