// Package bus implements the publish/subscribe spine every other subsystem
// in the control plane attaches to (spec §2, §4.A). It generalizes the
// teacher's synchronous fail-fast bus (runtime/agent/hooks.Bus) into the
// spec's stronger contract: concurrent fan-out, per-subscriber error
// isolation, a bounded worker pool for blocking handlers, and an explicit
// PublishAndWait mode alongside fire-and-forget Publish.
package bus

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/subagentctl/subagentctl/telemetry"
)

// Mode declares how a subscriber's handler should be scheduled.
// NonBlocking handlers are assumed to complete quickly (in-memory counters,
// validation) and run on their own per-subscription goroutine with no
// concurrency cap. Blocking handlers perform I/O (file flush, DB insert,
// snapshot write) and are additionally gated by the bus's bounded worker
// pool so a burst of slow subscribers cannot exhaust OS threads.
type Mode int

const (
	NonBlocking Mode = iota
	Blocking
)

// Handler reacts to a published Event. A non-nil return increments the
// bus's error_count and is reported to PublishAndWait callers; it never
// affects delivery to other subscribers (spec invariant 2).
type Handler interface {
	HandleEvent(ctx context.Context, e Event) error
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx context.Context, e Event) error

// HandleEvent calls f.
func (f HandlerFunc) HandleEvent(ctx context.Context, e Event) error { return f(ctx, e) }

// Subscription represents an active registration. Close is idempotent and
// safe to call concurrently or via defer.
type Subscription interface {
	Close()
}

// Stats summarizes bus activity for dashboards and tests (spec S1).
type Stats struct {
	TotalEventsPublished int64
	ErrorCount           int64
	HandlersByType       map[EventType]int
}

// Bus is the fan-out contract described in spec §4.A.
type Bus interface {
	// Subscribe registers h for eventType (or WildcardEventType for all
	// types) and returns a Subscription that can be closed to unregister.
	Subscribe(eventType EventType, h Handler, mode Mode) Subscription
	// Publish hands the event to every matching subscriber and returns
	// immediately without waiting for any handler to run.
	Publish(ctx context.Context, e Event)
	// PublishAndWait hands the event to every matching subscriber and
	// blocks until all of them have processed it, returning the first
	// handler error encountered (if any). Subscribers that error do not
	// prevent others from running.
	PublishAndWait(ctx context.Context, e Event) error
	// Stats returns a snapshot of bus-wide counters.
	Stats() Stats
	// Clear removes every subscription and resets counters; for test
	// isolation.
	Clear()
}

type queuedEvent struct {
	ctx  context.Context
	evt  Event
	done chan error // nil for fire-and-forget
}

type subscription struct {
	bus       *bus
	eventType EventType
	queue     chan queuedEvent
	closeOnce sync.Once
	closed    chan struct{}
}

func (s *subscription) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.bus.mu.Lock()
		s.bus.removeLocked(s)
		s.bus.mu.Unlock()
	})
}

type bus struct {
	mu       sync.RWMutex
	byType   map[EventType][]*subscription
	wildcard []*subscription

	sem chan struct{} // bounds concurrent Blocking handler executions

	log telemetry.Logger

	totalPublished int64
	errorCount     int64

	queueSize int
}

// Option configures a Bus at construction time.
type Option func(*bus)

// WithLogger injects a telemetry.Logger for handler-error reporting.
func WithLogger(l telemetry.Logger) Option {
	return func(b *bus) { b.log = l }
}

// WithWorkerPoolSize bounds concurrent Blocking handler executions across
// all subscribers. Default 16.
func WithWorkerPoolSize(n int) Option {
	return func(b *bus) {
		if n > 0 {
			b.sem = make(chan struct{}, n)
		}
	}
}

// WithQueueSize sets the per-subscription buffered channel size. Default
// 1024. A subscriber whose queue fills (a stuck or very slow handler) will
// cause Publish to block on enqueue to that one subscriber only; this is a
// deliberate backpressure signal rather than silent event loss.
func WithQueueSize(n int) Option {
	return func(b *bus) {
		if n > 0 {
			b.queueSize = n
		}
	}
}

// New constructs an in-memory event bus ready for immediate use.
func New(opts ...Option) Bus {
	b := &bus{
		byType:    make(map[EventType][]*subscription),
		sem:       make(chan struct{}, 16),
		queueSize: 1024,
		log:       telemetry.NoopLogger{},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *bus) Subscribe(eventType EventType, h Handler, mode Mode) Subscription {
	sub := &subscription{
		bus:       b,
		eventType: eventType,
		queue:     make(chan queuedEvent, b.queueSize),
		closed:    make(chan struct{}),
	}
	go b.consume(sub, h, mode)

	b.mu.Lock()
	if eventType == WildcardEventType {
		b.wildcard = append(b.wildcard, sub)
	} else {
		b.byType[eventType] = append(b.byType[eventType], sub)
	}
	b.mu.Unlock()
	return sub
}

func (b *bus) consume(sub *subscription, h Handler, mode Mode) {
	for {
		var item queuedEvent
		var ok bool
		select {
		case item, ok = <-sub.queue:
			if !ok {
				return
			}
		case <-sub.closed:
			return
		}
		if mode == Blocking {
			select {
			case b.sem <- struct{}{}:
				err := h.HandleEvent(item.ctx, item.evt)
				<-b.sem
				b.report(err, item)
			case <-sub.closed:
				b.report(nil, item)
				return
			}
			continue
		}
		err := h.HandleEvent(item.ctx, item.evt)
		b.report(err, item)
	}
}

func (b *bus) report(err error, item queuedEvent) {
	if err != nil {
		atomic.AddInt64(&b.errorCount, 1)
		b.log.Warn(item.ctx, "bus: subscriber handler error", "event_type", string(item.evt.Type()), "error", err.Error())
	}
	if item.done != nil {
		item.done <- err
	}
}

func (b *bus) removeLocked(target *subscription) {
	if target.eventType == WildcardEventType {
		b.wildcard = removeSub(b.wildcard, target)
		return
	}
	b.byType[target.eventType] = removeSub(b.byType[target.eventType], target)
}

func removeSub(subs []*subscription, target *subscription) []*subscription {
	out := subs[:0]
	for _, s := range subs {
		if s != target {
			out = append(out, s)
		}
	}
	return out
}

func (b *bus) matching(eventType EventType) []*subscription {
	b.mu.RLock()
	defer b.mu.RUnlock()
	matched := make([]*subscription, 0, len(b.byType[eventType])+len(b.wildcard))
	matched = append(matched, b.byType[eventType]...)
	matched = append(matched, b.wildcard...)
	return matched
}

func (b *bus) Publish(ctx context.Context, e Event) {
	atomic.AddInt64(&b.totalPublished, 1)
	for _, sub := range b.matching(e.Type()) {
		sub.queue <- queuedEvent{ctx: ctx, evt: e}
	}
}

func (b *bus) PublishAndWait(ctx context.Context, e Event) error {
	atomic.AddInt64(&b.totalPublished, 1)
	subs := b.matching(e.Type())
	if len(subs) == 0 {
		return nil
	}
	results := make(chan error, len(subs))
	for _, sub := range subs {
		sub.queue <- queuedEvent{ctx: ctx, evt: e, done: results}
	}
	var first error
	for range subs {
		if err := <-results; err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (b *bus) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	byType := make(map[EventType]int, len(b.byType)+1)
	for et, subs := range b.byType {
		byType[et] = len(subs)
	}
	if len(b.wildcard) > 0 {
		byType[WildcardEventType] = len(b.wildcard)
	}
	return Stats{
		TotalEventsPublished: atomic.LoadInt64(&b.totalPublished),
		ErrorCount:           atomic.LoadInt64(&b.errorCount),
		HandlersByType:       byType,
	}
}

func (b *bus) Clear() {
	b.mu.Lock()
	for _, subs := range b.byType {
		for _, s := range subs {
			close(s.queue)
		}
	}
	for _, s := range b.wildcard {
		close(s.queue)
	}
	b.byType = make(map[EventType][]*subscription)
	b.wildcard = nil
	b.mu.Unlock()
	atomic.StoreInt64(&b.totalPublished, 0)
	atomic.StoreInt64(&b.errorCount, 0)
}
