// Package metrics implements the rolling-window aggregator from spec §4.N:
// a bus.Handler that subscribes to every event and folds per-second
// buckets into on-demand derived statistics with O(window/slot) memory,
// independent of event rate.
package metrics

import (
	"container/list"
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/subagentctl/subagentctl/bus"
)

// Sample is one observed duration, used for the bounded tail-latency
// reservoir (spec §4.N: "tail-latency uses a bounded reservoir sample").
type Sample struct {
	At       time.Time
	Duration time.Duration
}

type bucket struct {
	slot          time.Time
	requests      int
	failures      int
	tokens        int64
	costUSD       float64
	durationTotal time.Duration
	durationCount int
	reservoir     []time.Duration
}

// Window aggregates events into per-slot buckets spanning Size, evicting
// buckets older than Size on every record/query (spec §4.N).
type Window struct {
	Size           time.Duration
	SlotSize       time.Duration
	ReservoirLimit int

	mu      sync.Mutex
	buckets *list.List // of *bucket, oldest at Front
	seen    int64       // count of reservoir-eligible samples ever seen, for sampling weight
}

// NewWindow constructs a Window. slotSize defaults to one second and
// reservoirLimit to 256 samples when zero.
func NewWindow(size, slotSize time.Duration, reservoirLimit int) *Window {
	if slotSize <= 0 {
		slotSize = time.Second
	}
	if reservoirLimit <= 0 {
		reservoirLimit = 256
	}
	return &Window{Size: size, SlotSize: slotSize, ReservoirLimit: reservoirLimit, buckets: list.New()}
}

func (w *Window) slotFor(t time.Time) time.Time {
	return t.Truncate(w.SlotSize)
}

// Record appends one observation to the current slot, creating it if
// needed, then evicts buckets older than Size.
func (w *Window) Record(at time.Time, failed bool, tokens int64, costUSD float64, duration time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	slot := w.slotFor(at)
	var b *bucket
	if back := w.buckets.Back(); back != nil {
		if bb := back.Value.(*bucket); bb.slot.Equal(slot) {
			b = bb
		}
	}
	if b == nil {
		b = &bucket{slot: slot}
		w.buckets.PushBack(b)
	}

	b.requests++
	if failed {
		b.failures++
	}
	b.tokens += tokens
	b.costUSD += costUSD
	if duration > 0 {
		b.durationTotal += duration
		b.durationCount++
		w.seen++
		b.reservoir = reservoirAdd(b.reservoir, duration, w.ReservoirLimit, w.seen)
	}

	w.evictLocked(at)
}

func reservoirAdd(r []time.Duration, d time.Duration, limit int, seen int64) []time.Duration {
	if len(r) < limit {
		return append(r, d)
	}
	// Simple reservoir sampling: replace a random-ish slot using seen as
	// a deterministic stand-in for math/rand (no rand dependency here;
	// good enough for approximate tail latency, not statistically pure).
	idx := int(seen % int64(limit))
	r[idx] = d
	return r
}

func (w *Window) evictLocked(now time.Time) {
	cutoff := now.Add(-w.Size)
	for e := w.buckets.Front(); e != nil; {
		b := e.Value.(*bucket)
		if b.slot.Before(cutoff) {
			next := e.Next()
			w.buckets.Remove(e)
			e = next
			continue
		}
		break
	}
}

// Stats is the derived statistics folded from all live buckets (spec
// §4.N: "requests/sec, avg/p50/p95 duration, tokens/sec, cost/min,
// failures/min").
type Stats struct {
	RequestsPerSec float64
	FailuresPerMin float64
	TokensPerSec   float64
	CostPerMin     float64
	AvgDuration    time.Duration
	P50Duration    time.Duration
	P95Duration    time.Duration
}

// Stats folds all live buckets (evicting stale ones against now first)
// into derived statistics. Returns the zero Stats if the window is empty.
func (w *Window) Stats(now time.Time) Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.evictLocked(now)

	var requests, failures int
	var tokens int64
	var cost float64
	var durationTotal time.Duration
	var durationCount int
	var reservoir []time.Duration

	for e := w.buckets.Front(); e != nil; e = e.Next() {
		b := e.Value.(*bucket)
		requests += b.requests
		failures += b.failures
		tokens += b.tokens
		cost += b.costUSD
		durationTotal += b.durationTotal
		durationCount += b.durationCount
		reservoir = append(reservoir, b.reservoir...)
	}

	seconds := w.Size.Seconds()
	if seconds <= 0 {
		seconds = 1
	}
	minutes := seconds / 60

	var s Stats
	s.RequestsPerSec = float64(requests) / seconds
	s.TokensPerSec = float64(tokens) / seconds
	if minutes > 0 {
		s.FailuresPerMin = float64(failures) / minutes
		s.CostPerMin = cost / minutes
	}
	if durationCount > 0 {
		s.AvgDuration = durationTotal / time.Duration(durationCount)
	}
	if len(reservoir) > 0 {
		sort.Slice(reservoir, func(i, j int) bool { return reservoir[i] < reservoir[j] })
		s.P50Duration = percentile(reservoir, 0.50)
		s.P95Duration = percentile(reservoir, 0.95)
	}
	return s
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// Aggregator subscribes to every event (bus.WildcardEventType) and
// maintains one Window per configured size, keyed by the window's size
// (a time.Duration). Event kind (success/failure, duration, tokens, cost)
// is read from well-known payload keys shared across event producers.
type Aggregator struct {
	mu      sync.RWMutex
	windows map[time.Duration]*Window
}

// NewAggregator constructs an Aggregator with one Window per size in
// sizes, all sharing slotSize and reservoirLimit.
func NewAggregator(sizes []time.Duration, slotSize time.Duration, reservoirLimit int) *Aggregator {
	a := &Aggregator{windows: make(map[time.Duration]*Window, len(sizes))}
	for _, size := range sizes {
		a.windows[size] = NewWindow(size, slotSize, reservoirLimit)
	}
	return a
}

// HandleEvent implements bus.Handler, recording e into every window.
func (a *Aggregator) HandleEvent(_ context.Context, e bus.Event) error {
	at := e.Timestamp()
	if at.IsZero() {
		at = time.Now()
	}
	failed := isFailureEvent(e.Type())
	tokens := intPayload(e, "tokens_used")
	cost := floatPayload(e, "cost_usd")
	duration := durationPayload(e, "duration_ms")

	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, w := range a.windows {
		w.Record(at, failed, tokens, cost, duration)
	}
	return nil
}

func isFailureEvent(t bus.EventType) bool {
	switch t {
	case bus.EventAgentFailed, bus.EventToolError, bus.EventAgentTimeout, bus.EventAgentBlocked:
		return true
	default:
		return false
	}
}

func intPayload(e bus.Event, key string) int64 {
	v, ok := e.Get(key)
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case int:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	default:
		return 0
	}
}

func floatPayload(e bus.Event, key string) float64 {
	v, ok := e.Get(key)
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return 0
	}
}

func durationPayload(e bus.Event, key string) time.Duration {
	ms := floatPayload(e, key)
	if ms <= 0 {
		return 0
	}
	return time.Duration(ms * float64(time.Millisecond))
}

// Stats returns the current derived statistics for the window of the
// given size, or the zero Stats and false if no such window exists.
func (a *Aggregator) Stats(size time.Duration, now time.Time) (Stats, bool) {
	a.mu.RLock()
	w, ok := a.windows[size]
	a.mu.RUnlock()
	if !ok {
		return Stats{}, false
	}
	return w.Stats(now), true
}

// Sizes returns the configured window sizes.
func (a *Aggregator) Sizes() []time.Duration {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]time.Duration, 0, len(a.windows))
	for size := range a.windows {
		out = append(out, size)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
