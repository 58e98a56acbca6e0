package bus

import "time"

// EventType is a dotted, closed-registry event name (spec §3, §6), e.g.
// "agent.invoked" or "tool.used". Package schema validates payloads against
// the named type; package bus only needs the string for subscription
// routing.
type EventType string

// Event is an immutable record published on the Bus. Once constructed, an
// Event must not be mutated; handlers receive it by value. Payload is a
// shallow map and callers must not retain or mutate the slice/map values
// they pass in after construction — NewEvent defensively copies the top
// level map but not nested structures, matching the spec's "non-circular,
// no I/O handles" invariant rather than deep-cloning arbitrary payloads.
type Event struct {
	eventType EventType
	timestamp time.Time
	payload   map[string]any
	traceID   string
	sessionID string
}

// Options configures an optional field of an Event at construction time.
type Option func(*Event)

// WithTraceID sets the correlation key for the event.
func WithTraceID(traceID string) Option {
	return func(e *Event) { e.traceID = traceID }
}

// WithTimestamp overrides the default (now) timestamp; primarily for tests.
func WithTimestamp(t time.Time) Option {
	return func(e *Event) { e.timestamp = t }
}

// NewEvent constructs an immutable Event. sessionID must be non-empty and
// eventType must be non-empty; construction does not itself validate against
// the schema registry — schema.ValidatingBus does that when it wraps a Bus
// and validates on Publish/PublishAndWait, so NewEvent stays usable in tests
// without a registry.
func NewEvent(eventType EventType, sessionID string, payload map[string]any, opts ...Option) Event {
	cp := make(map[string]any, len(payload))
	for k, v := range payload {
		cp[k] = v
	}
	e := Event{
		eventType: eventType,
		sessionID: sessionID,
		payload:   cp,
		timestamp: time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

// Type returns the event's dotted type name.
func (e Event) Type() EventType { return e.eventType }

// Timestamp returns the UTC instant the event was constructed.
func (e Event) Timestamp() time.Time { return e.timestamp }

// SessionID returns the session this event belongs to.
func (e Event) SessionID() string { return e.sessionID }

// TraceID returns the correlation key, or "" if unset.
func (e Event) TraceID() string { return e.traceID }

// Payload returns a defensive copy of the event's payload map so callers
// cannot mutate the stored event through the returned map.
func (e Event) Payload() map[string]any {
	cp := make(map[string]any, len(e.payload))
	for k, v := range e.payload {
		cp[k] = v
	}
	return cp
}

// Get returns a single payload field and whether it was present.
func (e Event) Get(key string) (any, bool) {
	v, ok := e.payload[key]
	return v, ok
}
