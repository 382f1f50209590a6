package event

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type names an observability event.
type Type string

const (
	TypeHealthChanged         Type = "agent-health-changed"
	TypeOverloaded            Type = "agent-overloaded"
	TypeFailed                Type = "agent-failed"
	TypeScaledUp              Type = "agent-scaled-up"
	TypeScaledDown            Type = "agent-scaled-down"
	TypeBreakerOpened         Type = "circuit-breaker-opened"
	TypeBreakerClosed         Type = "circuit-breaker-closed"
	TypeRecovered             Type = "agent-recovered"
	TypePerformanceAlert      Type = "performance-alert"
	TypeMessageDelivered      Type = "message-delivered"
	TypeMonitoringStarted     Type = "monitoring-started"
	TypeMonitoringStopped     Type = "monitoring-stopped"
	TypeAutoScalingConfigured Type = "auto-scaling-configured"
	TypeAgentsInitialized     Type = "agents-initialized"
)

// Event is an immutable lifecycle notification.
type Event struct {
	ID         string         `json:"id"`
	Type       Type           `json:"type"`
	Agent      string         `json:"agent,omitempty"`
	InstanceID string         `json:"instanceId,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// New creates an event for an agent.
func New(t Type, agent string, data map[string]any) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      t,
		Agent:     agent,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

// WithInstance sets the instance id.
func (e *Event) WithInstance(id string) *Event {
	e.InstanceID = id
	return e
}

// JSON encodes the event, returning nil on failure.
func (e *Event) JSON() json.RawMessage {
	b, err := json.Marshal(e)
	if err != nil {
		return nil
	}
	return b
}

// Publisher receives events. Implementations must not block.
type Publisher interface {
	Publish(e *Event)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(e *Event)

func (f PublisherFunc) Publish(e *Event) { f(e) }

// Discard drops every event.
var Discard Publisher = PublisherFunc(func(*Event) {})

// Fanout publishes to every non-nil publisher in order.
func Fanout(pubs ...Publisher) Publisher {
	out := make([]Publisher, 0, len(pubs))
	for _, p := range pubs {
		if p != nil {
			out = append(out, p)
		}
	}
	return PublisherFunc(func(e *Event) {
		for _, p := range out {
			p.Publish(e)
		}
	})
}

// Recorder keeps every published event. Used by tests.
type Recorder struct {
	mu     sync.Mutex
	events []*Event
}

func (r *Recorder) Publish(e *Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []*Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Event, len(r.events))
	copy(out, r.events)
	return out
}

// Count returns the number of recorded events of a type.
func (r *Recorder) Count(t Type) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

// Reset clears recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
