package sse

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/execution-hub/agent-orchestrator/internal/domain/event"
)

const clientBuffer = 100

var ErrClientNotFound = errors.New("sse client not found")

// Client is one connected event stream. Empty filters match everything.
type Client struct {
	ID          string
	Agent       string
	Types       map[event.Type]bool
	ConnectedAt time.Time
	Events      chan *event.Event
}

func NewClient(id, agentName string, types []event.Type) *Client {
	c := &Client{
		ID:          id,
		Agent:       agentName,
		ConnectedAt: time.Now().UTC(),
		Events:      make(chan *event.Event, clientBuffer),
	}
	if len(types) > 0 {
		c.Types = make(map[event.Type]bool, len(types))
		for _, t := range types {
			c.Types[t] = true
		}
	}
	return c
}

func (c *Client) wants(e *event.Event) bool {
	if c.Agent != "" && e.Agent != c.Agent {
		return false
	}
	return c.Types == nil || c.Types[e.Type]
}

// Hub fans lifecycle events out to SSE clients. It is an event.Publisher.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	dropped atomic.Int64
}

func NewHub() *Hub {
	return &Hub{clients: make(map[string]*Client)}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if old, ok := h.clients[c.ID]; ok {
		close(old.Events)
	}
	h.clients[c.ID] = c
}

// Unregister removes c if it is still the registered client for its ID.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cur, ok := h.clients[c.ID]; ok && cur == c {
		close(c.Events)
		delete(h.clients, c.ID)
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many events were discarded because a client lagged.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// Publish never blocks; slow clients lose events.
func (h *Hub) Publish(e *event.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if c.wants(e) && !trySend(c, e) {
			h.dropped.Add(1)
		}
	}
}

// SendTo delivers e to a single client regardless of its filters.
func (h *Hub) SendTo(clientID string, e *event.Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c := h.clients[clientID]
	if c == nil {
		return ErrClientNotFound
	}
	if !trySend(c, e) {
		h.dropped.Add(1)
	}
	return nil
}

func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		close(c.Events)
		delete(h.clients, id)
	}
}

func trySend(c *Client, e *event.Event) bool {
	select {
	case c.Events <- e:
		return true
	default:
		return false
	}
}
