package eventhub

import (
	"sync"
	"time"
)

// Event is a single notification delivered to observers
type Event struct {
	Type      string      `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}

// Event types emitted by the engine
const (
	EventCheckpointReady   = "checkpoint:ready"
	EventRollbackCompleted = "rollback:completed"
	EventRepoChanged       = "repo:changed"
)

// RepoChangedEvent is the payload for repo:changed
type RepoChangedEvent struct {
	Path   string `json:"path"`
	Branch string `json:"branch"`
	Dirty  bool   `json:"dirty"`
}

// Hub fan-outs events to registered observers. Delivery is best effort:
// a slow observer's events are dropped, never blocking the emitter.
type Hub struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
	closed bool
}

// New creates a new Hub
func New() *Hub {
	return &Hub{
		subs: make(map[int]chan Event),
	}
}

// Subscribe registers an observer. The returned channel is buffered;
// cancel releases the subscription and closes the channel.
func (h *Hub) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	ch := make(chan Event, buffer)
	h.subs[id] = ch

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if c, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(c)
		}
	}

	return ch, cancel
}

// Emit delivers an event to all observers without blocking
func (h *Hub) Emit(eventType, sessionID string, payload interface{}) {
	event := Event{
		Type:      eventType,
		SessionID: sessionID,
		Timestamp: time.Now(),
		Payload:   payload,
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return
	}

	for _, ch := range h.subs {
		select {
		case ch <- event:
		default:
			// Observer buffer full: drop rather than block the emitter
		}
	}
}

// EmitCheckpointReady announces a completed checkpoint
func (h *Hub) EmitCheckpointReady(sessionID string, payload interface{}) {
	h.Emit(EventCheckpointReady, sessionID, payload)
}

// EmitRollbackCompleted announces a finished rollback
func (h *Hub) EmitRollbackCompleted(sessionID string, payload interface{}) {
	h.Emit(EventRollbackCompleted, sessionID, payload)
}

// EmitRepoChanged announces a tracked repository change
func (h *Hub) EmitRepoChanged(sessionID string, event RepoChangedEvent) {
	h.Emit(EventRepoChanged, sessionID, event)
}

// Close tears down all subscriptions
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true

	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}
