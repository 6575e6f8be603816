package realtime

import (
	"sync"

	"github.com/google/uuid"

	"dmchat/internal/pkg/logx"
	"dmchat/internal/pkg/wire"
)

// DefaultBufferSize is the default per-subscriber channel buffer.
const DefaultBufferSize = 256

// dropsBuffer bounds the pending drop notifications; further drops of a type
// already pending carry no extra information.
const dropsBuffer = 16

// Hub fans decoded events out to subscribers of their type.
type Hub struct {
	mu      sync.RWMutex
	streams map[wire.EventType]map[string]chan wire.Event
	drops   chan wire.EventType
	closed  bool
}

// NewHub creates an empty event hub.
func NewHub() *Hub {
	return &Hub{
		streams: map[wire.EventType]map[string]chan wire.Event{},
		drops:   make(chan wire.EventType, dropsBuffer),
	}
}

// Publish delivers ev to every subscriber of its type without blocking.
// A subscriber whose buffer is full misses the event, and the event type is
// reported on Drops.
func (h *Hub) Publish(ev wire.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return
	}

	for id, ch := range h.streams[ev.Type] {
		select {
		case ch <- ev:
		default:
			logx.Warn("Realtime subscriber is slow, event dropped", "event_type", string(ev.Type), "stream_id", id)
			select {
			case h.drops <- ev.Type:
			default:
			}
		}
	}
}

// Drops reports the type of every event a subscriber missed. It is closed by Close.
func (h *Hub) Drops() <-chan wire.EventType {
	return h.drops
}

// Subscribers returns the number of live streams for events of type t.
func (h *Hub) Subscribers(t wire.EventType) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.streams[t])
}

// Subscribe registers a stream for events of type t. The returned cancel
// function closes the stream; it is safe to call more than once.
func (h *Hub) Subscribe(t wire.EventType, buffer int) (<-chan wire.Event, func()) {
	if buffer <= 0 {
		buffer = DefaultBufferSize
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		ch := make(chan wire.Event)
		close(ch)
		return ch, func() {}
	}

	streamID := uuid.NewString()
	ch := make(chan wire.Event, buffer)

	streams, ok := h.streams[t]
	if !ok {
		streams = map[string]chan wire.Event{}
		h.streams[t] = streams
	}
	streams[streamID] = ch
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()

			streams := h.streams[t]
			if current, ok := streams[streamID]; ok {
				delete(streams, streamID)
				close(current)
			}
			if len(streams) == 0 {
				delete(h.streams, t)
			}
		})
	}

	return ch, cancel
}

// Close ends every stream. Later subscriptions receive a closed channel.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true

	for t, streams := range h.streams {
		for id, ch := range streams {
			close(ch)
			delete(streams, id)
		}
		delete(h.streams, t)
	}
	close(h.drops)
}
