package chat

import (
	"errors"
	"sync"

	"dmchat/internal/pkg/wire"
)

// fakeHandle records every event it accepts.
type fakeHandle struct {
	mu     sync.Mutex
	events []wire.Event
	fail   bool
	closed bool
}

func (h *fakeHandle) Send(ev wire.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.fail || h.closed {
		return errors.New("broken pipe")
	}
	h.events = append(h.events, ev)
	return nil
}

func (h *fakeHandle) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
}

func (h *fakeHandle) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

func (h *fakeHandle) ofType(t wire.EventType) []wire.Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	var out []wire.Event
	for _, ev := range h.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func (h *fakeHandle) lastPresence() []string {
	events := h.ofType(wire.TypePresenceUpdate)
	if len(events) == 0 {
		return nil
	}

	var p wire.PresencePayload
	if err := events[len(events)-1].Decode(&p); err != nil {
		return nil
	}
	return p.UserIDs
}
