package chat

import (
	"sync"

	"github.com/rs/zerolog"

	"dmchat/internal/pkg/logx"
	"dmchat/internal/pkg/metrics"
	"dmchat/internal/pkg/wire"
)

// Presence broadcasts the online set to every connection after each connect or disconnect.
//
// Changes are counted, not coalesced: the Run loop performs exactly one broadcast per
// recorded change. A connection whose send fails during a broadcast is evicted, and the
// eviction counts as one more change.
type Presence struct {
	registry *Registry
	metrics  *metrics.Collector

	// mu guards pending.
	mu      sync.Mutex
	pending int

	// wake signals the Run loop that pending changed.
	wake chan struct{}

	stopChan chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	logger zerolog.Logger
}

// NewPresence creates a publisher over registry. Call Run to start broadcasting.
func NewPresence(registry *Registry, m *metrics.Collector) *Presence {
	return &Presence{
		registry: registry,
		metrics:  m,
		wake:     make(chan struct{}, 1),
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logx.Component("presence"),
	}
}

// Connect registers h for userID and schedules one broadcast.
func (p *Presence) Connect(userID string, h Handle) ConnectionID {
	id := p.registry.Register(userID, h)

	p.logger.Info().
		Str("user_id", userID).
		Str("connection_id", string(id)).
		Int("total_connections", p.registry.Len()).
		Msg("Connection registered.")

	p.changed()
	return id
}

// Disconnect unregisters and closes the connection and schedules one broadcast.
// It reports false, doing nothing, when the connection was already gone.
func (p *Presence) Disconnect(id ConnectionID) bool {
	conn, ok := p.registry.Unregister(id)
	if !ok {
		return false
	}

	conn.Handle.Close()

	p.logger.Info().
		Str("user_id", conn.UserID).
		Str("connection_id", string(id)).
		Int("total_connections", p.registry.Len()).
		Msg("Connection unregistered.")

	p.changed()
	return true
}

// Evict removes a connection whose transport failed. It is Disconnect plus bookkeeping.
func (p *Presence) Evict(id ConnectionID, cause error) bool {
	if !p.evict(id, cause) {
		return false
	}
	p.changed()
	return true
}

// evict removes the connection without scheduling a broadcast.
func (p *Presence) evict(id ConnectionID, cause error) bool {
	conn, ok := p.registry.Unregister(id)
	if !ok {
		return false
	}

	conn.Handle.Close()
	p.metrics.StaleEviction()

	p.logger.Warn().
		Err(cause).
		Str("user_id", conn.UserID).
		Str("connection_id", string(id)).
		Msg("Evicted stale connection.")

	return true
}

// Snapshot returns the current online set.
func (p *Presence) Snapshot() []string {
	return p.registry.OnlineUserIDs()
}

// Event builds a presence:update event for the current online set.
func (p *Presence) Event() (wire.Event, error) {
	return wire.NewEvent(wire.TypePresenceUpdate, wire.PresencePayload{UserIDs: p.Snapshot()})
}

func (p *Presence) changed() {
	p.mu.Lock()
	p.pending++
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Presence) takePending() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := p.pending
	p.pending = 0
	return n
}

// Run is the broadcast loop. It returns after Stop.
func (p *Presence) Run() {
	defer close(p.done)

	p.logger.Info().Msg("Presence loop started.")

	for {
		select {
		case <-p.wake:
			for pending := p.takePending(); pending > 0; pending-- {
				pending += p.broadcast()
			}

		case <-p.stopChan:
			p.logger.Info().Msg("Presence loop stopped.")
			return
		}
	}
}

// Stop ends the Run loop and waits for it to exit.
func (p *Presence) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopChan)
	})
	<-p.done
}

// broadcast sends the current online set to every connection and returns
// the number of connections evicted because the send failed.
func (p *Presence) broadcast() int {
	ev, err := p.Event()
	if err != nil {
		p.logger.Error().Err(err).Msg("Failed to build presence event.")
		return 0
	}

	evicted := 0
	for _, conn := range p.registry.All() {
		if err := conn.Handle.Send(ev); err != nil {
			if p.evict(conn.ID, err) {
				evicted++
			}
		}
	}

	p.metrics.PresenceBroadcast()
	p.metrics.SetPresence(p.registry.Len(), len(p.registry.OnlineUserIDs()))

	return evicted
}
