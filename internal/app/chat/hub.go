package chat

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"dmchat/internal/app/message"
	"dmchat/internal/app/user"
	"dmchat/internal/pkg/logx"
	"dmchat/internal/pkg/metrics"
)

// DefaultSendBuffer is the outgoing queue length of a connection when none is configured.
const DefaultSendBuffer = 256

// HubConfig holds the settings of the realtime hub.
type HubConfig struct {
	// JWTSecret signs refreshed identity tokens pushed to long-lived connections.
	JWTSecret string

	// SendBuffer is the outgoing queue length of each connection.
	SendBuffer int
}

// Hub owns the realtime subsystem: one Registry, its Presence publisher, and the
// message Router. It is created once at startup and injected where needed.
type Hub struct {
	config   HubConfig
	registry *Registry
	presence *Presence
	router   *Router

	wg     sync.WaitGroup
	logger zerolog.Logger
}

// NewHub builds the subsystem and starts the presence loop.
func NewHub(cfg HubConfig, m *metrics.Collector) *Hub {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = DefaultSendBuffer
	}

	registry := NewRegistry()
	presence := NewPresence(registry, m)

	h := &Hub{
		config:   cfg,
		registry: registry,
		presence: presence,
		router:   NewRouter(registry, presence, m),
		logger:   logx.Component("hub"),
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		presence.Run()
	}()

	return h
}

// Registry returns the connection registry.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// Attach wraps an upgraded socket for u and registers it. The caller runs the
// pumps: WritePump on its own goroutine and ReadPump until the connection ends.
func (h *Hub) Attach(socket Socket, u user.User, tokenExpiry time.Time) *Conn {
	c := newConn(h, socket, u, tokenExpiry, h.config.SendBuffer)
	c.id = h.presence.Connect(u.ID, c)
	return c
}

// Detach unregisters a connection; it is a no-op for connections already gone.
func (h *Hub) Detach(id ConnectionID) {
	h.presence.Disconnect(id)
}

// Deliver pushes a persisted message to its receiver's live connections.
func (h *Hub) Deliver(msg message.Message) {
	h.router.Deliver(msg)
}

// OnlineUserIDs returns the current online set.
func (h *Hub) OnlineUserIDs() []string {
	return h.presence.Snapshot()
}

// Shutdown closes every connection and stops the presence loop.
func (h *Hub) Shutdown() {
	h.logger.Info().Int("connections", h.registry.Len()).Msg("Shutting down hub...")

	for _, conn := range h.registry.All() {
		if c, ok := h.registry.Unregister(conn.ID); ok {
			c.Handle.Close()
		}
	}

	h.presence.Stop()
	h.wg.Wait()

	h.logger.Info().Msg("Hub shutdown complete.")
}
