package chat

import (
	"github.com/rs/zerolog"

	"dmchat/internal/app/message"
	"dmchat/internal/pkg/logx"
	"dmchat/internal/pkg/metrics"
	"dmchat/internal/pkg/wire"
)

// Evictor removes a connection whose transport failed.
type Evictor interface {
	Evict(id ConnectionID, cause error) bool
}

// Router pushes persisted messages to the receiver's live connections.
type Router struct {
	registry *Registry
	evictor  Evictor
	metrics  *metrics.Collector
	logger   zerolog.Logger
}

// NewRouter creates a Router. Connections that fail a push are handed to evictor.
func NewRouter(registry *Registry, evictor Evictor, m *metrics.Collector) *Router {
	return &Router{
		registry: registry,
		evictor:  evictor,
		metrics:  m,
		logger:   logx.Component("router"),
	}
}

// Deliver sends msg as a message:new event to every live connection of its receiver
// and returns the number of connections that accepted it. A receiver without
// connections is not an error; the message waits in storage for the next fetch.
func (r *Router) Deliver(msg message.Message) int {
	conns := r.registry.ConnectionsFor(msg.ReceiverID)
	if len(conns) == 0 {
		r.metrics.DeliveryResult(metrics.ResultOffline)
		r.logger.Debug().
			Str("message_id", msg.ID).
			Str("receiver_id", msg.ReceiverID).
			Msg("Receiver offline; message left for fetch.")
		return 0
	}

	ev, err := wire.NewEvent(wire.TypeMessageNew, msg)
	if err != nil {
		r.logger.Error().Err(err).Str("message_id", msg.ID).Msg("Failed to build message event.")
		return 0
	}

	delivered := 0
	for _, conn := range conns {
		if err := conn.Handle.Send(ev); err != nil {
			r.metrics.DeliveryResult(metrics.ResultFailed)
			r.logger.Warn().
				Err(err).
				Str("message_id", msg.ID).
				Str("connection_id", string(conn.ID)).
				Msg("Push failed; evicting connection.")
			r.evictor.Evict(conn.ID, err)
			continue
		}

		r.metrics.DeliveryResult(metrics.ResultDelivered)
		delivered++
	}

	return delivered
}
