package chat

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"dmchat/internal/app/user"
	"dmchat/internal/pkg/auth/jwt"
	"dmchat/internal/pkg/errs"
	"dmchat/internal/pkg/logx"
	"dmchat/internal/pkg/wire"
)

const (
	// timeout duration for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed for the server to wait for a Pong message from the client.
	pongWait = 60 * time.Second

	// frequency at which the server sends a Ping message.
	pingPeriod = (pongWait * 9) / 10

	// maximum allowed size (in bytes) of a frame sent by the client.
	maxMessageSize = 8192

	// TokenRefreshWindow defines how much time before the token expires we should attempt to refresh it.
	TokenRefreshWindow = 2 * time.Hour
)

var (
	// ErrConnClosed is returned by Send after Close.
	ErrConnClosed = errors.New("connection closed")

	// ErrSendQueueFull is returned by Send when the outgoing queue is full.
	ErrSendQueueFull = errors.New("connection send queue full")
)

// Socket is the subset of *websocket.Conn used by Conn.
type Socket interface {
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Conn is one websocket session of an authenticated user. It implements Handle.
//
// Outgoing events go through a buffered queue drained by WritePump, so every
// connection receives events in the order they were sent.
type Conn struct {
	hub    *Hub
	socket Socket
	user   user.User

	// id is assigned by the registry when the connection is attached.
	id ConnectionID

	// tokenExpiry is only touched by WritePump.
	tokenExpiry time.Time

	mu     sync.Mutex
	closed bool
	send   chan []byte

	logger zerolog.Logger
}

func newConn(hub *Hub, socket Socket, u user.User, expiry time.Time, buffer int) *Conn {
	return &Conn{
		hub:         hub,
		socket:      socket,
		user:        u,
		tokenExpiry: expiry,
		send:        make(chan []byte, buffer),
		logger: logx.Logger().With().
			Str("component", "conn").
			Str("user_id", u.ID).
			Logger(),
	}
}

// ID returns the registry id of the connection.
func (c *Conn) ID() ConnectionID {
	return c.id
}

// User returns the identity the connection was authenticated as.
func (c *Conn) User() user.User {
	return c.user
}

// Send queues ev for writing. It never blocks: a full queue is reported as
// ErrSendQueueFull so the caller can evict the connection.
func (c *Conn) Send(ev wire.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrConnClosed
	}

	select {
	case c.send <- data:
		return nil
	default:
		c.logger.Warn().Int("queue_len", len(c.send)).Msg("Send queue full.")
		return ErrSendQueueFull
	}
}

// Close stops the write side; WritePump sends a close frame and the socket shuts down.
func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// ReadPump handles reading frames from the WebSocket connection.
// It handles heartbeats (Pong), inbound requests, and detaches the connection when reading stops.
func (c *Conn) ReadPump() {
	defer c.cleanupOnDisconnect()

	c.socket.SetReadLimit(maxMessageSize)

	if err := c.socket.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	c.socket.SetPongHandler(func(string) error {
		return c.socket.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info().Err(err).Msg("Error reading message (client close/going away)")
			}
			break
		}

		c.processInbound(data)
	}
}

// cleanupOnDisconnect unregisters the connection and closes the socket.
func (c *Conn) cleanupOnDisconnect() {
	c.logger.Debug().Str("connection_id", string(c.id)).Msg("Connection cleanup starting.")

	c.hub.Detach(c.id)

	if err := c.socket.Close(); err != nil {
		c.logger.Debug().Err(err).Msg("Socket close error")
	}
}

func (c *Conn) processInbound(data []byte) {
	var ev wire.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		c.logger.Warn().Err(err).Msg("Client sent invalid JSON")
		c.SendError(errs.NewError(errs.ErrInvalidJSONFormat))
		return
	}

	switch ev.Type {
	case wire.TypePresenceSync:
		presenceEv, err := c.hub.presence.Event()
		if err != nil {
			c.logger.Error().Err(err).Msg("Failed to build presence snapshot")
			return
		}
		if err := c.Send(presenceEv); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to queue presence snapshot")
		}

	default:
		c.logger.Warn().Str("event_type", string(ev.Type)).Msg("Client sent unsupported event type")
		c.SendError(errs.NewError(errs.ErrInvalidParams))
	}
}

// SendError queues an error event describing err.
func (c *Conn) SendError(err error) {
	ce := errs.From(err)

	ev, buildErr := wire.NewEvent(wire.TypeError, wire.ErrorPayload{Code: ce.Code, Message: ce.Message})
	if buildErr != nil {
		c.logger.Error().Err(buildErr).Msg("Failed to build error event")
		return
	}

	if err := c.Send(ev); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to queue error event")
	}
}

// WritePump writes queued events to the WebSocket connection and keeps it alive with pings.
func (c *Conn) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()

		// ensure the connection is closed on exit so ReadPump unblocks
		if err := c.socket.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Socket close error in WritePump")
		}
	}()

	for {
		select {
		case data, ok := <-c.send:
			if !c.writeQueued(data, ok) {
				return
			}

		case <-ticker.C:
			if !c.writePing() {
				return
			}

			c.checkAndRefreshToken()
		}
	}
}

// writeQueued writes one queued frame, or a close frame once the queue is closed.
// Returns true if the WritePump loop should continue, false if it should terminate.
func (c *Conn) writeQueued(data []byte, ok bool) bool {
	if err := c.socket.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline")
		return false
	}

	if !ok {
		if err := c.socket.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
			c.logger.Debug().Err(err).Msg("Error writing close message")
		}
		return false
	}

	if err := c.socket.WriteMessage(websocket.TextMessage, data); err != nil {
		c.logger.Warn().Err(err).Msg("Error writing message")
		return false
	}

	return true
}

// writePing sends a periodic WebSocket Ping message to maintain the connection heartbeat.
func (c *Conn) writePing() bool {
	if err := c.socket.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline on ping")
		return false
	}

	if err := c.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.logger.Warn().Err(err).Msg("Error writing ping")
		return false
	}

	return true
}

// checkAndRefreshToken issues a fresh identity token when the current one is close to expiry.
func (c *Conn) checkAndRefreshToken() {
	if time.Now().Before(c.tokenExpiry.Add(-TokenRefreshWindow)) {
		return
	}

	c.logger.Info().
		Time("current_expiry", c.tokenExpiry).
		Dur("refresh_window", TokenRefreshWindow).
		Msg("JWT token is nearing expiry, attempting refresh.")

	payload := &jwt.Payload{
		ID:       c.user.ID,
		Username: c.user.Username,
		FullName: c.user.FullName,
		Avatar:   c.user.Avatar,
	}

	token, err := jwt.GenerateToken(payload, c.hub.config.JWTSecret, jwt.IdentityExpiration)
	if err != nil {
		c.logger.Error().Err(err).Msg("Failed to generate new token. Aborting refresh.")
		return
	}

	ev, err := wire.NewEvent(wire.TypeTokenUpdate, wire.TokenPayload{Token: token})
	if err != nil {
		c.logger.Error().Err(err).Msg("Failed to build token update event.")
		return
	}

	if err := c.Send(ev); err != nil {
		c.logger.Error().Err(err).Msg("Failed to send token update to client.")
		return
	}

	c.tokenExpiry = payload.Expiry()
}
