/*
Package realtime connects to the dmchat websocket endpoint and republishes the
server's events to in-process subscribers keyed by event type.
*/
package realtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"dmchat/internal/pkg/logx"
	"dmchat/internal/pkg/wire"
)

const (
	// handshakeTimeout bounds the websocket upgrade.
	handshakeTimeout = 10 * time.Second

	// writeWait bounds a single outbound frame.
	writeWait = 10 * time.Second

	// pongWait must exceed the server's ping period.
	pongWait = 75 * time.Second
)

// ErrClosed is returned by Send after the connection ended.
var ErrClosed = errors.New("realtime connection closed")

// Client is one websocket session with the server.
type Client struct {
	conn *websocket.Conn
	hub  *Hub

	writeMu sync.Mutex

	closeOnce sync.Once
	done      chan struct{}

	// OnToken is called with refreshed identity tokens pushed by the server.
	OnToken func(token string)

	logger zerolog.Logger
}

// WebSocketURL turns a server base URL into the websocket endpoint URL carrying token.
func WebSocketURL(baseURL, token string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}

	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported server url scheme %q", u.Scheme)
	}

	u.Path += "/ws"
	u.RawQuery = url.Values{"token": {token}}.Encode()
	return u.String(), nil
}

// Dial opens the websocket session for token against the server at baseURL.
func Dial(ctx context.Context, baseURL, token string) (*Client, error) {
	wsURL, err := WebSocketURL(baseURL, token)
	if err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshakeTimeout,
	}

	conn, resp, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
			return nil, fmt.Errorf("websocket handshake failed: %s: %w", resp.Status, err)
		}
		return nil, fmt.Errorf("dial websocket: %w", err)
	}

	return &Client{
		conn:   conn,
		hub:    NewHub(),
		done:   make(chan struct{}),
		logger: logx.Component("realtime"),
	}, nil
}

// Subscribe returns a stream of events of type t and its cancel function.
func (c *Client) Subscribe(t wire.EventType, buffer int) (<-chan wire.Event, func()) {
	return c.hub.Subscribe(t, buffer)
}

// Drops reports event types that a slow subscriber missed.
func (c *Client) Drops() <-chan wire.EventType {
	return c.hub.Drops()
}

// Done is closed when the session has ended.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Run reads events until the connection fails or ctx is cancelled, then
// closes every subscription. It returns nil on cancellation.
func (c *Client) Run(ctx context.Context) error {
	defer c.Close()

	stop := context.AfterFunc(ctx, func() { c.Close() })
	defer stop()

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return err
	}
	c.conn.SetPingHandler(func(appData string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			return err
		}
		c.writeMu.Lock()
		defer c.writeMu.Unlock()
		return c.conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
	})

	for {
		var ev wire.Event
		if err := c.conn.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read event: %w", err)
		}

		c.dispatch(ev)
	}
}

func (c *Client) dispatch(ev wire.Event) {
	switch ev.Type {
	case wire.TypeTokenUpdate:
		var p wire.TokenPayload
		if err := ev.Decode(&p); err != nil {
			c.logger.Warn().Err(err).Msg("Malformed token update")
			break
		}
		if c.OnToken != nil {
			c.OnToken(p.Token)
		}
	case wire.TypeError:
		var p wire.ErrorPayload
		if err := ev.Decode(&p); err == nil {
			c.logger.Warn().Int("code", p.Code).Str("message", p.Message).Msg("Server reported an error")
		}
	}

	c.hub.Publish(ev)
}

// Send writes an event to the server.
func (c *Client) Send(ev wire.Event) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteJSON(ev)
}

// SyncPresence asks the server to resend the current online set.
func (c *Client) SyncPresence() error {
	return c.Send(wire.Event{Type: wire.TypePresenceSync, Timestamp: time.Now().UnixMilli()})
}

// Close sends a close frame, shuts the socket, and ends all subscriptions.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)

		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()

		err = c.conn.Close()
		c.hub.Close()
	})
	return err
}
