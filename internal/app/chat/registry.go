/*
Package chat contains the server side of the realtime subsystem: the connection
registry, presence broadcasting, message delivery, and the websocket connection
lifecycle.

This file defines the Registry, the process-wide table of live connections keyed by
user and by connection id. It is the only shared mutable structure of the subsystem
and is safe for concurrent use.
*/
package chat

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"dmchat/internal/pkg/wire"
)

// ConnectionID identifies one live connection.
type ConnectionID string

// Handle is the transport side of a connection. Send must not block.
type Handle interface {
	Send(ev wire.Event) error
	Close()
}

// Connection is one registered transport session of one user.
type Connection struct {
	ID          ConnectionID
	UserID      string
	Handle      Handle
	ConnectedAt time.Time
}

// Registry maps users to their live connections.
type Registry struct {
	mu     sync.RWMutex
	byUser map[string]map[ConnectionID]Connection
	byConn map[ConnectionID]Connection
	now    func() time.Time
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		byUser: make(map[string]map[ConnectionID]Connection),
		byConn: make(map[ConnectionID]Connection),
		now:    time.Now,
	}
}

// Register adds a connection for userID. A user may hold any number of connections.
func (r *Registry) Register(userID string, h Handle) ConnectionID {
	conn := Connection{
		ID:          ConnectionID(uuid.NewString()),
		UserID:      userID,
		Handle:      h,
		ConnectedAt: r.now(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	conns, ok := r.byUser[userID]
	if !ok {
		conns = make(map[ConnectionID]Connection)
		r.byUser[userID] = conns
	}
	conns[conn.ID] = conn
	r.byConn[conn.ID] = conn

	return conn.ID
}

// Unregister removes exactly the given connection and returns it.
// It reports false when the connection is not registered, so repeated calls are harmless.
func (r *Registry) Unregister(id ConnectionID) (Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.byConn[id]
	if !ok {
		return Connection{}, false
	}

	delete(r.byConn, id)
	if conns := r.byUser[conn.UserID]; conns != nil {
		delete(conns, id)
		if len(conns) == 0 {
			delete(r.byUser, conn.UserID)
		}
	}

	return conn, true
}

// Get returns the connection with the given id.
func (r *Registry) Get(id ConnectionID) (Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.byConn[id]
	return conn, ok
}

// ConnectionsFor returns a snapshot of userID's live connections, oldest first.
func (r *Registry) ConnectionsFor(userID string) []Connection {
	r.mu.RLock()
	conns := make([]Connection, 0, len(r.byUser[userID]))
	for _, c := range r.byUser[userID] {
		conns = append(conns, c)
	}
	r.mu.RUnlock()

	sortConnections(conns)
	return conns
}

// OnlineUserIDs returns the sorted set of users with at least one live connection.
func (r *Registry) OnlineUserIDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.byUser))
	for id := range r.byUser {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	slices.Sort(ids)
	return ids
}

// All returns a snapshot of every live connection, oldest first.
func (r *Registry) All() []Connection {
	r.mu.RLock()
	conns := make([]Connection, 0, len(r.byConn))
	for _, c := range r.byConn {
		conns = append(conns, c)
	}
	r.mu.RUnlock()

	sortConnections(conns)
	return conns
}

// Len returns the number of live connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byConn)
}

func sortConnections(conns []Connection) {
	slices.SortFunc(conns, func(a, b Connection) int {
		if c := a.ConnectedAt.Compare(b.ConnectedAt); c != 0 {
			return c
		}
		return strings.Compare(string(a.ID), string(b.ID))
	})
}
