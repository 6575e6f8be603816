/*
Package wire defines the realtime event envelope shared by the server and the CLI client.

Every frame on the websocket is a JSON object of the form

	{"type": "message:new", "payload": {...}, "timestamp": 1718000000000}

where timestamp is the server time in Unix milliseconds.
*/
package wire

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType names the kind of a realtime event.
type EventType string

const (
	// TypePresenceUpdate carries the full online set; sent to every connection on connect/disconnect.
	TypePresenceUpdate EventType = "presence:update"

	// TypeMessageNew carries one persisted message; sent to every live connection of its receiver.
	TypeMessageNew EventType = "message:new"

	// TypeTokenUpdate carries a refreshed identity token for a long-lived connection.
	TypeTokenUpdate EventType = "token:update"

	// TypeError reports a problem with an inbound frame.
	TypeError EventType = "error"

	// TypePresenceSync is sent by a client to ask for the current online set.
	TypePresenceSync EventType = "presence:sync"
)

// Event is the envelope of every realtime frame.
type Event struct {
	Type      EventType       `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// PresencePayload is the payload of TypePresenceUpdate.
type PresencePayload struct {
	UserIDs []string `json:"userIds"`
}

// TokenPayload is the payload of TypeTokenUpdate.
type TokenPayload struct {
	Token string `json:"token"`
}

// ErrorPayload is the payload of TypeError.
type ErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// NewEvent marshals payload into a new Event stamped with the current time.
func NewEvent(t EventType, payload any) (Event, error) {
	ev := Event{
		Type:      t,
		Timestamp: time.Now().UnixMilli(),
	}

	if payload == nil {
		return ev, nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	ev.Payload = raw

	return ev, nil
}

// Decode unmarshals the event payload into dst.
func (e Event) Decode(dst any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("event %s has no payload", e.Type)
	}
	if err := json.Unmarshal(e.Payload, dst); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}
