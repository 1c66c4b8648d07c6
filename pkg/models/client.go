// Package models holds the data types shared across the SSE bridge and
// timer engine packages.
package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Client is a single connected SSE client: one long-lived event stream plus
// one HTTP command endpoint.
type Client struct {
	ClientID    string
	Name        string
	Platform    string
	Version     string
	ConnectedAt time.Time

	// Alive is false once the owning stream generator has exited; an
	// unregistered client is never observed with Alive true.
	Alive bool
}

// ChannelSet returns a defensive copy is intentionally NOT provided here;
// subscription state lives in the registry, not on Client, so that the
// registry remains the sole mutator of the client set (see pkg/registry).

// EventType enumerates the event names the server writes onto the SSE
// stream or onto a client's event queue.
type EventType string

const (
	EventConnected          EventType = "connected"
	EventHeartbeat          EventType = "heartbeat"
	EventSendMessage        EventType = "send_message"
	EventGetUserInfo        EventType = "get_user_info"
	EventGetChannelInfo     EventType = "get_channel_info"
	EventGetSelfInfo        EventType = "get_self_info"
	EventSetMessageReaction EventType = "set_message_reaction"
	EventFileChunk          EventType = "file_chunk"
	EventFileChunkComplete  EventType = "file_chunk_complete"
)

// Event is the tagged-union wire envelope: Type selects the shape of Data.
// MarshalSSE renders it as the two-line "event: T\ndata: JSON\n\n" framing.
type Event struct {
	Type EventType
	Data any
}

// MarshalSSE renders the event as the two-line text/event-stream framing:
// "event: <type>\ndata: <json>\n\n". A Data value that fails to marshal is
// reported as an error rather than silently dropping the event.
func (e Event) MarshalSSE() ([]byte, error) {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return nil, fmt.Errorf("marshal event %q data: %w", e.Type, err)
	}
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", e.Type, data)), nil
}

// ConnectedData is the payload of the connected event.
type ConnectedData struct {
	ClientID  string `json:"client_id"`
	Timestamp int64  `json:"timestamp"`
}

// HeartbeatData is the payload of the heartbeat event.
type HeartbeatData struct {
	Timestamp int64 `json:"timestamp"`
}

// RequestEnvelope is the data of any event that expects a client reply.
type RequestEnvelope struct {
	RequestID string `json:"request_id"`
	Data      any    `json:"data"`
}

// ResponseEnvelope is what the client POSTs back to resolve a correlation slot.
type ResponseEnvelope struct {
	RequestID string `json:"request_id"`
	Success   bool   `json:"success"`
	Data      any    `json:"data"`
}
