// Package correlation implements request/response correlation over the SSE
// bridge: allocate a request_id, hand a request event to a client, and wait
// for either a matching response or a timeout — exactly once.
package correlation

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/ssebridge/pkg/models"
	"github.com/codeready-toolchain/ssebridge/pkg/registry"
)

// DefaultTimeout is the response_timeout default from §6's configuration.
const DefaultTimeout = 30 * time.Second

// Layer resolves outbound requests against registered clients.
type Layer struct {
	reg    *registry.Registry
	logger *slog.Logger
}

// New builds a correlation Layer bound to reg.
func New(reg *registry.Registry) *Layer {
	return &Layer{reg: reg, logger: slog.Default().With("component", "correlation")}
}

// Request sends eventType/data to clientID as a request envelope and waits
// up to timeout for the client's response command. Returns the response
// data and ok=true on success=true; returns ok=false when the client is
// unknown, the event cannot be enqueued, the client answers success=false,
// or the timeout or ctx expires first. The pending slot is resolved exactly
// once: the timeout path and the response path race on the same
// PopHandler, so only one can ever run the handler body (see pkg/registry).
func (l *Layer) Request(ctx context.Context, clientID string, eventType models.EventType, data any, timeout time.Duration) (any, bool) {
	requestID := uuid.NewString()
	result := make(chan models.ResponseEnvelope, 1)

	ok := l.reg.RegisterHandler(clientID, requestID, func(resp models.ResponseEnvelope) {
		select {
		case result <- resp:
		default:
		}
	})
	if !ok {
		return nil, false
	}

	if !l.reg.Enqueue(clientID, models.Event{
		Type: eventType,
		Data: models.RequestEnvelope{RequestID: requestID, Data: data},
	}) {
		l.reg.PopHandler(clientID, requestID)
		return nil, false
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case resp := <-result:
		if !resp.Success {
			return nil, false
		}
		return resp.Data, true
	case <-ctx.Done():
		if _, found := l.reg.PopHandler(clientID, requestID); found {
			l.logger.Warn("correlation slot timed out", "client_id", clientID, "request_id", requestID, "timeout", timeout)
		}
		return nil, false
	}
}

// Resolve is called by the Command Router when a "response" command
// arrives. It looks up the matching handler and invokes it; a response
// whose request_id has no pending slot (already timed out, or unknown) is
// dropped with a warning, matching §4.4.
func (l *Layer) Resolve(clientID string, resp models.ResponseEnvelope) bool {
	handler, found := l.reg.PopHandler(clientID, resp.RequestID)
	if !found {
		l.logger.Warn("response for unknown or expired request_id", "client_id", clientID, "request_id", resp.RequestID)
		return false
	}
	handler(resp)
	return true
}
