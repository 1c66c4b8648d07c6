// Package dispatch delivers outbound platform messages to subscribed SSE
// clients: oversize attachments go straight to the Chunk Emitter, everything
// else goes through send-with-ack (or fire-and-forget in ignore-response
// mode), grounded on the original adapter's send_message_to_clients.
package dispatch

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/codeready-toolchain/ssebridge/pkg/chunk"
	"github.com/codeready-toolchain/ssebridge/pkg/correlation"
	"github.com/codeready-toolchain/ssebridge/pkg/models"
	"github.com/codeready-toolchain/ssebridge/pkg/registry"
)

// SendMessagePayload is the request data carried by a send_message event.
type SendMessagePayload struct {
	ChannelID   string           `json:"channel_id"`
	ChannelName string           `json:"channel_name"`
	Segments    []models.Segment `json:"segments"`
}

// ResponsePayload is what a client's "response" command carries back for a
// send_message request.
type ResponsePayload struct {
	Success bool `json:"success"`
}

// Dispatcher resolves a channel to its subscribed clients and drives
// delivery of one outbound message to them.
type Dispatcher struct {
	reg     *registry.Registry
	corr    *correlation.Layer
	emitter *chunk.Emitter
	logger  *slog.Logger

	// ResponseTimeout bounds how long Send waits for a client ack per
	// client attempted, unless IgnoreResponse is set.
	ResponseTimeout time.Duration

	// IgnoreResponse short-circuits the ack wait: a message is reported
	// delivered as soon as it is handed to the first live client's queue.
	IgnoreResponse bool
}

// New builds a Dispatcher over reg/corr/emitter.
func New(reg *registry.Registry, corr *correlation.Layer, emitter *chunk.Emitter) *Dispatcher {
	return &Dispatcher{
		reg:             reg,
		corr:            corr,
		emitter:         emitter,
		logger:          slog.Default().With("component", "dispatch"),
		ResponseTimeout: correlation.DefaultTimeout,
	}
}

// Send delivers msg to every client subscribed to channel. If any attached
// image/file segment is oversize it is shipped via the chunk emitter and
// Send returns true once all chunks reach at least one client, without
// waiting on a message ack for those bytes. Otherwise it is sent via
// send-with-ack (or fire-and-forget) and Send reports whether at least one
// client accepted it.
func (d *Dispatcher) Send(ctx context.Context, channel string, msg models.OutboundMessage) bool {
	clientIDs := d.reg.ByChannel(channel)
	if len(clientIDs) == 0 {
		d.logger.Warn("no subscribed clients", "channel", channel)
		return false
	}

	if hasLarge, delivered := d.processLargeFiles(ctx, msg, clientIDs); hasLarge {
		if delivered {
			d.logger.Info("message contained large attachment, delivered via chunk stream", "channel", channel)
		}
		return delivered
	}

	return d.sendNormal(ctx, clientIDs, msg)
}

// processLargeFiles walks msg's segments for oversize inline attachments and
// ships each one to every clientID via the chunk emitter. hasLarge is true if
// any segment required chunking (meaning the logical message went through
// the chunk stream and must not also be sent normally); delivered is true if
// every such segment reached at least one client.
func (d *Dispatcher) processLargeFiles(ctx context.Context, msg models.OutboundMessage, clientIDs []string) (hasLarge, delivered bool) {
	allDelivered := true

	for _, seg := range msg.Segments {
		if seg.Type != models.SegmentImage && seg.Type != models.SegmentFile {
			continue
		}
		data, ok := decodeInline(seg.Base64URL)
		if !ok || !chunk.ShouldChunk(data) {
			continue
		}

		hasLarge = true
		filename := seg.Name
		if filename == "" {
			filename = "attachment"
		}
		d.logger.Info("large attachment detected, chunking", "filename", filename)

		segDelivered := false
		for _, clientID := range clientIDs {
			cid := clientID
			ok := d.emitter.Send(ctx, data, seg.MimeType, filename, string(seg.Type), func(ev models.Event) error {
				if !d.reg.Enqueue(cid, ev) {
					return errEnqueueFailed
				}
				return nil
			})
			if ok {
				segDelivered = true
			} else {
				d.logger.Error("chunk delivery failed for client", "client_id", cid, "filename", filename)
			}
		}
		if !segDelivered {
			allDelivered = false
		}
	}

	return hasLarge, hasLarge && allDelivered
}

// sendNormal sends msg as a single send_message event, trying clients in
// order until one accepts it.
func (d *Dispatcher) sendNormal(ctx context.Context, clientIDs []string, msg models.OutboundMessage) bool {
	payload := SendMessagePayload{
		ChannelID:   msg.ChannelID,
		ChannelName: msg.ChannelName,
		Segments:    msg.Segments,
	}

	if d.IgnoreResponse {
		d.logger.Warn("ignore-response mode enabled, not waiting for client ack")
		for _, clientID := range clientIDs {
			if d.reg.Enqueue(clientID, models.Event{Type: models.EventSendMessage, Data: models.RequestEnvelope{Data: payload}}) {
				d.logger.Info("message pushed to client (ignore-response mode)", "client_id", clientID)
				return true
			}
		}
		return false
	}

	for _, clientID := range clientIDs {
		resp, ok := d.corr.Request(ctx, clientID, models.EventSendMessage, payload, d.ResponseTimeout)
		if !ok {
			continue
		}
		if r, ok := resp.(ResponsePayload); ok && !r.Success {
			continue
		}
		return true
	}
	return false
}

// decodeInline extracts the raw base64 text from a base64url field shaped
// either as "base64://<data>" or "data:<mime>;base64,<data>".
func decodeInline(base64URL string) (string, bool) {
	if rest, ok := strings.CutPrefix(base64URL, "base64://"); ok {
		return rest, true
	}
	if strings.HasPrefix(base64URL, "data:") {
		if _, data, found := strings.Cut(base64URL, ","); found {
			return data, true
		}
	}
	return "", false
}

var errEnqueueFailed = enqueueError{}

type enqueueError struct{}

func (enqueueError) Error() string { return "client queue full or client gone" }
