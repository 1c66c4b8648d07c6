package registry

import (
	"context"
	"time"

	"github.com/codeready-toolchain/ssebridge/pkg/models"
)

const (
	heartbeatInterval = 5 * time.Second
	pollInterval      = 1 * time.Second
)

// RunStream drives one client's SSE lifecycle: emit connected, then loop
// emitting heartbeats every 5s and queued events as they arrive, until the
// client goes dead or ctx (tied to the underlying HTTP connection) is
// cancelled. emit is called for every event the generator wants written to
// the wire; it returns an error if the write failed (peer gone).
func (r *Registry) RunStream(ctx context.Context, clientID string, emit func(models.Event) error) error {
	if err := emit(models.Event{
		Type: models.EventConnected,
		Data: models.ConnectedData{ClientID: clientID, Timestamp: time.Now().Unix()},
	}); err != nil {
		return err
	}

	events, ok := r.EventChannel(clientID)
	if !ok {
		return nil
	}

	lastHeartbeat := time.Now()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		if !r.IsAlive(clientID) {
			return nil
		}
		select {
		case <-ctx.Done():
			r.Unregister(clientID)
			return ctx.Err()
		case ev := <-events:
			if err := emit(ev); err != nil {
				r.Unregister(clientID)
				return err
			}
		case <-ticker.C:
			if time.Since(lastHeartbeat) >= heartbeatInterval {
				now := time.Now()
				if err := emit(models.Event{Type: models.EventHeartbeat, Data: models.HeartbeatData{Timestamp: now.Unix()}}); err != nil {
					r.Unregister(clientID)
					return err
				}
				lastHeartbeat = now
				r.Touch(clientID)
			}
		}
	}
}
