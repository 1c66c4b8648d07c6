package correlation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/ssebridge/pkg/models"
	"github.com/codeready-toolchain/ssebridge/pkg/registry"
)

func TestRequestResolvedBySuccessResponse(t *testing.T) {
	reg := registry.New()
	client := reg.Register("alice", "sse", "1.0")
	layer := New(reg)

	done := make(chan struct{})
	var result any
	var ok bool
	go func() {
		result, ok = layer.Request(t.Context(), client.ClientID, models.EventSendMessage, map[string]any{"x": 1}, time.Second)
		close(done)
	}()

	events, _ := reg.EventChannel(client.ClientID)
	ev := <-events
	req := ev.Data.(models.RequestEnvelope)

	resolved := layer.Resolve(client.ClientID, models.ResponseEnvelope{
		RequestID: req.RequestID,
		Success:   true,
		Data:      map[string]any{"message_id": "m1"},
	})
	require.True(t, resolved)

	<-done
	assert.True(t, ok)
	assert.NotNil(t, result)
}

func TestRequestTimesOutAndLateResponseDropped(t *testing.T) {
	reg := registry.New()
	client := reg.Register("bob", "sse", "1.0")
	layer := New(reg)

	_, ok := layer.Request(t.Context(), client.ClientID, models.EventSendMessage, nil, 20*time.Millisecond)
	assert.False(t, ok)

	// A response arriving after the timeout must find no pending slot.
	resolved := layer.Resolve(client.ClientID, models.ResponseEnvelope{RequestID: "whatever", Success: true})
	assert.False(t, resolved)
}

func TestRequestToUnknownClientFails(t *testing.T) {
	reg := registry.New()
	layer := New(reg)
	_, ok := layer.Request(t.Context(), "no-such-client", models.EventSendMessage, nil, time.Second)
	assert.False(t, ok)
}

func TestResolveDoesNotDoubleInvoke(t *testing.T) {
	reg := registry.New()
	client := reg.Register("carol", "sse", "1.0")
	layer := New(reg)

	calls := 0
	reg.RegisterHandler(client.ClientID, "req-x", func(models.ResponseEnvelope) { calls++ })

	assert.True(t, layer.Resolve(client.ClientID, models.ResponseEnvelope{RequestID: "req-x", Success: true}))
	assert.False(t, layer.Resolve(client.ClientID, models.ResponseEnvelope{RequestID: "req-x", Success: true}))
	assert.Equal(t, 1, calls)
}
