package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/ssebridge/pkg/models"
)

func TestRegisterAndLookup(t *testing.T) {
	r := New()
	client := r.Register("alice", "wechat", "1.0")
	require.NotEmpty(t, client.ClientID)

	got, ok := r.LookupByID(client.ClientID)
	require.True(t, ok)
	assert.Equal(t, "alice", got.Name)
	assert.True(t, got.Alive)
}

func TestUnregisterRemovesClient(t *testing.T) {
	r := New()
	client := r.Register("bob", "telegram", "1.0")
	r.Unregister(client.ClientID)

	_, ok := r.LookupByID(client.ClientID)
	assert.False(t, ok)
}

func TestSubscribeAndByChannel(t *testing.T) {
	r := New()
	client := r.Register("carol", "qq", "1.0")
	require.NoError(t, r.Subscribe(client.ClientID, []string{"g1", "g2"}))

	assert.ElementsMatch(t, []string{client.ClientID}, r.ByChannel("g1"))
	assert.ElementsMatch(t, []string{client.ClientID}, r.ByChannel("g2"))
	assert.Empty(t, r.ByChannel("g3"))

	require.NoError(t, r.Unsubscribe(client.ClientID, []string{"g1"}))
	assert.Empty(t, r.ByChannel("g1"))
}

func TestBroadcastEnqueuesToSubscribers(t *testing.T) {
	r := New()
	client := r.Register("dave", "qq", "1.0")
	require.NoError(t, r.Subscribe(client.ClientID, []string{"g1"}))

	r.Broadcast("g1", models.Event{Type: models.EventHeartbeat, Data: models.HeartbeatData{Timestamp: 1}})

	events, ok := r.EventChannel(client.ClientID)
	require.True(t, ok)
	select {
	case ev := <-events:
		assert.Equal(t, models.EventHeartbeat, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("expected an event to be enqueued")
	}
}

func TestReuseOrRegisterReusesLiveClient(t *testing.T) {
	r := New()
	client := r.Register("erin", "sse", "1.0")
	require.NoError(t, r.Subscribe(client.ClientID, []string{"g1"}))

	reused := r.ReuseOrRegister(client.ClientID, "erin", "sse", "1.0")
	assert.Equal(t, client.ClientID, reused.ClientID)
	assert.ElementsMatch(t, []string{client.ClientID}, r.ByChannel("g1"))
}

func TestReuseOrRegisterCreatesNewWhenUnknown(t *testing.T) {
	r := New()
	reused := r.ReuseOrRegister("does-not-exist", "frank", "sse", "1.0")
	assert.NotEqual(t, "does-not-exist", reused.ClientID)
}

func TestHandlerPopOnce(t *testing.T) {
	r := New()
	client := r.Register("gina", "sse", "1.0")

	called := 0
	ok := r.RegisterHandler(client.ClientID, "req-1", func(models.ResponseEnvelope) { called++ })
	require.True(t, ok)

	handler, found := r.PopHandler(client.ClientID, "req-1")
	require.True(t, found)
	handler(models.ResponseEnvelope{RequestID: "req-1", Success: true})
	assert.Equal(t, 1, called)

	_, found = r.PopHandler(client.ClientID, "req-1")
	assert.False(t, found, "handler must be removable only once")
}

func TestExpirySweepRemovesStaleClients(t *testing.T) {
	r := New()
	r.expiryTimeout = 10 * time.Millisecond
	r.sweepInterval = 5 * time.Millisecond

	client := r.Register("henry", "sse", "1.0")

	r.Start(t.Context())
	defer r.Stop()

	assert.Eventually(t, func() bool {
		_, ok := r.LookupByID(client.ClientID)
		return !ok
	}, time.Second, 5*time.Millisecond)
}
