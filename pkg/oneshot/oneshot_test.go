package oneshot

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/ssebridge/pkg/externalsvc/fake"
	"github.com/codeready-toolchain/ssebridge/pkg/models"
)

func newTestService(t *testing.T) (*Service, *fake.MessageService, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "timers_oneshot.json")
	msgSvc := &fake.MessageService{}
	return New(msgSvc, path), msgSvc, path
}

func TestSetTimerRejectsPastTriggerTime(t *testing.T) {
	svc, _, _ := newTestService(t)
	ok, err := svc.SetTimer(context.Background(), "chat1", time.Now().Add(-time.Minute).Unix(), "desc", false, false, nil, nil)
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrTriggerTimeInPast)
}

func TestSetTimerZeroSchedulesImmediateAgentTask(t *testing.T) {
	svc, msgSvc, _ := newTestService(t)
	ok, err := svc.SetTimer(context.Background(), "chat1", 0, "", false, false, nil, nil)
	require.NoError(t, err)
	assert.True(t, ok)

	_, scheduled := msgSvc.Snapshot()
	assert.Equal(t, []string{"chat1"}, scheduled)
}

func TestSetTimerNegativeClearsAll(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	future := time.Now().Add(time.Hour).Unix()

	_, err := svc.SetTimer(ctx, "chat1", future, "a", true, false, nil, nil)
	require.NoError(t, err)
	_, err = svc.SetTimer(ctx, "chat1", future, "b", true, true, nil, nil)
	require.NoError(t, err)
	require.Len(t, svc.GetTimers("chat1"), 2)

	ok, err := svc.SetTimer(ctx, "chat1", -1, "", true, false, nil, nil)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, svc.GetTimers("chat1"))
}

func TestSetTimerOverrideReplacesOnlyTemporary(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	future := time.Now().Add(time.Hour).Unix()

	_, err := svc.SetTimer(ctx, "chat1", future, "permanent", true, false, nil, nil)
	require.NoError(t, err)
	_, err = svc.SetTimer(ctx, "chat1", future, "temp-1", true, true, nil, nil)
	require.NoError(t, err)
	_, err = svc.SetTimer(ctx, "chat1", future+10, "temp-2", true, true, nil, nil)
	require.NoError(t, err)

	timers := svc.GetTimers("chat1")
	require.Len(t, timers, 2)

	var descs []string
	for _, tm := range timers {
		descs = append(descs, tm.EventDesc)
	}
	assert.Contains(t, descs, "permanent")
	assert.Contains(t, descs, "temp-2")
	assert.NotContains(t, descs, "temp-1")
}

func TestFireDuePushesSystemMessageAndPersists(t *testing.T) {
	svc, msgSvc, path := newTestService(t)
	ctx := context.Background()

	_, err := svc.SetTimer(ctx, "chat1", time.Now().Add(time.Hour).Unix(), "keep me", true, false, nil, nil)
	require.NoError(t, err)

	svc.mu.Lock()
	svc.byChat["chat1"][0].triggerTime = time.Now().Add(-time.Second).Unix()
	svc.mu.Unlock()

	svc.fireDue(ctx)

	pushed, _ := msgSvc.Snapshot()
	require.Len(t, pushed, 1)
	assert.Contains(t, pushed[0].AgentMessages, "keep me")
	assert.True(t, pushed[0].TriggerAgent)
	assert.Empty(t, svc.GetTimers("chat1"))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var file models.PersistedOneShotFile
	require.NoError(t, json.Unmarshal(raw, &file))
	assert.Equal(t, 1, file.Version)
	assert.Empty(t, file.Tasks)
}

func TestCallbackTimerIsNeverPersisted(t *testing.T) {
	svc, _, path := newTestService(t)
	ctx := context.Background()

	called := false
	_, err := svc.SetTimer(ctx, "chat1", time.Now().Add(time.Hour).Unix(), "", true, false, nil, func() error {
		called = true
		return nil
	})
	require.NoError(t, err)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "callback timers must not be persisted")

	svc.mu.Lock()
	svc.byChat["chat1"][0].triggerTime = time.Now().Add(-time.Second).Unix()
	svc.mu.Unlock()
	svc.fireDue(ctx)

	assert.True(t, called)
}

func TestLoadPersistedFiresWithinGraceAndDropsStale(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "timers_oneshot.json")
	now := time.Now().Unix()

	file := models.PersistedOneShotFile{
		Version: 1,
		Tasks: []models.PersistedOneShotTimer{
			{ChatKey: "chat1", TriggerTime: now - 100, EventDesc: "within grace"},
			{ChatKey: "chat1", TriggerTime: now - (misfireGraceSeconds + 100), EventDesc: "too stale"},
			{ChatKey: "chat1", TriggerTime: now + 3600, EventDesc: "still pending"},
		},
	}
	raw, err := json.Marshal(file)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	msgSvc := &fake.MessageService{}
	svc := New(msgSvc, path)
	svc.loadPersisted(context.Background())

	pushed, _ := msgSvc.Snapshot()
	require.Len(t, pushed, 1)
	assert.Contains(t, pushed[0].AgentMessages, "within grace")
	assert.Contains(t, pushed[0].AgentMessages, "（补发）")

	timers := svc.GetTimers("chat1")
	require.Len(t, timers, 1)
	assert.Equal(t, "still pending", timers[0].EventDesc)
}

func TestStartStopIdempotent(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	svc.Start(ctx)
	svc.Start(ctx) // second Start is a no-op
	svc.Stop()
	svc.Stop() // second Stop is a no-op
}
