package retryclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/ssebridge/pkg/models"
)

func TestSendSucceedsImmediately(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "c1", r.Header.Get("X-Client-ID"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	q := New(srv.URL)
	err := q.Send(context.Background(), "c1", models.ResponseEnvelope{RequestID: "r1", Success: true})
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, int64(1), q.Snapshot().Sent)
}

func TestFailedSendIsRetriedAndEventuallySucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	q := New(srv.URL)
	q.RetryInterval = 10 * time.Millisecond
	q.MaxRetries = 5
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	defer q.Stop()

	err := q.Send(context.Background(), "c1", models.ResponseEnvelope{RequestID: "r1", Success: true})
	require.Error(t, err) // first attempt fails synchronously and is queued

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&calls) >= 3
	}, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		return q.Snapshot().Sent == 1
	}, time.Second, 5*time.Millisecond)
}

func TestAbandonedAfterMaxRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	q := New(srv.URL)
	q.RetryInterval = 5 * time.Millisecond
	q.MaxRetries = 2
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	defer q.Stop()

	err := q.Send(context.Background(), "c1", models.ResponseEnvelope{RequestID: "r1", Success: true})
	require.Error(t, err)

	require.Eventually(t, func() bool {
		return q.Snapshot().Abandoned == 1
	}, time.Second, 5*time.Millisecond)
}
