package bridge

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamEmitsConnectedEventThenClosesOnContextDone(t *testing.T) {
	app, _ := newTestApp(t, "")
	router := newRouter(app)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/sse/connect?client_name=watcher", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "event: connected")
	assert.True(t, strings.Contains(rec.Body.String(), `"client_id"`))
}

func TestStreamRejectsBadAccessKey(t *testing.T) {
	app, _ := newTestApp(t, "secret")
	router := newRouter(app)

	req := httptest.NewRequest(http.MethodGet, "/sse/connect", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
