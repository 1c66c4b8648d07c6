package bridge

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/ssebridge/pkg/chunk"
	"github.com/codeready-toolchain/ssebridge/pkg/config"
	"github.com/codeready-toolchain/ssebridge/pkg/correlation"
	"github.com/codeready-toolchain/ssebridge/pkg/dispatch"
	"github.com/codeready-toolchain/ssebridge/pkg/externalsvc/fake"
	"github.com/codeready-toolchain/ssebridge/pkg/registry"
)

func newTestApp(t *testing.T, accessKey string) (*App, *fake.MessageCollector) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	reg := registry.New()
	corr := correlation.New(reg)
	emitter := chunk.NewEmitter()
	disp := dispatch.New(reg, corr, emitter)
	collector := &fake.MessageCollector{}
	assembler := chunk.NewAssembler(FileReadyHandler(collector))

	cfg := &config.Config{
		HTTP:      config.HTTPConfig{ListenAddr: ":0", MountPath: "/sse"},
		AccessKey: accessKey,
	}

	app := New(cfg, reg, corr, disp, emitter, assembler, nil, nil, nil, collector, nil, nil)
	return app, collector
}

func newRouter(app *App) *gin.Engine {
	r := gin.New()
	app.Routes(r)
	return r
}

func postCommand(t *testing.T, router http.Handler, body map[string]any, clientID, accessKey string) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/sse/connect", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if clientID != "" {
		req.Header.Set("X-Client-ID", clientID)
	}
	if accessKey != "" {
		req.Header.Set("X-Access-Key", accessKey)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRegisterCommandReturnsClientID(t *testing.T) {
	app, _ := newTestApp(t, "")
	router := newRouter(app)

	rec := postCommand(t, router, map[string]any{
		"cmd": "register", "platform": "wechat", "client_name": "alice", "client_version": "1.0",
	}, "", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["client_id"])
}

func TestUnknownCommandReturns400(t *testing.T) {
	app, _ := newTestApp(t, "")
	router := newRouter(app)

	rec := postCommand(t, router, map[string]any{"cmd": "bogus"}, "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubscribeRequiresClientID(t *testing.T) {
	app, _ := newTestApp(t, "")
	router := newRouter(app)

	rec := postCommand(t, router, map[string]any{"cmd": "subscribe", "channel_ids": []string{"g1"}}, "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubscribeUnknownClientReturns404(t *testing.T) {
	app, _ := newTestApp(t, "")
	router := newRouter(app)

	rec := postCommand(t, router, map[string]any{"cmd": "subscribe", "channel_ids": []string{"g1"}}, "nonexistent", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAccessKeyGatesCommands(t *testing.T) {
	app, _ := newTestApp(t, "secret")
	router := newRouter(app)

	rec := postCommand(t, router, map[string]any{"cmd": "register", "platform": "p", "client_name": "a"}, "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = postCommand(t, router, map[string]any{"cmd": "register", "platform": "p", "client_name": "a"}, "", "secret")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestResponseForUnknownRequestReturnsFalse(t *testing.T) {
	app, _ := newTestApp(t, "")
	router := newRouter(app)

	rec := postCommand(t, router, map[string]any{"cmd": "register", "platform": "p", "client_name": "a"}, "", "")
	var reg map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reg))
	clientID := reg["client_id"].(string)

	rec = postCommand(t, router, map[string]any{
		"cmd": "response", "request_id": "unknown-request", "success": true, "data": map[string]any{"success": true},
	}, clientID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp["success"].(bool), "unknown request_id resolves to false")
}

func TestMessageCommandForwardsToCollector(t *testing.T) {
	app, collector := newTestApp(t, "")
	router := newRouter(app)

	rec := postCommand(t, router, map[string]any{"cmd": "register", "platform": "wechat", "client_name": "a"}, "", "")
	var reg map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reg))
	clientID := reg["client_id"].(string)

	rec = postCommand(t, router, map[string]any{
		"cmd":        "message",
		"channel_id": "g1",
		"message": map[string]any{
			"msg_id":  "m1",
			"from_id": "u1",
			"segments": []map[string]any{
				{"type": "text", "content": "hello"},
			},
		},
	}, clientID, "")
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, collector.Received, 1)
	assert.Equal(t, "hello", collector.Received[0].ContentText)
}

func TestMessageUnknownClientReturns404(t *testing.T) {
	app, collector := newTestApp(t, "")
	router := newRouter(app)

	rec := postCommand(t, router, map[string]any{
		"cmd":        "message",
		"channel_id": "g1",
		"message": map[string]any{
			"msg_id":  "m1",
			"from_id": "u1",
			"segments": []map[string]any{
				{"type": "text", "content": "hello"},
			},
		},
	}, "nonexistent", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, collector.Received)
}
