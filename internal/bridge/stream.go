package bridge

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/ssebridge/pkg/apierr"
	"github.com/codeready-toolchain/ssebridge/pkg/models"
)

// handleStream serves GET /connect: one long-lived text/event-stream
// response per client, reusing an existing client_id on reconnect and
// auto-generating a name when none is supplied.
func (a *App) handleStream(c *gin.Context) {
	if !a.checkAccessKey(c) {
		return
	}

	platform := c.Query("platform")
	clientName := c.Query("client_name")
	if clientName == "" {
		clientName = "sse-client-" + randomHex(4)
	}
	clientID := c.Query("client_id")

	client := a.Registry.ReuseOrRegister(clientID, clientName, platform, c.Query("client_version"))

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		apierr.WriteHTTP(c, fmt.Errorf("streaming unsupported"))
		return
	}

	ctx := c.Request.Context()
	err := a.Registry.RunStream(ctx, client.ClientID, func(ev models.Event) error {
		frame, err := ev.MarshalSSE()
		if err != nil {
			return err
		}
		if _, err := c.Writer.Write(frame); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
	if err != nil {
		a.Logger.Info("sse stream closed", "client_id", client.ClientID, "error", err)
	}
}

func randomHex(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "00000000"[:n*2]
	}
	return hex.EncodeToString(buf)
}
