package bridge

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/ssebridge/pkg/apierr"
	"github.com/codeready-toolchain/ssebridge/pkg/chunk"
	"github.com/codeready-toolchain/ssebridge/pkg/convert"
	"github.com/codeready-toolchain/ssebridge/pkg/dispatch"
	"github.com/codeready-toolchain/ssebridge/pkg/models"
)

// Routes registers the SSE stream and command endpoints under
// cfg.HTTP.MountPath, and the health endpoint at /healthz on router itself.
func (a *App) Routes(router gin.IRouter) {
	mount := router.Group(a.Config.HTTP.MountPath)
	mount.GET("/connect", a.handleStream)
	mount.POST("/connect", a.handleCommand)
	router.GET("/healthz", a.handleHealthz)
}

func (a *App) checkAccessKey(c *gin.Context) bool {
	if a.Config.AccessKey == "" {
		return true
	}
	key := c.GetHeader("X-Access-Key")
	if key == "" {
		key = c.Query("access_key")
	}
	if key != a.Config.AccessKey {
		apierr.WriteHTTP(c, apierr.ErrAuth)
		return false
	}
	return true
}

// commandEnvelope is the shared prefix of every POST /connect body: cmd
// selects which typed payload the rest of the body carries.
type commandEnvelope struct {
	Cmd string `json:"cmd"`
}

func (a *App) handleCommand(c *gin.Context) {
	if !a.checkAccessKey(c) {
		return
	}

	body, err := c.GetRawData()
	if err != nil {
		apierr.WriteHTTP(c, apierr.NewValidationError("", "could not read request body"))
		return
	}

	var envelope commandEnvelope
	if err := bindJSON(body, &envelope); err != nil {
		apierr.WriteHTTP(c, apierr.NewValidationError("cmd", "malformed JSON body"))
		return
	}

	clientID := c.GetHeader("X-Client-ID")
	if clientID != "" {
		a.Registry.Touch(clientID)
	}

	switch envelope.Cmd {
	case "register":
		a.handleRegister(c, body)
	case "subscribe":
		a.handleSubscribe(c, body, clientID)
	case "unsubscribe":
		a.handleUnsubscribe(c, body, clientID)
	case "message":
		a.handleMessage(c, body, clientID)
	case "response":
		a.handleResponse(c, body, clientID)
	default:
		apierr.WriteHTTP(c, apierr.NewValidationError("cmd", "unknown command: "+envelope.Cmd))
	}
}

type registerRequest struct {
	Platform      string `json:"platform"`
	ClientName    string `json:"client_name"`
	ClientVersion string `json:"client_version"`
}

func (a *App) handleRegister(c *gin.Context, body []byte) {
	var req registerRequest
	if err := bindJSON(body, &req); err != nil {
		apierr.WriteHTTP(c, apierr.NewValidationError("platform", "malformed register body"))
		return
	}
	if req.Platform == "" || req.ClientName == "" {
		apierr.WriteHTTP(c, apierr.NewValidationError("platform", "platform and client_name are required"))
		return
	}

	client := a.Registry.Register(req.ClientName, req.Platform, req.ClientVersion)
	c.JSON(http.StatusOK, gin.H{"client_id": client.ClientID, "message": "registered"})
}

type channelsRequest struct {
	ChannelIDs []string `json:"channel_ids"`
}

func (a *App) handleSubscribe(c *gin.Context, body []byte, clientID string) {
	if clientID == "" {
		apierr.WriteHTTP(c, apierr.NewValidationError("X-Client-ID", "required"))
		return
	}
	var req channelsRequest
	if err := bindJSON(body, &req); err != nil {
		apierr.WriteHTTP(c, apierr.NewValidationError("channel_ids", "malformed subscribe body"))
		return
	}
	if err := a.Registry.Subscribe(clientID, req.ChannelIDs); err != nil {
		apierr.WriteHTTP(c, apierr.ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "subscribed"})
}

func (a *App) handleUnsubscribe(c *gin.Context, body []byte, clientID string) {
	if clientID == "" {
		apierr.WriteHTTP(c, apierr.NewValidationError("X-Client-ID", "required"))
		return
	}
	var req channelsRequest
	if err := bindJSON(body, &req); err != nil {
		apierr.WriteHTTP(c, apierr.NewValidationError("channel_ids", "malformed unsubscribe body"))
		return
	}
	if err := a.Registry.Unsubscribe(clientID, req.ChannelIDs); err != nil {
		apierr.WriteHTTP(c, apierr.ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "unsubscribed"})
}

type messageRequest struct {
	ChannelID string              `json:"channel_id"`
	Message   models.InboundMessage `json:"message"`
	Chunk     *chunk.ChunkData    `json:"chunk"`
}

func (a *App) handleMessage(c *gin.Context, body []byte, clientID string) {
	if clientID == "" {
		apierr.WriteHTTP(c, apierr.NewValidationError("X-Client-ID", "required"))
		return
	}
	var req messageRequest
	if err := bindJSON(body, &req); err != nil {
		apierr.WriteHTTP(c, apierr.NewValidationError("message", "malformed message body"))
		return
	}

	// A message carrying an inbound file_chunk frame is routed to the
	// assembler instead of the platform ingest pipeline; the ingest call
	// happens once the full file is reassembled (see FileReadyHandler).
	if req.Chunk != nil {
		if err := a.Assembler.Accept(*req.Chunk); err != nil {
			apierr.WriteHTTP(c, apierr.NewValidationError("chunk", err.Error()))
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "chunk accepted"})
		return
	}

	client, ok := a.Registry.LookupByID(clientID)
	if !ok {
		apierr.WriteHTTP(c, apierr.ErrNotFound)
		return
	}

	req.Message.ChannelID = req.ChannelID
	platformMsg := convert.ToPlatformMessage(req.Message)
	if err := a.Collector.CollectMessage(c.Request.Context(), client.Platform, req.ChannelID, req.Message.FromID, platformMsg); err != nil {
		apierr.WriteHTTP(c, apierr.ErrTransientDelivery)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "accepted"})
}

func (a *App) handleResponse(c *gin.Context, body []byte, clientID string) {
	if clientID == "" {
		apierr.WriteHTTP(c, apierr.NewValidationError("X-Client-ID", "required"))
		return
	}
	var resp models.ResponseEnvelope
	if err := bindJSON(body, &resp); err != nil {
		apierr.WriteHTTP(c, apierr.NewValidationError("response", "malformed response body"))
		return
	}

	if d, ok := resp.Data.(map[string]any); ok {
		if success, ok := d["success"].(bool); ok {
			resp.Data = dispatch.ResponsePayload{Success: success}
		}
	}

	resolved := a.Correlation.Resolve(clientID, resp)
	c.JSON(http.StatusOK, gin.H{"success": resolved})
}
