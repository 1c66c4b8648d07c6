package bridge

import (
	"context"
	"log/slog"

	"github.com/codeready-toolchain/ssebridge/pkg/externalsvc"
	"github.com/codeready-toolchain/ssebridge/pkg/models"
)

// FileReadyHandler builds a chunk.FileReady callback that hands a fully
// reassembled inbound attachment to collector as a one-segment platform
// message. Constructed in cmd/ssebridge/main.go and passed to
// chunk.NewAssembler before the rest of the App is wired, since the
// assembler's callback is fixed at construction time.
func FileReadyHandler(collector externalsvc.MessageCollector) func(chunkID, filename, mimeType, fileType string, decoded []byte) {
	logger := slog.Default().With("component", "bridge")
	return func(chunkID, filename, mimeType, fileType string, decoded []byte) {
		segType := models.SegmentFile
		if fileType == string(models.SegmentImage) {
			segType = models.SegmentImage
		}

		msg := models.PlatformMessage{
			MessageID: chunkID,
			ContentSegments: []models.Segment{{
				Type:     segType,
				Name:     filename,
				MimeType: mimeType,
				Size:     int64(len(decoded)),
			}},
		}

		if err := collector.CollectMessage(context.Background(), "", "", "", msg); err != nil {
			logger.Error("collect reassembled chunk failed", "chunk_id", chunkID, "error", err)
		}
	}
}
