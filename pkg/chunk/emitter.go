// Package chunk slices oversize base64 payloads into bounded SSE frames
// (the Chunk Emitter) and reassembles inbound frames back into whole files
// (the Chunk Assembler), because the event-stream transport cannot be
// trusted to carry arbitrarily large events — grounded on the original
// adapter's _send_chunked_data / _should_use_chunked_transfer.
package chunk

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/ssebridge/pkg/models"
)

const (
	// FrameSize is the base64 text length of one file_chunk frame.
	FrameSize = 64 * 1024

	// MaxInlineSize is the decoded-size threshold above which a payload
	// must be sent as chunks rather than inline in a message segment.
	MaxInlineSize = 1 * 1024 * 1024

	interChunkDelay = 10 * time.Millisecond
)

// ChunkData is the payload of a file_chunk event.
type ChunkData struct {
	ChunkID     string `json:"chunk_id"`
	ChunkIndex  int    `json:"chunk_index"`
	TotalChunks int    `json:"total_chunks"`
	ChunkData   string `json:"chunk_data"`
	ChunkSize   int    `json:"chunk_size"`
	TotalSize   int    `json:"total_size"`
	MimeType    string `json:"mime_type"`
	Filename    string `json:"filename"`
	FileType    string `json:"file_type"`
}

// ChunkComplete is the payload of a file_chunk_complete event.
type ChunkComplete struct {
	ChunkID string `json:"chunk_id"`
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ShouldChunk reports whether base64-encoded data (estimated via the 4:3
// base64 expansion ratio) exceeds MaxInlineSize decoded.
func ShouldChunk(base64Data string) bool {
	estimatedSize := len(base64Data) * 3 / 4
	return estimatedSize > MaxInlineSize
}

// Emitter slices a base64 payload into file_chunk frames and sends them via
// emit, one call per event. It is the caller's job to fan this out to every
// selected client; Emitter operates on a single destination at a time so
// dispatch can run it concurrently per client.
type Emitter struct {
	logger *slog.Logger
}

// NewEmitter builds a chunk Emitter.
func NewEmitter() *Emitter {
	return &Emitter{logger: slog.Default().With("component", "chunk-emitter")}
}

// Send slices data (base64) into FrameSize frames, mimeType/filename/fileType
// describe the whole file, and emit is invoked once per event in wire order:
// N file_chunk events, then one file_chunk_complete. A pacing delay is
// inserted between frames to avoid overrunning slow consumers. Returns
// false if any emit call failed; a best-effort failure completion is still
// emitted in that case.
func (e *Emitter) Send(ctx context.Context, data, mimeType, filename, fileType string, emit func(models.Event) error) bool {
	chunkID := uuid.NewString()
	totalSize := len(data) * 3 / 4
	totalChunks := int(math.Ceil(float64(len(data)) / float64(FrameSize)))

	e.logger.Info("starting chunked transfer", "chunk_id", chunkID, "filename", filename, "total_size", totalSize, "total_chunks", totalChunks)

	for i := 0; i < totalChunks; i++ {
		select {
		case <-ctx.Done():
			e.emitFailure(chunkID, filename, ctx.Err(), emit)
			return false
		default:
		}

		start := i * FrameSize
		end := start + FrameSize
		if end > len(data) {
			end = len(data)
		}
		frame := data[start:end]

		err := emit(models.Event{
			Type: models.EventFileChunk,
			Data: ChunkData{
				ChunkID:     chunkID,
				ChunkIndex:  i,
				TotalChunks: totalChunks,
				ChunkData:   frame,
				ChunkSize:   len(frame),
				TotalSize:   totalSize,
				MimeType:    mimeType,
				Filename:    filename,
				FileType:    fileType,
			},
		})
		if err != nil {
			e.logger.Error("chunked transfer failed", "chunk_id", chunkID, "filename", filename, "error", err)
			e.emitFailure(chunkID, filename, err, emit)
			return false
		}

		if i < totalChunks-1 {
			select {
			case <-time.After(interChunkDelay):
			case <-ctx.Done():
				e.emitFailure(chunkID, filename, ctx.Err(), emit)
				return false
			}
		}
	}

	if err := emit(models.Event{
		Type: models.EventFileChunkComplete,
		Data: ChunkComplete{ChunkID: chunkID, Success: true, Message: fmt.Sprintf("file %s transfer complete", filename)},
	}); err != nil {
		e.logger.Error("failed to emit completion event", "chunk_id", chunkID, "error", err)
		return false
	}

	e.logger.Info("chunked transfer complete", "chunk_id", chunkID, "filename", filename)
	return true
}

func (e *Emitter) emitFailure(chunkID, filename string, cause error, emit func(models.Event) error) {
	_ = emit(models.Event{
		Type: models.EventFileChunkComplete,
		Data: ChunkComplete{ChunkID: chunkID, Success: false, Message: fmt.Sprintf("file %s transfer failed: %v", filename, cause)},
	})
}
