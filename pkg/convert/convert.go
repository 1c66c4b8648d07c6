// Package convert translates between the platform-neutral chat message
// model and the SSE wire segment model used by pkg/models.
package convert

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/codeready-toolchain/ssebridge/pkg/models"
)

// ToPlatformMessage converts a client-submitted InboundMessage into the
// neutral PlatformMessage handed to the external ingest pipeline.
func ToPlatformMessage(msg models.InboundMessage) models.PlatformMessage {
	var text strings.Builder

	for _, seg := range msg.Segments {
		switch seg.Type {
		case models.SegmentText:
			text.WriteString(seg.Content)
		case models.SegmentAt:
			nickname := seg.Nickname
			if nickname == "" {
				nickname = seg.UserID
			}
			fmt.Fprintf(&text, "@%s ", nickname)
		}
	}

	senderNickname := msg.FromNickname
	if senderNickname == "" {
		senderNickname = msg.FromName
	}

	return models.PlatformMessage{
		MessageID:       msg.MsgID,
		SenderID:        msg.FromID,
		SenderName:      msg.FromName,
		SenderNickname:  senderNickname,
		ContentSegments: msg.Segments,
		ContentText:     text.String(),
		IsToMe:          msg.IsToMe,
		IsSelf:          msg.IsSelf,
		Timestamp:       msg.Timestamp,
	}
}

// ImageSegmentFromFile reads path and builds an outbound image wire
// segment carrying the file inline as base64, falling back to a text
// placeholder if the file cannot be read.
func ImageSegmentFromFile(path string) models.Segment {
	return fileSegment(path, models.SegmentImage, "图片上传失败")
}

// FileSegmentFromFile reads path and builds an outbound file wire segment
// carrying the file inline as base64, falling back to a text placeholder
// if the file cannot be read.
func FileSegmentFromFile(path string) models.Segment {
	return fileSegment(path, models.SegmentFile, "文件上传失败")
}

func fileSegment(path string, typ models.SegmentType, failureLabel string) models.Segment {
	name := filepath.Base(path)
	data, err := os.ReadFile(path)
	if err != nil {
		return models.TextSegment(fmt.Sprintf("[%s: %s]", failureLabel, name))
	}

	mimeType := http.DetectContentType(data)
	b64 := base64.StdEncoding.EncodeToString(data)

	seg := models.Segment{
		Type:      typ,
		Base64URL: "base64://" + b64,
		Name:      name,
		MimeType:  mimeType,
		Suffix:    filepath.Ext(path),
	}
	if typ == models.SegmentFile {
		seg.Size = int64(len(data))
	}
	return seg
}
