package convert

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/ssebridge/pkg/models"
)

func TestToPlatformMessageConcatenatesTextAndAt(t *testing.T) {
	msg := models.InboundMessage{
		MsgID:        "m1",
		FromID:       "u1",
		FromName:     "alice",
		FromNickname: "",
		Segments: []models.Segment{
			models.TextSegment("hello "),
			models.AtSegment("u2", "bob"),
			models.TextSegment("!"),
		},
		IsToMe: true,
	}

	out := ToPlatformMessage(msg)

	assert.Equal(t, "m1", out.MessageID)
	assert.Equal(t, "alice", out.SenderNickname)
	assert.Equal(t, "hello @bob !", out.ContentText)
	assert.True(t, out.IsToMe)
	assert.Len(t, out.ContentSegments, 3)
}

func TestToPlatformMessagePrefersExplicitNickname(t *testing.T) {
	msg := models.InboundMessage{FromName: "alice", FromNickname: "ally"}
	out := ToPlatformMessage(msg)
	assert.Equal(t, "ally", out.SenderNickname)
}

func TestImageSegmentFromFileEncodesBase64(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pic.png")
	require.NoError(t, os.WriteFile(path, []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}, 0o644))

	seg := ImageSegmentFromFile(path)

	assert.Equal(t, models.SegmentImage, seg.Type)
	assert.Equal(t, "pic.png", seg.Name)
	assert.Equal(t, ".png", seg.Suffix)
	assert.Contains(t, seg.Base64URL, "base64://")
}

func TestFileSegmentFromFileMissingFallsBackToText(t *testing.T) {
	seg := FileSegmentFromFile("/nonexistent/does-not-exist.bin")
	assert.Equal(t, models.SegmentText, seg.Type)
	assert.Contains(t, seg.Content, "文件上传失败")
}
