package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContentTypeFor(t *testing.T) {
	assert.Equal(t, "audio/mpeg", contentTypeFor("/uploads/src_1.mp3"))
	assert.Equal(t, "application/pdf", contentTypeFor("/uploads/src_1.pdf"))
	assert.Equal(t, "application/octet-stream", contentTypeFor("/uploads/notes"))
}

func TestMirrorObjectName(t *testing.T) {
	assert.Equal(t, "src_1/src_1.mp3", mirrorObjectName("src_1", "/srv/uploads/src_1.mp3"))
	assert.True(t, IsMirroredObject(mirrorObjectName("src_1", "/srv/uploads/src_1.pdf")))
}

func TestIsMirroredObject(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{name: "src_1/src_1.pdf", want: true},
		{name: "src_1/src_1.mp3", want: true},
		{name: "slide/slide.mp3", want: true},
		{name: "lecture.pdf"},
		{name: "inbox/lecture.pdf"},
		{name: "src_1/src_2.pdf"},
		{name: "a/src_1/src_1.pdf"},
		{name: "/src_1.pdf"},
		{name: "src_1/src_1.txt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsMirroredObject(tt.name))
		})
	}
}

func TestConfig_IsOwnArtifact(t *testing.T) {
	cfg := Config{ArtifactBucket: "narrator-artifacts"}

	assert.True(t, cfg.IsOwnArtifact("narrator-artifacts", "src_1/src_1.pdf"))
	assert.False(t, cfg.IsOwnArtifact("narrator-artifacts", "inbox/lecture.pdf"))
	assert.False(t, cfg.IsOwnArtifact("narrator-inbox", "src_1/src_1.pdf"))
	assert.False(t, Config{}.IsOwnArtifact("", "src_1/src_1.pdf"), "mirroring disabled")
}
