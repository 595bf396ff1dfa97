package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("PROJECT_ID", "narrator-test")
	t.Setenv("CHATPDF_API_KEY", "sec_test")
}

func TestLoadConfig_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "2024", cfg.Port)
	assert.Equal(t, "us-central1", cfg.VertexAIRegion)
	assert.Equal(t, "gemini-1.5-flash", cfg.GeminiModel)
	assert.Equal(t, DefaultChatPDFBaseURL, cfg.ChatPDFBaseURL)
	assert.Equal(t, "uploads", cfg.UploadsDir)
	assert.Equal(t, "processedLinks.json", cfg.RecordsFile)
	assert.Equal(t, "file", cfg.RecordStore)
	assert.Equal(t, "processedLinks", cfg.FirestoreCollection)
	assert.Empty(t, cfg.ArtifactBucket)
	assert.Empty(t, cfg.AllowedOrigins)
	assert.Equal(t, int64(10<<20), cfg.MaxUploadBytes)
	assert.Equal(t, 120*time.Second, cfg.HTTPClientTimeout)
}

func TestLoadConfig_Overrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("RECORD_STORE", "Firestore")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example,,")
	t.Setenv("MAX_UPLOAD_MB", "25")
	t.Setenv("HTTP_CLIENT_TIMEOUT", "45s")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "firestore", cfg.RecordStore)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, int64(25<<20), cfg.MaxUploadBytes)
	assert.Equal(t, 45*time.Second, cfg.HTTPClientTimeout)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "missing project", env: map[string]string{"PROJECT_ID": ""}},
		{name: "missing api key", env: map[string]string{"CHATPDF_API_KEY": ""}},
		{name: "unknown store", env: map[string]string{"RECORD_STORE": "redis"}},
		{name: "bad upload limit", env: map[string]string{"MAX_UPLOAD_MB": "-1"}},
		{name: "bad timeout", env: map[string]string{"HTTP_CLIENT_TIMEOUT": "soon"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}
