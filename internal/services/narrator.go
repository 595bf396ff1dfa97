package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/documentnarrator/internal/gcp"
	"github.com/Lllllllleong/documentnarrator/internal/store"
)

// PublicUploadsPath is the URL prefix under which artifacts are served.
const PublicUploadsPath = "/uploads"

// Config holds all configuration for the narrator service.
type Config struct {
	Port                string
	ProjectID           string
	VertexAIRegion      string
	GeminiModel         string
	ChatPDFAPIKey       string
	ChatPDFBaseURL      string
	UploadsDir          string
	RecordsFile         string
	RecordStore         string
	FirestoreCollection string
	ArtifactBucket      string
	LocalPDFRoot        string
	AllowedOrigins      []string
	MaxUploadBytes      int64
	HTTPClientTimeout   time.Duration
}

// LoadConfig loads and validates all environment variables for the service.
func LoadConfig() (*Config, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	apiKey := gcp.GetEnv("CHATPDF_API_KEY", "")
	if apiKey == "" {
		return nil, fmt.Errorf("CHATPDF_API_KEY environment variable must be set")
	}

	recordStore := strings.ToLower(gcp.GetEnv("RECORD_STORE", "file"))
	if recordStore != "file" && recordStore != "firestore" {
		return nil, fmt.Errorf("RECORD_STORE must be \"file\" or \"firestore\", got %q", recordStore)
	}

	maxMB, err := strconv.ParseInt(gcp.GetEnv("MAX_UPLOAD_MB", "10"), 10, 64)
	if err != nil || maxMB <= 0 {
		return nil, fmt.Errorf("MAX_UPLOAD_MB must be a positive integer")
	}
	timeout, err := time.ParseDuration(gcp.GetEnv("HTTP_CLIENT_TIMEOUT", "120s"))
	if err != nil {
		return nil, fmt.Errorf("invalid HTTP_CLIENT_TIMEOUT: %w", err)
	}

	return &Config{
		Port:                gcp.GetEnv("PORT", "2024"),
		ProjectID:           projectID,
		VertexAIRegion:      gcp.GetEnv("VERTEX_AI_REGION", "us-central1"),
		GeminiModel:         gcp.GetEnv("GEMINI_MODEL", gcp.DefaultGeminiModel),
		ChatPDFAPIKey:       apiKey,
		ChatPDFBaseURL:      gcp.GetEnv("CHATPDF_BASE_URL", DefaultChatPDFBaseURL),
		UploadsDir:          gcp.GetEnv("UPLOADS_DIR", "uploads"),
		RecordsFile:         gcp.GetEnv("RECORDS_FILE", "processedLinks.json"),
		RecordStore:         recordStore,
		FirestoreCollection: gcp.GetEnv("FIRESTORE_COLLECTION", "processedLinks"),
		ArtifactBucket:      gcp.GetEnv("ARTIFACT_BUCKET", ""),
		LocalPDFRoot:        gcp.GetEnv("LOCAL_PDF_ROOT", ""),
		AllowedOrigins:      splitList(gcp.GetEnv("ALLOWED_ORIGINS", "")),
		MaxUploadBytes:      maxMB << 20,
		HTTPClientTimeout:   timeout,
	}, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// IsOwnArtifact reports whether an object in bucket was written by this
// service's artifact mirror, so storage triggers can ignore it.
func (c Config) IsOwnArtifact(bucket, name string) bool {
	return c.ArtifactBucket != "" && bucket == c.ArtifactBucket && IsMirroredObject(name)
}

// Narrator owns the pipeline and every client it was built from.
type Narrator struct {
	*Pipeline
	Config Config

	storageClient   *storage.Client
	firestoreClient *firestore.Client
	vertexClient    *gcp.VertexClient
	speechClient    *gcp.GoogleSpeech
}

// NewNarrator loads configuration and creates every client the pipeline needs.
func NewNarrator(ctx context.Context) (*Narrator, error) {
	config, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return NewNarratorWithConfig(ctx, *config)
}

// NewNarratorWithConfig creates the clients for an already loaded config.
func NewNarratorWithConfig(ctx context.Context, config Config) (_ *Narrator, err error) {
	n := &Narrator{Config: config}
	defer func() {
		if err != nil {
			_ = n.Close()
		}
	}()

	if err := os.MkdirAll(config.UploadsDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create uploads dir: %w", err)
	}

	n.storageClient, err = storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	n.vertexClient, err = gcp.NewVertexClient(ctx, config.ProjectID, config.VertexAIRegion, config.GeminiModel)
	if err != nil {
		return nil, fmt.Errorf("failed to create vertex client: %w", err)
	}

	n.speechClient, err = gcp.NewGoogleSpeech(ctx, gcp.DefaultVoice)
	if err != nil {
		return nil, fmt.Errorf("failed to create text-to-speech client: %w", err)
	}

	var records store.Store
	switch config.RecordStore {
	case "firestore":
		n.firestoreClient, err = gcp.NewFirestoreClient(ctx, config.ProjectID)
		if err != nil {
			return nil, err
		}
		records = store.NewFirestoreStore(n.firestoreClient, config.FirestoreCollection)
	default:
		records = store.NewFileStore(config.RecordsFile)
	}

	var mirror ArtifactMirror
	if config.ArtifactBucket != "" {
		mirror = NewStorageMirror(n.storageClient, config.ArtifactBucket)
	}

	n.Pipeline = NewPipeline(PipelineDeps{
		Store: records,
		Acquirer: NewAcquirer(AcquirerConfig{
			WorkDir:    config.UploadsDir,
			LocalRoot:  config.LocalPDFRoot,
			HTTPClient: &http.Client{Timeout: config.HTTPClientTimeout},
			Storage:    n.storageClient,
		}),
		Describer:   NewVertexDescriber(n.vertexClient),
		Documents:   NewChatPDFClient(config.ChatPDFBaseURL, config.ChatPDFAPIKey, config.HTTPClientTimeout),
		Speaker:     NewSpeaker(n.speechClient, config.UploadsDir, PublicUploadsPath),
		Mirror:      mirror,
		ArtifactDir: config.UploadsDir,
		PublicPath:  PublicUploadsPath,
	})

	slog.Info("Narrator initialized.",
		"recordStore", config.RecordStore,
		"uploadsDir", config.UploadsDir,
		"artifactBucket", config.ArtifactBucket,
	)
	return n, nil
}

// Close releases every client. It is safe on a partially built Narrator.
func (n *Narrator) Close() error {
	var errs []error
	if n.speechClient != nil {
		errs = append(errs, n.speechClient.Close())
	}
	if n.vertexClient != nil {
		errs = append(errs, n.vertexClient.Close())
	}
	if n.firestoreClient != nil {
		errs = append(errs, n.firestoreClient.Close())
	}
	if n.storageClient != nil {
		errs = append(errs, n.storageClient.Close())
	}
	return errors.Join(errs...)
}
