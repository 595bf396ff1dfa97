package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/Lllllllleong/documentnarrator/internal/httpapi"
	"github.com/Lllllllleong/documentnarrator/internal/models"
	"github.com/Lllllllleong/documentnarrator/internal/services"
	cloudevents "github.com/cloudevents/sdk-go/v2"
)

var (
	narratorInstance *services.Narrator
	handlers         httpapi.FunctionHandlers
	once             sync.Once
	initErr          error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.HTTP("UploadImage", uploadImage)
	functions.HTTP("SubmitPDFLink", submitPDFLink)
	functions.CloudEvent("NarrateStorageObject", narrateStorageObject)
}

// main is required by the Go Functions Framework.
func main() {}

func initialize() error {
	once.Do(func() {
		narratorInstance, initErr = services.NewNarrator(context.Background())
		if initErr == nil {
			cfg := narratorInstance.Config
			handlers = httpapi.NewFunctionHandlers(narratorInstance, httpapi.RouterConfig{
				UploadsDir:     cfg.UploadsDir,
				AllowedOrigins: cfg.AllowedOrigins,
				MaxUploadBytes: cfg.MaxUploadBytes,
			})
		}
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
	}
	return initErr
}

func uploadImage(w http.ResponseWriter, r *http.Request) {
	if err := initialize(); err != nil {
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}
	handlers.UploadImage.ServeHTTP(w, r)
}

func submitPDFLink(w http.ResponseWriter, r *http.Request) {
	if err := initialize(); err != nil {
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}
	handlers.SubmitPDFLink.ServeHTTP(w, r)
}

// narrateStorageObject narrates PDFs as they are finalized in a bucket.
func narrateStorageObject(ctx context.Context, e cloudevents.Event) error {
	if err := initialize(); err != nil {
		return err
	}

	var event models.StorageEvent
	if err := json.Unmarshal(e.Data(), &event); err != nil {
		slog.Error("Failed to unmarshal event data", "error", err, "data", string(e.Data()))
		return fmt.Errorf("json.Unmarshal: %w", err)
	}

	logCtx := slog.With("bucket", event.Bucket, "object", event.Name, "eventId", e.ID())
	if event.ContentType != "application/pdf" && !strings.HasSuffix(strings.ToLower(event.Name), ".pdf") {
		logCtx.Info("Object is not a PDF. Skipping.", "contentType", event.ContentType)
		return nil
	}

	if narratorInstance.Config.IsOwnArtifact(event.Bucket, event.Name) {
		logCtx.Info("Object is a mirrored artifact. Skipping.")
		return nil
	}

	res, err := narratorInstance.Narrate(ctx, models.StorageObject{Bucket: event.Bucket, Name: event.Name})
	if err != nil {
		if services.IsValidation(err) {
			// Redelivery cannot fix bad input.
			logCtx.Warn("Object rejected.", "error", err)
			return nil
		}
		return err
	}
	logCtx.Info("Object narrated.", "mp3File", res.Record.MP3File, "cached", res.Cached)
	return nil
}
