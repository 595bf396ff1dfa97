package services

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/documentnarrator/internal/gcp"
	"golang.org/x/sync/errgroup"
)

// ArtifactMirror copies finished artifacts to durable remote storage.
type ArtifactMirror interface {
	Mirror(ctx context.Context, canonicalID string, localPaths ...string) error
}

// StorageMirror uploads artifacts to a Cloud Storage bucket under
// {canonicalID}/{filename}.
type StorageMirror struct {
	client *storage.Client
	bucket string
}

// NewStorageMirror mirrors into bucket.
func NewStorageMirror(client *storage.Client, bucket string) *StorageMirror {
	return &StorageMirror{client: client, bucket: bucket}
}

// Mirror uploads all paths concurrently. Objects that already exist are left
// untouched.
func (m *StorageMirror) Mirror(ctx context.Context, canonicalID string, localPaths ...string) error {
	bucketHandle := m.client.Bucket(m.bucket)
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(4)

	for _, p := range localPaths {
		if p == "" {
			continue
		}
		localPath := p
		objectName := mirrorObjectName(canonicalID, localPath)
		eg.Go(func() error {
			if err := gcp.UploadFileAtomically(gctx, bucketHandle, objectName, localPath, contentTypeFor(localPath)); err != nil {
				return fmt.Errorf("%s: %w", objectName, err)
			}
			slog.Info("Artifact mirrored.", "bucket", m.bucket, "object", objectName)
			return nil
		})
	}
	return eg.Wait()
}

func mirrorObjectName(canonicalID, localPath string) string {
	return canonicalID + "/" + filepath.Base(localPath)
}

// IsMirroredObject reports whether name has the {id}/{id}.pdf or {id}/{id}.mp3
// shape that Mirror writes.
func IsMirroredObject(name string) bool {
	dir, base := path.Split(name)
	id := strings.TrimSuffix(dir, "/")
	if id == "" || strings.Contains(id, "/") {
		return false
	}
	return base == id+".pdf" || base == id+".mp3"
}

func contentTypeFor(path string) string {
	switch filepath.Ext(path) {
	case ".mp3":
		return "audio/mpeg"
	case ".pdf":
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}
