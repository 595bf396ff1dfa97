package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/documentnarrator/internal/gcp"
	"github.com/Lllllllleong/documentnarrator/internal/models"
	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// DefaultDriveDownloadURL fetches a shared Drive file by ID.
const DefaultDriveDownloadURL = "https://drive.google.com/uc?export=download&id="

var allowedUploadTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/gif":       true,
	"application/pdf": true,
}

var driveFileIDPattern = regexp.MustCompile(`[-\w]{25,}`)

// ExtractDriveFileID pulls the file ID out of a cloud-drive sharing URL.
func ExtractDriveFileID(link string) (string, error) {
	id := driveFileIDPattern.FindString(link)
	if id == "" {
		return "", ValidationError("unrecognized link format", fmt.Errorf("no file id found in %q", link))
	}
	return id, nil
}

// ParseLink classifies a submitted pdfLink into a SourceReference.
func ParseLink(raw string) (models.SourceReference, error) {
	link := strings.TrimSpace(raw)
	if link == "" {
		return nil, ValidationError("pdfLink is required", nil)
	}

	if strings.Contains(link, "drive.google.com") {
		id, err := ExtractDriveFileID(link)
		if err != nil {
			return nil, err
		}
		return models.RemoteLink{URL: link, DriveFileID: id}, nil
	}

	if !strings.HasSuffix(strings.ToLower(link), ".pdf") {
		return nil, ValidationError("File is not a PDF. Please upload a valid PDF file.", nil)
	}

	switch {
	case strings.HasPrefix(link, "gs://"):
		bucket, object, ok := strings.Cut(strings.TrimPrefix(link, "gs://"), "/")
		if !ok || bucket == "" || object == "" {
			return nil, ValidationError("unrecognized link format", fmt.Errorf("malformed storage URI %q", link))
		}
		return models.StorageObject{Bucket: bucket, Name: object}, nil
	case strings.HasPrefix(link, "http://"), strings.HasPrefix(link, "https://"):
		if _, err := url.ParseRequestURI(link); err != nil {
			return nil, ValidationError("unrecognized link format", err)
		}
		return models.RemoteLink{URL: link}, nil
	default:
		return models.LocalPath{Path: link}, nil
	}
}

// ValidateSource rejects inputs that must never reach an external service.
func ValidateSource(ref models.SourceReference) error {
	if ref == nil || ref.SourceKey() == "" {
		return ValidationError("No file uploaded", nil)
	}
	if up, ok := ref.(models.UploadedFile); ok {
		mediaType, _, err := mime.ParseMediaType(up.MIMEType)
		if err != nil || !allowedUploadTypes[mediaType] {
			return ValidationError("File type not allowed", fmt.Errorf("mime type %q", up.MIMEType))
		}
	}
	return nil
}

// AcquirerConfig configures source acquisition.
type AcquirerConfig struct {
	WorkDir          string
	DriveDownloadURL string
	// LocalRoot confines LocalPath sources when set.
	LocalRoot  string
	HTTPClient *http.Client
	Storage    *storage.Client
}

// Acquirer turns a SourceReference into a file on local disk.
type Acquirer struct {
	workDir          string
	driveDownloadURL string
	localRoot        string
	httpClient       *http.Client
	storageClient    *storage.Client
	validatePDF      func(path string) error
	now              func() time.Time
}

// NewAcquirer creates an Acquirer writing into cfg.WorkDir.
func NewAcquirer(cfg AcquirerConfig) *Acquirer {
	api.DisableConfigDir()

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	driveURL := cfg.DriveDownloadURL
	if driveURL == "" {
		driveURL = DefaultDriveDownloadURL
	}
	return &Acquirer{
		workDir:          cfg.WorkDir,
		driveDownloadURL: driveURL,
		localRoot:        cfg.LocalRoot,
		httpClient:       httpClient,
		storageClient:    cfg.Storage,
		validatePDF:      validatePDF,
		now:              time.Now,
	}
}

// Acquire resolves ref to a local path. Uploaded files are returned in place;
// every other variant produces a new pipeline-owned file in the work dir.
func (a *Acquirer) Acquire(ctx context.Context, ref models.SourceReference) (string, error) {
	if err := ValidateSource(ref); err != nil {
		return "", err
	}

	switch src := ref.(type) {
	case models.UploadedFile:
		if _, err := os.Stat(src.Path); err != nil {
			return "", ValidationError("No file uploaded", err)
		}
		return src.Path, nil
	case models.RemoteLink:
		target := src.URL
		if src.DriveFileID != "" {
			target = a.driveDownloadURL + url.QueryEscape(src.DriveFileID)
		}
		return a.finish(a.download(ctx, target))
	case models.LocalPath:
		return a.finish(a.copyLocal(src.Path))
	case models.StorageObject:
		return a.finish(a.fetchObject(ctx, src))
	default:
		return "", ValidationError("unsupported source", fmt.Errorf("%T", ref))
	}
}

func (a *Acquirer) finish(path string, err error) (string, error) {
	if err != nil {
		return "", err
	}
	if err := a.validatePDF(path); err != nil {
		_ = os.Remove(path)
		return "", ValidationError("Downloaded file is not a valid PDF", err)
	}
	return path, nil
}

func (a *Acquirer) newFilePath() string {
	return a.newFilePathExt(".pdf")
}

func (a *Acquirer) newFilePathExt(ext string) string {
	return filepath.Join(a.workDir, fmt.Sprintf("%d-%s%s", a.now().UnixMilli(), uuid.NewString()[:8], ext))
}

// ClaimUpload links (or copies) a caller-staged upload to a pipeline-owned
// path, so the caller may delete its staged file at any time.
func (a *Acquirer) ClaimUpload(staged string) (string, error) {
	claimed := a.newFilePathExt(filepath.Ext(staged))
	if err := os.Link(staged, claimed); err == nil {
		return claimed, nil
	}

	src, err := os.Open(staged)
	if err != nil {
		return "", ValidationError("No file uploaded", err)
	}
	defer src.Close()

	out, err := os.Create(claimed)
	if err != nil {
		return "", AcquisitionError("Failed to claim upload", err)
	}
	_, err = io.Copy(out, src)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(claimed)
		return "", AcquisitionError("Failed to claim upload", err)
	}
	return claimed, nil
}

func (a *Acquirer) download(ctx context.Context, target string) (string, error) {
	logCtx := slog.With("url", target)
	logCtx.Info("Starting download.")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", ValidationError("unrecognized link format", err)
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		logCtx.Error("Download failed", "error", err)
		return "", AcquisitionError("Failed to download PDF", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return "", ValidationError("PDF link is not accessible", fmt.Errorf("remote returned status %d", resp.StatusCode))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", AcquisitionError("Failed to download PDF", fmt.Errorf("remote returned status %d", resp.StatusCode))
	}

	dest := a.newFilePath()
	out, err := os.Create(dest)
	if err != nil {
		return "", AcquisitionError("Failed to store downloaded PDF", err)
	}
	written, err := io.Copy(out, resp.Body)
	closeErr := out.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(dest)
		logCtx.Error("Download interrupted", "error", err)
		return "", AcquisitionError("Failed to download PDF", err)
	}

	logCtx.Info("Download complete.", "path", dest, "bytes", written)
	return dest, nil
}

func (a *Acquirer) copyLocal(path string) (string, error) {
	if a.localRoot != "" {
		rel, err := filepath.Rel(a.localRoot, filepath.Clean(path))
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return "", ValidationError("Invalid PDF link or file not found.", fmt.Errorf("%s is outside %s", path, a.localRoot))
		}
	}

	src, err := os.Open(path)
	if err != nil {
		return "", ValidationError("Invalid PDF link or file not found.", err)
	}
	defer src.Close()

	dest := a.newFilePath()
	out, err := os.Create(dest)
	if err != nil {
		return "", AcquisitionError("Failed to copy local PDF", err)
	}
	_, err = io.Copy(out, src)
	closeErr := out.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(dest)
		return "", AcquisitionError("Failed to copy local PDF", err)
	}
	return dest, nil
}

func (a *Acquirer) fetchObject(ctx context.Context, obj models.StorageObject) (string, error) {
	if a.storageClient == nil {
		return "", AcquisitionError("Cloud Storage sources are not configured", nil)
	}
	dest := a.newFilePath()
	if err := gcp.StreamObjectToFile(ctx, a.storageClient, obj.Bucket, obj.Name, dest); err != nil {
		_ = os.Remove(dest)
		return "", AcquisitionError("Failed to fetch PDF from Cloud Storage", err)
	}
	return dest, nil
}

func validatePDF(path string) error {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	if err := api.ValidateFile(path, conf); err != nil {
		return err
	}
	if pages, err := api.PageCountFile(path); err == nil {
		slog.Info("Acquired PDF validated.", "path", path, "pageCount", pages)
	}
	return nil
}
