package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/Lllllllleong/documentnarrator/internal/models"
	"github.com/Lllllllleong/documentnarrator/internal/services"
)

const (
	imageFailureMessage = "Failed to process image"
	linkFailureMessage  = "Error handling PDF"
)

// Narrator is the pipeline as seen by the HTTP layer.
type Narrator interface {
	NarrateImage(ctx context.Context, upload models.UploadedFile) (*services.Result, error)
	NarrateLink(ctx context.Context, pdfLink string) (*services.Result, error)
}

// Handler serves the two ingress operations.
type Handler struct {
	narrator       Narrator
	uploadsDir     string
	maxUploadBytes int64
}

// NewHandler stages uploads into uploadsDir. A non-positive maxUploadBytes
// disables the size limit.
func NewHandler(narrator Narrator, uploadsDir string, maxUploadBytes int64) *Handler {
	return &Handler{narrator: narrator, uploadsDir: uploadsDir, maxUploadBytes: maxUploadBytes}
}

// UploadImage handles POST /upload-image.
func (h *Handler) UploadImage(w http.ResponseWriter, r *http.Request) {
	if h.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody("File too large", ""))
			return
		}
		slog.Warn("Upload rejected.", "error", err)
		writeJSON(w, http.StatusBadRequest, errorBody("No file uploaded", ""))
		return
	}
	defer file.Close()

	staged, err := h.stage(file, header.Filename)
	if err != nil {
		slog.Error("Failed to stage upload", "filename", header.Filename, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody("File upload failed", err.Error()))
		return
	}
	defer os.Remove(staged)

	res, err := h.narrator.NarrateImage(r.Context(), models.UploadedFile{
		Path:             staged,
		OriginalFilename: header.Filename,
		MIMEType:         header.Header.Get("Content-Type"),
	})
	if err != nil {
		writeFailure(w, err, imageFailureMessage)
		return
	}

	message := "File uploaded successfully"
	if res.Cached {
		message = "This image has already been processed."
	}
	writeJSON(w, http.StatusOK, models.ImageResponse{
		Message:     message,
		PDFLink:     res.Record.SourceKey,
		RenamedFile: res.Record.RenamedFile,
		MP3File:     res.Record.MP3File,
		Text:        res.Record.Text,
	})
}

// SubmitPDFLink handles POST /submit-pdf-link.
func (h *Handler) SubmitPDFLink(w http.ResponseWriter, r *http.Request) {
	var req models.PDFLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		slog.Warn("Could not decode request body.", "error", err)
		writeJSON(w, http.StatusBadRequest, errorBody("pdfLink is required", ""))
		return
	}

	res, err := h.narrator.NarrateLink(r.Context(), req.PDFLink)
	if err != nil {
		writeFailure(w, err, linkFailureMessage)
		return
	}

	message := "PDF uploaded and processed successfully"
	if res.Cached {
		message = "This link has already been processed."
	}
	writeJSON(w, http.StatusOK, models.PDFLinkResponse{
		Message:      message,
		Text:         res.Record.Text,
		RenamedFile:  res.Record.RenamedFile,
		MP3File:      res.Record.MP3File,
		OriginalLink: res.Record.SourceKey,
	})
}

// stage copies the multipart body to a private file in the uploads dir.
func (h *Handler) stage(src io.Reader, filename string) (string, error) {
	out, err := os.CreateTemp(h.uploadsDir, "staged-*"+filepath.Ext(filepath.Base(filename)))
	if err != nil {
		return "", err
	}
	_, err = io.Copy(out, src)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(out.Name())
		return "", err
	}
	return out.Name(), nil
}

// writeFailure reports validation errors by their own message. Anything else
// gets the flow's fixed message with the cause in error.
func writeFailure(w http.ResponseWriter, err error, failureMessage string) {
	status := services.HTTPStatus(err)
	if status == http.StatusBadRequest {
		message := "Invalid request"
		var perr *services.Error
		if errors.As(err, &perr) {
			message = perr.Message
		}
		writeJSON(w, status, errorBody(message, ""))
		return
	}
	writeJSON(w, status, errorBody(failureMessage, err.Error()))
}

func errorBody(message, detail string) models.ErrorResponse {
	return models.ErrorResponse{Message: message, Error: detail}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}
