package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Lllllllleong/documentnarrator/internal/models"
	"github.com/Lllllllleong/documentnarrator/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNarrator struct {
	upload      models.UploadedFile
	stagedBytes string
	link        string
	res         *services.Result
	err         error
}

func (f *fakeNarrator) NarrateImage(ctx context.Context, upload models.UploadedFile) (*services.Result, error) {
	f.upload = upload
	data, _ := os.ReadFile(upload.Path)
	f.stagedBytes = string(data)
	return f.res, f.err
}

func (f *fakeNarrator) NarrateLink(ctx context.Context, pdfLink string) (*services.Result, error) {
	f.link = pdfLink
	return f.res, f.err
}

func newTestRouter(t *testing.T, n Narrator, origins ...string) (http.Handler, string) {
	t.Helper()
	dir := t.TempDir()
	return NewRouter(n, RouterConfig{
		UploadsDir:     dir,
		PublicPath:     "/uploads",
		AllowedOrigins: origins,
		MaxUploadBytes: 1 << 20,
	}), dir
}

func multipartBody(t *testing.T, filename, contentType, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	hdr.Set("Content-Type", contentType)
	part, err := mw.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestUploadImage_Success(t *testing.T) {
	n := &fakeNarrator{res: &services.Result{Record: models.ProcessingRecord{
		SourceKey: "slide.png",
		MP3File:   "/uploads/slide.mp3",
		Text:      "Judul, Isi",
	}}}
	router, dir := newTestRouter(t, n)

	body, ctype := multipartBody(t, "slide.png", "image/png", "png bytes")
	req := httptest.NewRequest(http.MethodPost, "/upload-image", body)
	req.Header.Set("Content-Type", ctype)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.ImageResponse{
		Message:     "File uploaded successfully",
		PDFLink:     "slide.png",
		RenamedFile: "",
		MP3File:     "/uploads/slide.mp3",
		Text:        "Judul, Isi",
	}, decode[models.ImageResponse](t, rec))

	assert.Equal(t, "slide.png", n.upload.OriginalFilename)
	assert.Equal(t, "image/png", n.upload.MIMEType)
	assert.Equal(t, "png bytes", n.stagedBytes)
	assert.Equal(t, dir, filepath.Dir(n.upload.Path))
	assert.NoFileExists(t, n.upload.Path, "staged uploads are removed after the run")
}

func TestUploadImage_Cached(t *testing.T) {
	n := &fakeNarrator{res: &services.Result{Cached: true, Record: models.ProcessingRecord{SourceKey: "slide.png"}}}
	router, _ := newTestRouter(t, n)

	body, ctype := multipartBody(t, "slide.png", "image/png", "x")
	req := httptest.NewRequest(http.MethodPost, "/upload-image", body)
	req.Header.Set("Content-Type", ctype)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "This image has already been processed.", decode[models.ImageResponse](t, rec).Message)
}

func TestUploadImage_NoFile(t *testing.T) {
	n := &fakeNarrator{}
	router, _ := newTestRouter(t, n)

	req := httptest.NewRequest(http.MethodPost, "/upload-image", strings.NewReader(""))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No file uploaded", decode[models.ErrorResponse](t, rec).Message)
	assert.Empty(t, n.upload.OriginalFilename)
}

func TestUploadImage_PipelineErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
		wantDetail bool
	}{
		{
			name:       "validation",
			err:        services.ValidationError("File type not allowed", errors.New("mime type \"text/plain\"")),
			wantStatus: http.StatusBadRequest,
			wantMsg:    "File type not allowed",
		},
		{
			name:       "synthesis",
			err:        services.SynthesisError("Failed to convert text to MP3.", errors.New("tts down")),
			wantStatus: http.StatusInternalServerError,
			wantMsg:    "Failed to process image",
			wantDetail: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, _ := newTestRouter(t, &fakeNarrator{err: tt.err})

			body, ctype := multipartBody(t, "notes.txt", "text/plain", "x")
			req := httptest.NewRequest(http.MethodPost, "/upload-image", body)
			req.Header.Set("Content-Type", ctype)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			require.Equal(t, tt.wantStatus, rec.Code)
			got := decode[models.ErrorResponse](t, rec)
			assert.Equal(t, tt.wantMsg, got.Message)
			if tt.wantDetail {
				assert.Equal(t, "Failed to convert text to MP3.: tts down", got.Error)
			} else {
				assert.Empty(t, got.Error)
			}
		})
	}
}

func TestUploadImage_TooLarge(t *testing.T) {
	dir := t.TempDir()
	router := NewRouter(&fakeNarrator{}, RouterConfig{UploadsDir: dir, PublicPath: "/uploads", MaxUploadBytes: 64})

	body, ctype := multipartBody(t, "big.png", "image/png", strings.Repeat("x", 1024))
	req := httptest.NewRequest(http.MethodPost, "/upload-image", body)
	req.Header.Set("Content-Type", ctype)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Contains(t, []int{http.StatusRequestEntityTooLarge, http.StatusBadRequest}, rec.Code)
}

func TestSubmitPDFLink(t *testing.T) {
	n := &fakeNarrator{res: &services.Result{Record: models.ProcessingRecord{
		SourceKey:   "https://example.com/bab1.pdf",
		CanonicalID: "src_1",
		RenamedFile: "/uploads/src_1.pdf",
		MP3File:     "/uploads/src_1.mp3",
		Text:        "Ringkasan",
	}}}
	router, _ := newTestRouter(t, n)

	req := httptest.NewRequest(http.MethodPost, "/submit-pdf-link", strings.NewReader(`{"pdfLink":"https://example.com/bab1.pdf"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://example.com/bab1.pdf", n.link)
	assert.Equal(t, models.PDFLinkResponse{
		Message:      "PDF uploaded and processed successfully",
		Text:         "Ringkasan",
		RenamedFile:  "/uploads/src_1.pdf",
		MP3File:      "/uploads/src_1.mp3",
		OriginalLink: "https://example.com/bab1.pdf",
	}, decode[models.PDFLinkResponse](t, rec))

	n.res.Cached = true
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/submit-pdf-link", strings.NewReader(`{"pdfLink":"https://example.com/bab1.pdf"}`)))
	assert.Equal(t, "This link has already been processed.", decode[models.PDFLinkResponse](t, rec).Message)
}

func TestSubmitPDFLink_BadBody(t *testing.T) {
	router, _ := newTestRouter(t, &fakeNarrator{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/submit-pdf-link", strings.NewReader(`{not json`)))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "pdfLink is required", decode[models.ErrorResponse](t, rec).Message)
}

func TestSubmitPDFLink_Failures(t *testing.T) {
	n := &fakeNarrator{err: services.AcquisitionError("Failed to download PDF", errors.New("remote returned status 502"))}
	router, _ := newTestRouter(t, n)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/submit-pdf-link", strings.NewReader(`{"pdfLink":"https://example.com/a.pdf"}`)))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, models.ErrorResponse{
		Message: "Error handling PDF",
		Error:   "Failed to download PDF: remote returned status 502",
	}, decode[models.ErrorResponse](t, rec))

	n.err = services.ValidationError("pdfLink is required", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/submit-pdf-link", strings.NewReader(`{}`)))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, models.ErrorResponse{Message: "pdfLink is required"}, decode[models.ErrorResponse](t, rec))
}

func TestCORS(t *testing.T) {
	router, _ := newTestRouter(t, &fakeNarrator{}, "https://eunice.eu.org")

	tests := []struct {
		name       string
		origin     string
		method     string
		wantStatus int
		wantAllow  string
	}{
		{name: "no origin", method: http.MethodGet, wantStatus: http.StatusOK},
		{name: "allowed origin", origin: "https://eunice.eu.org", method: http.MethodGet, wantStatus: http.StatusOK, wantAllow: "https://eunice.eu.org"},
		{name: "preflight", origin: "https://eunice.eu.org", method: http.MethodOptions, wantStatus: http.StatusNoContent, wantAllow: "https://eunice.eu.org"},
		{name: "refused origin", origin: "https://evil.example", method: http.MethodGet, wantStatus: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/health", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantAllow, rec.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestArtifactsAreServed(t *testing.T) {
	router, dir := newTestRouter(t, &fakeNarrator{})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src_1.mp3"), []byte("ID3"), 0o644))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/uploads/src_1.mp3", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ID3", rec.Body.String())
}

func TestArtifactDirIsNotListed(t *testing.T) {
	router, dir := newTestRouter(t, &fakeNarrator{})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src_1.mp3"), []byte("ID3"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nested", "src_2.pdf"), []byte("%PDF"), 0o644))

	for _, path := range []string{"/uploads/", "/uploads/nested/", "/uploads/nested"} {
		t.Run(path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

			assert.Equal(t, http.StatusNotFound, rec.Code)
			assert.NotContains(t, rec.Body.String(), "src_1.mp3")
			assert.NotContains(t, rec.Body.String(), "src_2.pdf")
		})
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/uploads/nested/src_2.pdf", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "%PDF", rec.Body.String())
}

func TestFunctionHandlersApplyCORS(t *testing.T) {
	n := &fakeNarrator{res: &services.Result{Record: models.ProcessingRecord{SourceKey: "https://example.com/a.pdf"}}}
	handlers := NewFunctionHandlers(n, RouterConfig{
		UploadsDir:     t.TempDir(),
		AllowedOrigins: []string{"https://eunice.eu.org"},
		MaxUploadBytes: 1 << 20,
	})

	tests := []struct {
		name       string
		handler    http.Handler
		origin     string
		method     string
		wantStatus int
		wantCalled bool
	}{
		{name: "refused origin on link", handler: handlers.SubmitPDFLink, origin: "https://evil.example", method: http.MethodPost, wantStatus: http.StatusForbidden},
		{name: "refused origin on upload", handler: handlers.UploadImage, origin: "https://evil.example", method: http.MethodPost, wantStatus: http.StatusForbidden},
		{name: "preflight", handler: handlers.SubmitPDFLink, origin: "https://eunice.eu.org", method: http.MethodOptions, wantStatus: http.StatusNoContent},
		{name: "allowed origin", handler: handlers.SubmitPDFLink, origin: "https://eunice.eu.org", method: http.MethodPost, wantStatus: http.StatusOK, wantCalled: true},
		{name: "no origin", handler: handlers.SubmitPDFLink, method: http.MethodPost, wantStatus: http.StatusOK, wantCalled: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n.link = ""
			req := httptest.NewRequest(tt.method, "/", strings.NewReader(`{"pdfLink":"https://example.com/a.pdf"}`))
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			rec := httptest.NewRecorder()
			tt.handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCalled, n.link != "")
		})
	}
}
