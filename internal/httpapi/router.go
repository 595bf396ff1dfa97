// Package httpapi exposes the narration pipeline over HTTP.
package httpapi

import (
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// RouterConfig holds the HTTP surface settings.
type RouterConfig struct {
	UploadsDir     string
	PublicPath     string
	AllowedOrigins []string
	MaxUploadBytes int64
	RequestTimeout time.Duration
}

// NewRouter creates the API router with all routes configured.
func NewRouter(narrator Narrator, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(CORS(cfg.AllowedOrigins))
	if cfg.RequestTimeout > 0 {
		r.Use(chimiddleware.Timeout(cfg.RequestTimeout))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"healthy","service":"document-narrator"}`))
	})

	h := NewHandler(narrator, cfg.UploadsDir, cfg.MaxUploadBytes)
	r.Post("/upload-image", h.UploadImage)
	r.Post("/submit-pdf-link", h.SubmitPDFLink)

	files := http.StripPrefix(cfg.PublicPath+"/", http.FileServer(filesOnly{http.Dir(cfg.UploadsDir)}))
	r.Get(cfg.PublicPath+"/*", files.ServeHTTP)

	return r
}

// FunctionHandlers are the ingress operations for deployments without a router,
// such as Cloud Functions. Each carries the same CORS policy as NewRouter.
type FunctionHandlers struct {
	UploadImage   http.Handler
	SubmitPDFLink http.Handler
}

// NewFunctionHandlers builds FunctionHandlers from cfg. PublicPath and
// RequestTimeout are not used.
func NewFunctionHandlers(narrator Narrator, cfg RouterConfig) FunctionHandlers {
	h := NewHandler(narrator, cfg.UploadsDir, cfg.MaxUploadBytes)
	cors := CORS(cfg.AllowedOrigins)
	return FunctionHandlers{
		UploadImage:   requestLogger(cors(http.HandlerFunc(h.UploadImage))),
		SubmitPDFLink: requestLogger(cors(http.HandlerFunc(h.SubmitPDFLink))),
	}
}

// filesOnly hides directories, so the artifact dir is never listed.
type filesOnly struct {
	fs http.FileSystem
}

func (f filesOnly) Open(name string) (http.File, error) {
	file, err := f.fs.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	if info.IsDir() {
		file.Close()
		return nil, fs.ErrNotExist
	}
	return file, nil
}

// requestLogger logs one structured line per request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Info("HTTP request served.",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"requestId", chimiddleware.GetReqID(r.Context()),
		)
	})
}

// CORS allows requests without an Origin header and those from allowedOrigins.
// Any other cross-origin request is refused.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			if !allowed[origin] && !allowed["*"] {
				slog.Warn("CORS request refused.", "origin", origin)
				writeJSON(w, http.StatusForbidden, errorBody("Not allowed by CORS", ""))
				return
			}

			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.Header().Set("Access-Control-Max-Age", "86400")
			w.Header().Add("Vary", "Origin")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
