// Command narrator-server serves the narration pipeline over HTTP.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Lllllllleong/documentnarrator/internal/httpapi"
	"github.com/Lllllllleong/documentnarrator/internal/services"
	"github.com/joho/godotenv"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Could not read .env file", "error", err)
	}

	narrator, err := services.NewNarrator(context.Background())
	if err != nil {
		slog.Error("Critical error during initialization", "error", err)
		os.Exit(1)
	}
	defer narrator.Close()

	cfg := narrator.Config
	srv := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: httpapi.NewRouter(narrator, httpapi.RouterConfig{
			UploadsDir:     cfg.UploadsDir,
			PublicPath:     services.PublicUploadsPath,
			AllowedOrigins: cfg.AllowedOrigins,
			MaxUploadBytes: cfg.MaxUploadBytes,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening.", "addr", srv.Addr)
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server error", "error", err)
		}
	case sig := <-shutdown:
		slog.Info("Shutdown signal received.", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("Graceful shutdown failed", "error", err)
		_ = srv.Close()
	}
	slog.Info("Server stopped.")
}
