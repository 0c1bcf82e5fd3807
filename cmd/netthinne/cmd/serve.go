package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/netthinne/internal/server"
	"github.com/MeKo-Tech/netthinne/internal/version"
)

// newServer is replaced in tests to serve a stub pipeline.
var newServer = server.NewServer

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP server for the detection API",
		Long: `Start an HTTP server that detects and classifies objects in uploaded images.

The server provides the following endpoints:
  POST /detect  - Process an uploaded image (multipart field "image")
  GET  /ws      - WebSocket detection with progress messages
  GET  /health  - Health check endpoint
  GET  /models  - List model files and pipeline settings
  GET  /metrics - Prometheus metrics

Examples:
  netthinne serve
  netthinne serve --port 8080
  netthinne serve --host 0.0.0.0 --port 3000`,
		Args: cobra.NoArgs,
		RunE: a.runServe,
	}

	f := cmd.Flags()
	f.StringP("host", "H", "localhost", "server host")
	f.IntP("port", "p", 8080, "server port")
	f.String("cors-origin", "*", "CORS allowed origins")
	f.Int("max-upload-size", 20, "maximum upload size in MB")
	f.Int("timeout", 30, "request timeout in seconds")
	f.Int("shutdown-timeout", 10, "shutdown timeout in seconds")
	f.Bool("overlay-enable", true, "enable overlay image responses")
	f.String("overlay-box-color", "#ff0000", "overlay box color (hex)")
	f.Int("warmup", 0, "warmup iterations run before serving")
	f.Bool("rate-limit", true, "enable per-client rate limiting on /detect and /ws")
	f.Int("requests-per-minute", 60, "requests per minute per client (0 = unlimited)")
	f.Int("requests-per-day", 5000, "requests per day per client (0 = unlimited)")
	f.Int("max-mb-per-day", 1024, "uploaded MB per day per client (0 = unlimited)")
	f.Bool("trust-proxy", false, "take the client address from X-Forwarded-For")

	a.bind(f.Lookup("host"), "server.host")
	a.bind(f.Lookup("port"), "server.port")
	a.bind(f.Lookup("cors-origin"), "server.cors_origin")
	a.bind(f.Lookup("max-upload-size"), "server.max_upload_mb")
	a.bind(f.Lookup("timeout"), "server.timeout_sec")
	a.bind(f.Lookup("shutdown-timeout"), "server.shutdown_timeout")
	a.bind(f.Lookup("overlay-enable"), "server.overlay_enabled")
	a.bind(f.Lookup("overlay-box-color"), "output.overlay_box_color")
	a.bind(f.Lookup("warmup"), "pipeline.warmup_iterations")
	a.bind(f.Lookup("rate-limit"), "server.rate_limit.enabled")
	a.bind(f.Lookup("requests-per-minute"), "server.rate_limit.requests_per_minute")
	a.bind(f.Lookup("requests-per-day"), "server.rate_limit.requests_per_day")
	a.bind(f.Lookup("max-mb-per-day"), "server.rate_limit.mb_per_day")
	a.bind(f.Lookup("trust-proxy"), "server.rate_limit.trust_proxy")
	return cmd
}

func (a *app) runServe(cmd *cobra.Command, _ []string) error {
	cfg := a.cfg.Server
	srv, err := newServer(server.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		CORSOrigin:      cfg.CORSOrigin,
		MaxUploadMB:     int64(cfg.MaxUploadMB),
		TimeoutSec:      cfg.TimeoutSec,
		PipelineConfig:  a.cfg.ToPipelineConfig(),
		OverlayEnabled:  cfg.OverlayEnabled,
		OverlayBoxColor: a.cfg.Output.OverlayBoxColor,
		Version:         version.Version,
		RateLimit: server.RateLimitConfig{
			Enabled:           cfg.RateLimit.Enabled,
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			RequestsPerDay:    cfg.RateLimit.RequestsPerDay,
			BytesPerDay:       int64(cfg.RateLimit.MBPerDay) << 20,
			TrustProxy:        cfg.RateLimit.TrustProxy,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}
	defer func() {
		if err := srv.Close(); err != nil {
			slog.Error("Server cleanup error", "error", err)
		}
	}()

	mux := http.NewServeMux()
	srv.SetupRoutes(mux)

	// Requests may wait for the full pipeline timeout plus upload time.
	ioTimeout := time.Duration(cfg.TimeoutSec+5) * time.Second
	httpServer := &http.Server{
		Addr:              net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       ioTimeout,
		WriteTimeout:      ioTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting detection server", "addr", httpServer.Addr, "version", version.Version)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-cmd.Context().Done():
		slog.Info("Received shutdown signal")
	}

	slog.Info("Starting graceful shutdown", "timeout", fmt.Sprintf("%ds", cfg.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeout)*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
		return err
	}
	slog.Info("Graceful shutdown completed")
	return nil
}
