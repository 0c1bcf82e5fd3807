package server

import (
	"context"
	"image"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MeKo-Tech/netthinne/internal/pipeline"
)

// pipelineInterface defines the methods needed by the server from a pipeline.
type pipelineInterface interface {
	ProcessImage(ctx context.Context, img image.Image) (*pipeline.ImageResult, error)
	Info() map[string]interface{}
	Close() error
}

// Server holds the HTTP server state and dependencies.
type Server struct {
	pipeline        pipelineInterface
	modelsDir       string
	corsOrigin      string
	maxUploadMB     int64
	timeoutSec      int
	overlayEnabled  bool
	overlayBoxColor string
	version         string
	rateLimiter     *RateLimiter
}

// Config holds server configuration.
type Config struct {
	Host            string
	Port            int
	CORSOrigin      string
	MaxUploadMB     int64
	TimeoutSec      int
	PipelineConfig  pipeline.Config
	OverlayEnabled  bool
	OverlayBoxColor string
	Version         string
	RateLimit       RateLimitConfig
}

// HealthResponse is returned by /health.
type HealthResponse struct {
	Status  string             `json:"status"`
	Version string             `json:"version,omitempty"`
	Time    string             `json:"time"`
	Models  map[string]bool    `json:"models,omitempty"`
	Memory  *pipeline.MemStats `json:"memory,omitempty"`
}

// ModelInfo describes one model file known to the server.
type ModelInfo struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Available   bool   `json:"available"`
	Required    bool   `json:"required"`
}

// ModelsResponse is returned by /models.
type ModelsResponse struct {
	Models   []ModelInfo            `json:"models"`
	Count    int                    `json:"count"`
	Pipeline map[string]interface{} `json:"pipeline,omitempty"`
}

// DetectResponse wraps a JSON detect result.
type DetectResponse struct {
	Success bool                  `json:"success"`
	Result  *pipeline.ImageResult `json:"result,omitempty"`
	Error   string                `json:"error,omitempty"`
}

// NewServer builds the recognition pipeline from config and creates a server.
func NewServer(config Config) (*Server, error) {
	pl, err := pipeline.NewBuilderFromConfig(config.PipelineConfig).Build()
	if err != nil {
		return nil, err
	}
	return newServer(config, pl), nil
}

// NewServerWithPipeline creates a server around an already built pipeline.
// config.PipelineConfig is only used for the models directory.
func NewServerWithPipeline(config Config, pl *pipeline.Pipeline) *Server {
	return newServer(config, pl)
}

func newServer(config Config, pl pipelineInterface) *Server {
	maxUpload := config.MaxUploadMB
	if maxUpload <= 0 {
		maxUpload = 20
	}
	return &Server{
		pipeline:        pl,
		modelsDir:       config.PipelineConfig.ModelsDir,
		corsOrigin:      config.CORSOrigin,
		maxUploadMB:     maxUpload,
		timeoutSec:      config.TimeoutSec,
		overlayEnabled:  config.OverlayEnabled,
		overlayBoxColor: config.OverlayBoxColor,
		version:         config.Version,
		rateLimiter:     NewRateLimiter(config.RateLimit),
	}
}

// Close releases server resources.
func (s *Server) Close() error {
	if s.pipeline != nil {
		return s.pipeline.Close()
	}
	return nil
}

// SetupRoutes configures the HTTP routes.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.corsMiddleware(s.healthHandler))
	mux.HandleFunc("/models", s.corsMiddleware(s.modelsHandler))
	mux.HandleFunc("/detect", s.corsMiddleware(s.rateLimitMiddleware(s.detectHandler)))
	mux.HandleFunc("/ws", s.rateLimitMiddleware(s.detectWebSocketHandler))
	mux.Handle("/metrics", promhttp.Handler())
}
