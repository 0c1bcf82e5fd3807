package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MeKo-Tech/netthinne/internal/config"
	"github.com/MeKo-Tech/netthinne/internal/models"
	"github.com/MeKo-Tech/netthinne/internal/onnx"
	"github.com/MeKo-Tech/netthinne/internal/pipeline"
	"github.com/MeKo-Tech/netthinne/internal/utils"
)

const (
	formatJSON    = "json"
	formatText    = "text"
	formatCSV     = "csv"
	formatYAML    = "yaml"
	formatOverlay = "overlay"
)

// healthHandler returns server health status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	mem := pipeline.GetMemStats()
	response := HealthResponse{
		Status:  "healthy",
		Version: s.version,
		Time:    time.Now().UTC().Format(time.RFC3339),
		Memory:  &mem,
	}
	if s.pipeline != nil {
		response.Models = loadedModels(s.pipeline.Info())
	}

	writeJSON(w, http.StatusOK, response)
}

// loadedModels extracts the "loaded" flag of each model section in a
// pipeline info map.
func loadedModels(info map[string]interface{}) map[string]bool {
	out := map[string]bool{}
	for name, v := range info {
		section, ok := v.(map[string]interface{})
		if !ok {
			continue
		}
		if loaded, ok := section["loaded"].(bool); ok {
			out[name] = loaded
		}
	}
	return out
}

// modelsHandler returns information about the model files.
func (s *Server) modelsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status := models.Status(s.modelsDir)
	list := make([]ModelInfo, len(status))
	for i, st := range status {
		list[i] = ModelInfo{
			Name:        st.Name,
			Path:        st.Path,
			Type:        st.Type,
			Description: st.Description,
			Available:   st.Available,
			Required:    st.Required,
		}
	}

	response := ModelsResponse{Models: list, Count: len(list)}
	if s.pipeline != nil {
		response.Pipeline = s.pipeline.Info()
	}
	writeJSON(w, http.StatusOK, response)
}

// detectHandler runs the recognition pipeline on an uploaded image.
func (s *Server) detectHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := s.maxUploadMB * 1024 * 1024
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(limit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(strings.ToLower(err.Error()), "too large") {
			s.writeErrorResponse(w, "File too large", http.StatusRequestEntityTooLarge)
		} else {
			s.writeErrorResponse(w, "Failed to parse form data", http.StatusBadRequest)
		}
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		s.writeErrorResponse(w, "No image file provided", http.StatusBadRequest)
		return
	}
	defer func() { _ = file.Close() }()
	uploadSizeBytes.Observe(float64(header.Size))
	if err := s.rateLimiter.Consume(s.rateLimiter.clientID(r), header.Size); err != nil {
		s.writeRateLimited(w, err)
		return
	}

	format := r.FormValue("format")
	if format == "" {
		format = r.URL.Query().Get("format")
	}
	if format == "" {
		format = formatJSON
	}
	if !validFormat(format) {
		s.writeErrorResponse(w, "Unsupported format: "+format, http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeErrorResponse(w, "Failed to read image data", http.StatusInternalServerError)
		return
	}
	img, _, err := utils.DecodeImageBytes(data)
	if err != nil {
		s.writeErrorResponse(w, "Invalid image format", http.StatusBadRequest)
		return
	}

	res, err := s.process(r.Context(), "http", img)
	if err != nil {
		s.writeErrorResponse(w, fmt.Sprintf("Detection failed: %v", err), statusFor(err))
		return
	}

	switch format {
	case formatCSV:
		s.writeFormatted(w, "text/csv", pipeline.ToCSVImage, res)
	case formatText:
		s.writeFormatted(w, "text/plain; charset=utf-8", pipeline.ToPlainTextImage, res)
	case formatYAML:
		s.writeFormatted(w, "application/yaml", pipeline.ToYAMLImage, res)
	case formatOverlay:
		s.handleOverlayOutput(w, r, img, res)
	default:
		writeJSON(w, http.StatusOK, DetectResponse{Success: true, Result: res})
	}
}

// process runs the pipeline with the configured timeout and records metrics.
func (s *Server) process(ctx context.Context, source string, img image.Image) (*pipeline.ImageResult, error) {
	if s.pipeline == nil {
		return nil, fmt.Errorf("%w: pipeline not initialized", onnx.ErrModelUnavailable)
	}
	if s.timeoutSec > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(s.timeoutSec)*time.Second)
		defer cancel()
	}

	start := time.Now()
	res, err := s.pipeline.ProcessImage(ctx, img)
	if err != nil {
		detectRequestsTotal.WithLabelValues(source, "error").Inc()
		slog.Error("Detection failed", "source", source, "error", err)
		return nil, err
	}
	observeResult(source, time.Since(start).Seconds(), len(res.Objects), res.Dropped)
	return res, nil
}

func validFormat(f string) bool {
	switch f {
	case formatJSON, formatText, formatCSV, formatYAML, formatOverlay:
		return true
	}
	return false
}

// statusFor maps pipeline errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, onnx.ErrModelUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, utils.ErrBadDimensions):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeFormatted(w http.ResponseWriter, contentType string,
	format func(*pipeline.ImageResult) (string, error), res *pipeline.ImageResult,
) {
	out, err := format(res)
	if err != nil {
		http.Error(w, fmt.Sprintf("formatting failed: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentType)
	_, _ = w.Write([]byte(out))
}

// handleOverlayOutput renders the result over the uploaded image as PNG.
func (s *Server) handleOverlayOutput(w http.ResponseWriter, r *http.Request, img image.Image, res *pipeline.ImageResult) {
	if !s.overlayEnabled {
		http.Error(w, "overlay output disabled", http.StatusForbidden)
		return
	}

	boxCol := s.overlayColor(r.FormValue("box"))
	ov := pipeline.RenderOverlay(img, res, boxCol)
	if ov == nil {
		http.Error(w, "overlay failed", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, ov); err != nil {
		http.Error(w, "overlay encoding failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(buf.Bytes())
}

// overlayColor picks the request color, then the configured one, then red.
func (s *Server) overlayColor(requested string) color.Color {
	for _, candidate := range []string{requested, s.overlayBoxColor} {
		if candidate == "" {
			continue
		}
		if !strings.HasPrefix(candidate, "#") {
			candidate = "#" + candidate
		}
		if c, err := config.ParseColor(candidate); err == nil {
			r, g, b := c.RGB255()
			return color.RGBA{r, g, b, 255}
		}
	}
	return color.RGBA{255, 0, 0, 255}
}

// writeErrorResponse writes a JSON error response.
func (s *Server) writeErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	writeJSON(w, statusCode, DetectResponse{Success: false, Error: message})
}

// writeJSON encodes v before touching the header so that an encoding failure
// still reaches the client as a 500.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("Failed to encode response", "error", err)
		status = http.StatusInternalServerError
		data, _ = json.Marshal(DetectResponse{Success: false, Error: "failed to encode response"})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(append(data, '\n')); err != nil {
		slog.Debug("Failed to write response", "error", err)
	}
}
